package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(userID, serviceID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           "sess-" + userID + "-" + serviceID,
		UserID:       userID,
		ServiceID:    serviceID,
		SystemPrompt: "You are a test assistant.",
		History:      []Message{},
		Tools:        []string{"find_store"},
		Context:      map[string]any{},
		CreatedAt:    now,
		LastActive:   now,
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), Key{UserID: "u1", ServiceID: "food_delivery"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	sess := newTestSession("u1", "food_delivery")

	require.NoError(t, store.Insert(context.Background(), sess))
	assert.Equal(t, int64(1), sess.Version)

	got, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Insert(context.Background(), newTestSession("u1", "food_delivery")))

	err := store.Insert(context.Background(), newTestSession("u1", "food_delivery"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	sess := newTestSession("u1", "food_delivery")
	require.NoError(t, store.Insert(context.Background(), sess))

	got, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)
	got.History = append(got.History, Message{Role: RoleUser, Content: "mutated"})

	again, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)
	assert.Empty(t, again.History)
}

func TestMemoryStore_UpdateVersionCheck(t *testing.T) {
	store := NewMemoryStore()
	sess := newTestSession("u1", "food_delivery")
	require.NoError(t, store.Insert(context.Background(), sess))

	first, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)
	second, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)

	first.History = append(first.History, Message{Role: RoleUser, Content: "hello"})
	require.NoError(t, store.Update(context.Background(), first))
	assert.Equal(t, int64(2), first.Version)

	// The second reader still holds version 1; its write must lose.
	second.History = append(second.History, Message{Role: RoleUser, Content: "race"})
	err = store.Update(context.Background(), second)
	assert.ErrorIs(t, err, ErrConflict)

	// No data loss: the winner's turn is stored.
	got, err := store.Get(context.Background(), sess.Key())
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "hello", got.History[0].Content)
}

func TestMemoryStore_UpdateDeleted(t *testing.T) {
	store := NewMemoryStore()
	sess := newTestSession("u1", "food_delivery")
	require.NoError(t, store.Insert(context.Background(), sess))
	require.NoError(t, store.Delete(context.Background(), sess.Key()))

	err := store.Update(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	key := Key{UserID: "u1", ServiceID: "food_delivery"}

	assert.NoError(t, store.Delete(context.Background(), key))
	assert.NoError(t, store.Delete(context.Background(), key))
}

func TestMemoryStore_DeleteIdle(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	old := newTestSession("u1", "food_delivery")
	old.LastActive = now.Add(-8 * 24 * time.Hour)
	require.NoError(t, store.Insert(context.Background(), old))

	recent := newTestSession("u2", "food_delivery")
	recent.LastActive = now.Add(-6 * 24 * time.Hour)
	require.NoError(t, store.Insert(context.Background(), recent))

	removed, err := store.DeleteIdle(context.Background(), now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(context.Background(), old.Key())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(context.Background(), recent.Key())
	assert.NoError(t, err)
}

func TestMemoryStore_GetActive(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	older := newTestSession("u1", "food_delivery")
	older.LastActive = now.Add(-10 * time.Minute)
	require.NoError(t, store.Insert(context.Background(), older))

	newer := newTestSession("u1", "ride_hail")
	newer.LastActive = now.Add(-1 * time.Minute)
	require.NoError(t, store.Insert(context.Background(), newer))

	got, err := store.GetActive(context.Background(), "u1", now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "ride_hail", got.ServiceID)

	// Outside the window nothing is active.
	_, err = store.GetActive(context.Background(), "u1", now)
	assert.ErrorIs(t, err, ErrNotFound)

	// Other users see nothing.
	_, err = store.GetActive(context.Background(), "u2", now.Add(-30*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
}
