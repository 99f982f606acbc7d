package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-commerce-router/pkg/session"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func sampleSession() *session.Session {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &session.Session{
		ID:           "sess-1",
		UserID:       "u1",
		ServiceID:    "food_delivery",
		SystemPrompt: "You are a food ordering assistant.",
		History: []session.Message{
			{Role: session.RoleUser, Content: "I want a pizza", Timestamp: now},
		},
		Tools:      []string{"find_store"},
		Context:    map[string]any{"profile": map[string]any{"user_id": "u1"}},
		CreatedAt:  now,
		LastActive: now,
		Version:    1,
	}
}

func sessionRows(t *testing.T, sess *session.Session) *sqlmock.Rows {
	t.Helper()
	history, err := json.Marshal(sess.History)
	require.NoError(t, err)
	tools, err := json.Marshal(sess.Tools)
	require.NoError(t, err)
	sessCtx, err := json.Marshal(sess.Context)
	require.NoError(t, err)

	return sqlmock.NewRows(sessionColumns).AddRow(
		sess.ID, sess.UserID, sess.ServiceID, sess.SystemPrompt,
		history, tools, sessCtx,
		sess.CreatedAt, sess.LastActive, sess.Version,
	)
}

func TestStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleSession()

	mock.ExpectQuery("SELECT (.+) FROM router_sessions WHERE").
		WithArgs("food_delivery", "u1").
		WillReturnRows(sessionRows(t, want))

	got, err := store.Get(context.Background(), session.Key{UserID: "u1", ServiceID: "food_delivery"})
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.SystemPrompt, got.SystemPrompt)
	require.Len(t, got.History, 1)
	assert.Equal(t, "I want a pizza", got.History[0].Content)
	assert.Equal(t, []string{"find_store"}, got.Tools)
	assert.Contains(t, got.Context, "profile")
	assert.Equal(t, int64(1), got.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM router_sessions WHERE").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := store.Get(context.Background(), session.Key{UserID: "u1", ServiceID: "food_delivery"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetActive(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleSession()

	mock.ExpectQuery("SELECT (.+) FROM router_sessions WHERE (.+) ORDER BY last_active DESC LIMIT 1").
		WillReturnRows(sessionRows(t, want))

	got, err := store.GetActive(context.Background(), "u1", want.LastActive.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert(t *testing.T) {
	store, mock := newMockStore(t)
	sess := sampleSession()
	sess.Version = 0

	mock.ExpectExec("INSERT INTO router_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), sess))
	assert.Equal(t, int64(1), sess.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO router_sessions").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := store.Insert(context.Background(), sampleSession())
	assert.ErrorIs(t, err, session.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Update(t *testing.T) {
	store, mock := newMockStore(t)
	sess := sampleSession()

	mock.ExpectExec("UPDATE router_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(context.Background(), sess))
	assert.Equal(t, int64(2), sess.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE router_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1", "food_delivery").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.Update(context.Background(), sampleSession())
	assert.ErrorIs(t, err, session.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateSwept(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE router_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.Update(context.Background(), sampleSession())
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM router_sessions WHERE user_id").
		WithArgs("u1", "food_delivery").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Delete(context.Background(), session.Key{UserID: "u1", ServiceID: "food_delivery"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteIdle(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM router_sessions WHERE last_active").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteIdle(context.Background(), time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
