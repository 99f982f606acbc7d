package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/mcp-commerce-router/pkg/profile"
)

// contextKeyProfile is the session context key holding the cached profile
// snapshot taken at creation time.
const contextKeyProfile = "profile"

// DefaultTTL is the activity window within which an existing session is
// resumed rather than replaced.
const DefaultTTL = 30 * time.Minute

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// TTL is the resumption window: a session idle longer than this is
	// treated as expired and replaced on the next message.
	TTL time.Duration
}

// Manager owns session identity, creation, resumption, and persistence.
// It carries no in-process state about individual sessions; the store's
// version check is the only synchronization, so any number of Manager
// instances may share a store.
type Manager struct {
	store    Store
	profiles profile.Provider
	ttl      time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewManager creates a session manager over the given store and profile
// provider.
func NewManager(store Store, profiles profile.Provider, cfg ManagerConfig) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:    store,
		profiles: profiles,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Resolve returns the live session for (userID, svc), creating one if none
// exists or the existing one has aged out. Creation fetches the user's
// profile (tolerating provider failure with an anonymous session), renders
// the system prompt, and persists the record. If two callers race to create
// the same session, exactly one insert wins and the loser adopts the
// winner's session.
func (m *Manager) Resolve(ctx context.Context, userID string, svc Service) (*Session, error) {
	key := Key{UserID: userID, ServiceID: svc.ID}

	existing, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		if m.fresh(existing) {
			return existing, nil
		}
		// Aged out but not yet swept. Clear the row so the composite-key
		// uniqueness holds for the replacement.
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("evicting expired session %s: %w", key, err)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("looking up session %s: %w", key, err)
	}

	return m.create(ctx, userID, svc)
}

// Active returns the user's most recently active unexpired session across
// all services, or ErrNotFound.
func (m *Manager) Active(ctx context.Context, userID string) (*Session, error) {
	return m.store.GetActive(ctx, userID, m.now().Add(-m.ttl))
}

// AppendTurn appends msgs to the session history in order, refreshes
// LastActive, and persists in a single guarded write. On success s reflects
// the stored state. Returns ErrConflict if another request mutated the
// session since it was resolved, and ErrNotFound if it was deleted
// mid-turn; callers recover by re-resolving.
func (m *Manager) AppendTurn(ctx context.Context, s *Session, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := m.now()
	next := s.Clone()
	for _, msg := range msgs {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		next.History = append(next.History, msg)
	}
	next.LastActive = laterOf(now, s.LastActive)

	if err := m.store.Update(ctx, next); err != nil {
		return err
	}
	*s = *next
	return nil
}

// MergeContext shallow-merges patch into the session context,
// last-key-wins, under the same guarded-persist discipline as AppendTurn.
func (m *Manager) MergeContext(ctx context.Context, s *Session, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	next := s.Clone()
	if next.Context == nil {
		next.Context = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		next.Context[k] = v
	}
	next.LastActive = laterOf(m.now(), s.LastActive)

	if err := m.store.Update(ctx, next); err != nil {
		return err
	}
	*s = *next
	return nil
}

// Delete removes the session for key. Idempotent; deleting an absent
// session is not an error.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	return m.store.Delete(ctx, key)
}

// fresh reports whether the session is within the resumption window.
func (m *Manager) fresh(s *Session) bool {
	return m.now().Sub(s.LastActive) <= m.ttl
}

func (m *Manager) create(ctx context.Context, userID string, svc Service) (*Session, error) {
	prof := m.fetchProfile(ctx, userID)

	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		ServiceID:    svc.ID,
		SystemPrompt: RenderSystemPrompt(svc, userID, prof),
		History:      []Message{},
		Tools:        append([]string(nil), svc.Tools...),
		Context:      make(map[string]any),
		CreatedAt:    now,
		LastActive:   now,
	}
	if prof != nil {
		s.Context[contextKeyProfile] = prof
	}

	err := m.store.Insert(ctx, s)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost the creation race; adopt the winner's session.
		return m.store.Get(ctx, s.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("creating session %s: %w", s.Key(), err)
	}

	m.logger.Info("session created",
		"session_id", s.ID,
		"user_id", userID,
		"service_id", svc.ID,
		"has_profile", prof != nil)
	return s, nil
}

// fetchProfile looks up the user's profile, degrading to nil on any
// failure so a profile outage never blocks a turn.
func (m *Manager) fetchProfile(ctx context.Context, userID string) *profile.Profile {
	if m.profiles == nil {
		return nil
	}
	prof, err := m.profiles.GetProfile(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Warn("profile lookup failed, continuing without profile",
			"user_id", userID, "error", err)
		return nil
	}
	return prof
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
