package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map. It mirrors the
// durable store's semantics, including the version check, so the Manager
// and Router behave identically against either backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[Key]*Session),
	}
}

// Get retrieves a session by key. Returns ErrNotFound if absent.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// GetActive returns the most recently active session for the user.
func (s *MemoryStore) GetActive(_ context.Context, userID string, activeSince time.Time) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.LastActive.After(activeSince) {
			continue
		}
		if latest == nil || sess.LastActive.After(latest.LastActive) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

// Insert persists a new session at version 1.
func (s *MemoryStore) Insert(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.Key()]; ok {
		return ErrAlreadyExists
	}
	sess.Version = 1
	s.sessions[sess.Key()] = sess.Clone()
	return nil
}

// Update persists sess if the stored version matches, then bumps it.
func (s *MemoryStore) Update(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.Key()]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != sess.Version {
		return ErrConflict
	}
	sess.Version++
	s.sessions[sess.Key()] = sess.Clone()
	return nil
}

// Delete removes a session. Absence is not an error.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

// DeleteIdle removes sessions with LastActive before olderThan.
func (s *MemoryStore) DeleteIdle(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, sess := range s.sessions {
		if sess.LastActive.Before(olderThan) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Close releases store resources.
func (*MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
