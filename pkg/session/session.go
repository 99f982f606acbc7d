// Package session provides durable conversation sessions for the commerce
// router. It defines the Session type, the Store interface for persistence
// with optimistic concurrency, and the Manager that mediates every
// read/modify/persist cycle.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// Message roles used in a session's history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the session does not exist in the store.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists indicates an insert collided with a live session
	// for the same (user, service) pair.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrConflict indicates the stored version changed since the session
	// was read. Callers recover by re-resolving and retrying.
	ErrConflict = errors.New("session version conflict")
)

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Key identifies a session by its (user, service) pair. At most one live
// session exists per key.
type Key struct {
	UserID    string
	ServiceID string
}

// String returns the key in "user/service" form for logging.
func (k Key) String() string {
	return k.UserID + "/" + k.ServiceID
}

// Service describes a backend service the router can hand a conversation to.
// The set of services is fixed by configuration; declaration order is the
// classifier's tie-break order.
type Service struct {
	// ID is the service identifier (e.g. "food_delivery").
	ID string

	// Description is a short human-readable summary used in handoffs.
	Description string

	// Keywords trigger classification to this service. Single words match
	// whole tokens; multi-word phrases match whole-word sequences.
	Keywords []string

	// SystemPrompt is the base prompt template for new sessions.
	SystemPrompt string

	// Tools is the fixed tool manifest exposed to the backend agent.
	Tools []string
}

// Session is a durable, user+service-scoped conversation record.
type Session struct {
	// ID is an opaque identifier, stable across resumptions.
	ID string `json:"session_id"`

	// UserID is the external user identity; never generated internally.
	UserID string `json:"user_id"`

	// ServiceID is the target backend service. Immutable after creation.
	ServiceID string `json:"service_id"`

	// SystemPrompt is the resolved prompt text, rendered once from the
	// service template plus profile fields. Immutable after creation.
	SystemPrompt string `json:"system_prompt"`

	// History is the append-only ordered conversation. Turns are never
	// reordered, deduplicated, or removed short of whole-session deletion.
	History []Message `json:"message_history"`

	// Tools is the tool manifest fixed at session creation.
	Tools []string `json:"available_tools"`

	// Context holds service-specific scratch data, last-writer-wins per key.
	Context map[string]any `json:"context"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// Version is the optimistic-concurrency token, bumped by every
	// successful Update.
	Version int64 `json:"-"`
}

// Key returns the session's composite key.
func (s *Session) Key() Key {
	return Key{UserID: s.UserID, ServiceID: s.ServiceID}
}

// Clone returns a deep copy sharing no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	c.History = slices.Clone(s.History)
	c.Tools = slices.Clone(s.Tools)
	c.Context = maps.Clone(s.Context)
	return &c
}

// Store defines durable session persistence. Implementations enforce
// uniqueness on the (user, service) composite key and an expected-version
// check on update; that check is the router's only synchronization
// primitive, so multiple router instances may share one store.
type Store interface {
	// Get retrieves a session by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) (*Session, error)

	// GetActive returns the most recently active session for the user
	// with LastActive after activeSince, regardless of service.
	// Returns ErrNotFound if the user has no live session.
	GetActive(ctx context.Context, userID string, activeSince time.Time) (*Session, error)

	// Insert persists a new session at version 1. Returns ErrAlreadyExists
	// if a session for the same key is present.
	Insert(ctx context.Context, s *Session) error

	// Update persists s if the stored version equals s.Version, then bumps
	// s.Version. Returns ErrConflict on a stale version and ErrNotFound if
	// the session was deleted. The persist is all-or-nothing.
	Update(ctx context.Context, s *Session) error

	// Delete removes a session. Absence is not an error.
	Delete(ctx context.Context, key Key) error

	// DeleteIdle removes all sessions with LastActive before olderThan and
	// returns the number removed. Safe to run concurrently with traffic.
	DeleteIdle(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases store resources.
	Close() error
}
