// Package postgres provides PostgreSQL storage for router sessions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// pqUniqueViolation is the PostgreSQL error code for unique-constraint
// violations, raised when two requests race to create the same session.
const pqUniqueViolation = "23505"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "user_id", "service_id", "system_prompt",
	"message_history", "available_tools", "context",
	"created_at", "last_active", "version",
}

// Store implements session.Store using PostgreSQL. The version column
// carries the optimistic-concurrency check; no other locking is used, so
// any number of router instances may share one database.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a session by its (user, service) key.
func (s *Store) Get(ctx context.Context, key session.Key) (*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("router_sessions").
		Where(sq.Eq{"user_id": key.UserID, "service_id": key.ServiceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

// GetActive returns the user's most recently active session with
// last_active after activeSince.
func (s *Store) GetActive(ctx context.Context, userID string, activeSince time.Time) (*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("router_sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Gt{"last_active": activeSince}).
		OrderBy("last_active DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building active session query: %w", err)
	}
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

// Insert persists a new session at version 1. A composite-key collision
// maps to session.ErrAlreadyExists so callers can adopt the winner.
func (s *Store) Insert(ctx context.Context, sess *session.Session) error {
	history, tools, sessCtx, err := marshalDocs(sess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO router_sessions
		(id, user_id, service_id, system_prompt, message_history, available_tools, context, created_at, last_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.ServiceID, sess.SystemPrompt,
		history, tools, sessCtx, sess.CreatedAt, sess.LastActive,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return session.ErrAlreadyExists
		}
		return fmt.Errorf("inserting session %s: %w", sess.Key(), err)
	}

	sess.Version = 1
	return nil
}

// Update persists sess guarded by its version: the row is written only if
// the stored version still matches, making each append all-or-nothing.
func (s *Store) Update(ctx context.Context, sess *session.Session) error {
	history, _, sessCtx, err := marshalDocs(sess)
	if err != nil {
		return err
	}

	query := `
		UPDATE router_sessions
		SET message_history = $1, context = $2, last_active = $3, version = version + 1
		WHERE user_id = $4 AND service_id = $5 AND version = $6
	`
	res, err := s.db.ExecContext(ctx, query,
		history, sessCtx, sess.LastActive,
		sess.UserID, sess.ServiceID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sess.Key(), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking session update result: %w", err)
	}
	if affected == 0 {
		return s.classifyMiss(ctx, sess.Key())
	}

	sess.Version++
	return nil
}

// classifyMiss distinguishes a stale version from a deleted session after
// a guarded update touched no rows.
func (s *Store) classifyMiss(ctx context.Context, key session.Key) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM router_sessions WHERE user_id = $1 AND service_id = $2)`
	if err := s.db.QueryRowContext(ctx, query, key.UserID, key.ServiceID).Scan(&exists); err != nil {
		return fmt.Errorf("classifying update miss for %s: %w", key, err)
	}
	if exists {
		return session.ErrConflict
	}
	return session.ErrNotFound
}

// Delete removes a session. Absence is not an error.
func (s *Store) Delete(ctx context.Context, key session.Key) error {
	query := `DELETE FROM router_sessions WHERE user_id = $1 AND service_id = $2`
	if _, err := s.db.ExecContext(ctx, query, key.UserID, key.ServiceID); err != nil {
		return fmt.Errorf("deleting session %s: %w", key, err)
	}
	return nil
}

// DeleteIdle removes all sessions idle since before olderThan and returns
// the number removed.
func (s *Store) DeleteIdle(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := psq.Delete("router_sessions").
		Where(sq.Lt{"last_active": olderThan}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building idle delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted sessions: %w", err)
	}
	return removed, nil
}

// Close releases store resources. The *sql.DB is owned by the caller.
func (*Store) Close() error {
	return nil
}

// marshalDocs serializes the session's nested documents for storage.
func marshalDocs(sess *session.Session) (history, tools, sessCtx []byte, err error) {
	if history, err = json.Marshal(sess.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling message history: %w", err)
	}
	if tools, err = json.Marshal(sess.Tools); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling tool manifest: %w", err)
	}
	ctxMap := sess.Context
	if ctxMap == nil {
		ctxMap = map[string]any{}
	}
	if sessCtx, err = json.Marshal(ctxMap); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling session context: %w", err)
	}
	return history, tools, sessCtx, nil
}

// scanSession scans a single row into a Session, mapping sql.ErrNoRows to
// session.ErrNotFound.
func scanSession(row *sql.Row) (*session.Session, error) {
	var sess session.Session
	var history, tools, sessCtx []byte

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.ServiceID, &sess.SystemPrompt,
		&history, &tools, &sessCtx,
		&sess.CreatedAt, &sess.LastActive, &sess.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if err := json.Unmarshal(history, &sess.History); err != nil {
		return nil, fmt.Errorf("decoding message history: %w", err)
	}
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &sess.Tools); err != nil {
			return nil, fmt.Errorf("decoding tool manifest: %w", err)
		}
	}
	sess.Context = make(map[string]any)
	if len(sessCtx) > 0 {
		_ = json.Unmarshal(sessCtx, &sess.Context)
	}
	return &sess, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
