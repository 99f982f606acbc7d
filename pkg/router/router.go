package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/txn2/mcp-commerce-router/pkg/gateway"
	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// ErrUpstream indicates the backend agent failed after the retry budget
// was exhausted. The session history contains only what actually
// happened: the user's own turn, never a partial reply.
var ErrUpstream = errors.New("backend service failure")

const (
	// defaultRetryBackoff is the pause before the single transient retry.
	defaultRetryBackoff = 500 * time.Millisecond

	// maxPersistAttempts bounds the re-resolve loop when a guarded
	// persist loses to a concurrent writer or a mid-turn sweep.
	maxPersistAttempts = 3
)

// Config configures the router.
type Config struct {
	// Services is the catalog in declaration order.
	Services []session.Service

	// RetryBackoff overrides the pause before the transient retry.
	RetryBackoff time.Duration
}

// Router executes full conversation turns: classify, resolve the session,
// append the user turn, invoke the backend agent, and persist the reply.
type Router struct {
	classifier *Classifier
	sessions   *session.Manager
	gw         gateway.Gateway
	catalog    map[string]session.Service
	backoff    time.Duration
	logger     *slog.Logger
}

// Reply is the outcome of a successful route call.
type Reply struct {
	Reply     string `json:"reply"`
	ServiceID string `json:"service_id"`
	SessionID string `json:"session_id"`
}

// New creates a router over the session manager and agent gateway.
func New(sessions *session.Manager, gw gateway.Gateway, cfg Config) *Router {
	catalog := make(map[string]session.Service, len(cfg.Services))
	for _, svc := range cfg.Services {
		catalog[svc.ID] = svc
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Router{
		classifier: NewClassifier(cfg.Services),
		sessions:   sessions,
		gw:         gw,
		catalog:    catalog,
		backoff:    backoff,
		logger:     slog.Default(),
	}
}

// Option adjusts a single Route call.
type Option func(*routeOptions)

type routeOptions struct {
	forceService string
	forceNew     bool
}

// WithForceService bypasses classification and routes to the given
// service. Unknown services fail with ErrUnroutable.
func WithForceService(serviceID string) Option {
	return func(o *routeOptions) { o.forceService = serviceID }
}

// WithNewSession abandons any existing session for the target service and
// starts a fresh conversation.
func WithNewSession() Option {
	return func(o *routeOptions) { o.forceNew = true }
}

// Route executes one full turn for (userID, message) and returns the
// backend's reply. Store conflicts and mid-turn evictions are resolved
// internally and never surface; the caller sees either a reply,
// ErrUnroutable, or ErrUpstream.
func (r *Router) Route(ctx context.Context, userID, message string, opts ...Option) (*Reply, error) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := r.target(ctx, userID, message, o)
	if err != nil {
		return nil, err
	}

	if o.forceNew {
		if err := r.sessions.Delete(ctx, session.Key{UserID: userID, ServiceID: svc.ID}); err != nil {
			return nil, fmt.Errorf("resetting session: %w", err)
		}
	}

	sess, err := r.sessions.Resolve(ctx, userID, svc)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	userTurn := session.Message{Role: session.RoleUser, Content: message}
	sess, err = r.persist(ctx, svc, sess, nil, []session.Message{userTurn})
	if err != nil {
		return nil, fmt.Errorf("recording user turn: %w", err)
	}

	result, err := r.generate(ctx, sess)
	if err != nil {
		return nil, err
	}

	// Persist the backend's appended messages in their original order.
	// If the session was swept between the two appends, the user turn is
	// replayed into the recreated session first.
	sess, err = r.persist(ctx, svc, sess, []session.Message{userTurn}, result.Messages)
	if err != nil {
		return nil, fmt.Errorf("recording reply: %w", err)
	}

	r.logger.Info("turn routed",
		"user_id", userID,
		"service_id", svc.ID,
		"session_id", sess.ID,
		"history_len", len(sess.History))

	return &Reply{
		Reply:     result.Reply,
		ServiceID: svc.ID,
		SessionID: sess.ID,
	}, nil
}

// target decides which service handles the message. Explicit forcing wins;
// otherwise a classified keyword wins over an active session on another
// service (the user switched on purpose); otherwise an active session
// continues even when the message itself is unclassifiable; otherwise the
// call is unroutable.
func (r *Router) target(ctx context.Context, userID, message string, o routeOptions) (session.Service, error) {
	if o.forceService != "" {
		svc, ok := r.catalog[o.forceService]
		if !ok {
			return session.Service{}, fmt.Errorf("%w: unknown service %q", ErrUnroutable, o.forceService)
		}
		return svc, nil
	}

	classified, classifyErr := r.classifier.Classify(message)
	if classifyErr != nil && !errors.Is(classifyErr, ErrUnroutable) {
		return session.Service{}, classifyErr
	}

	if o.forceNew {
		if classifyErr != nil {
			return session.Service{}, classifyErr
		}
		return classified, nil
	}

	active, activeErr := r.sessions.Active(ctx, userID)
	switch {
	case activeErr == nil:
		if classifyErr == nil && classified.ID != active.ServiceID {
			// Explicit switch to another service abandons the old
			// conversation rather than leaving two live sessions.
			if err := r.sessions.Delete(ctx, active.Key()); err != nil {
				return session.Service{}, fmt.Errorf("abandoning %s session: %w", active.ServiceID, err)
			}
			return classified, nil
		}
		svc, ok := r.catalog[active.ServiceID]
		if !ok {
			// The service was removed from the catalog since the session
			// was created; the stored session can no longer be served.
			if classifyErr != nil {
				return session.Service{}, classifyErr
			}
			return classified, nil
		}
		return svc, nil

	case errors.Is(activeErr, session.ErrNotFound):
		if classifyErr != nil {
			return session.Service{}, classifyErr
		}
		return classified, nil

	default:
		return session.Service{}, fmt.Errorf("checking active session: %w", activeErr)
	}
}

// generate invokes the backend agent, retrying exactly once with backoff
// on transient failures.
func (r *Router) generate(ctx context.Context, sess *session.Session) (*gateway.Result, error) {
	req := gateway.Request{
		SystemPrompt: sess.SystemPrompt,
		History:      sess.History,
		Tools:        sess.Tools,
	}

	result, err := r.gw.Generate(ctx, req)
	if err == nil {
		return result, nil
	}
	if !gateway.IsTransient(err) {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	r.logger.Warn("agent call failed, retrying",
		"service_id", sess.ServiceID, "session_id", sess.ID, "error", err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.backoff):
	}

	result, err = r.gw.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return result, nil
}

// persist appends msgs through the manager, absorbing version conflicts
// and mid-turn evictions by re-resolving. When the session had to be
// recreated, replay is prepended once so the recreated history still
// carries the turn that prompted the reply.
func (r *Router) persist(ctx context.Context, svc session.Service, sess *session.Session, replay, msgs []session.Message) (*session.Session, error) {
	var err error
	for attempt := 0; attempt < maxPersistAttempts; attempt++ {
		err = r.sessions.AppendTurn(ctx, sess, msgs...)
		if err == nil {
			return sess, nil
		}

		evicted := errors.Is(err, session.ErrNotFound)
		if !evicted && !errors.Is(err, session.ErrConflict) {
			return nil, err
		}

		latest, resolveErr := r.sessions.Resolve(ctx, sess.UserID, svc)
		if resolveErr != nil {
			return nil, fmt.Errorf("re-resolving session: %w", resolveErr)
		}
		if evicted && len(replay) > 0 {
			msgs = append(slices.Clone(replay), msgs...)
			replay = nil
		}
		sess = latest
	}
	return nil, fmt.Errorf("persisting turn after %d attempts: %w", maxPersistAttempts, err)
}
