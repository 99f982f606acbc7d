package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default sweep policy.
const (
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// SweeperConfig configures the cleanup sweeper.
type SweeperConfig struct {
	// Retention is how long an idle session survives before eviction.
	Retention time.Duration

	// Interval is the time between sweeps.
	Interval time.Duration
}

// Sweeper periodically evicts sessions idle past the retention window.
// Each sweep is an idempotent bulk delete, so sweepers on multiple router
// instances may run against the same store without coordination. Deleting
// a session that is mid-turn is acceptable: that turn's persist fails
// not-found and the router recreates the session.
type Sweeper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store Store, cfg SweeperConfig) *Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		logger:    slog.Default(),
	}
}

// Sweep runs one eviction pass and returns the number of sessions removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	removed, err := s.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping idle sessions: %w", err)
	}
	if removed > 0 {
		s.logger.Info("swept idle sessions", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	if s.cancel != nil {
		return fmt.Errorf("sweeper already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Warn("session sweep failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the sweep loop and waits for it to exit. Safe to call even if
// Start was never called.
func (s *Sweeper) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return nil
}
