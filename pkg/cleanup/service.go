// Package cleanup provides data retention enforcement.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

// Service periodically enforces retention policies:
//   - Deletes terminal sessions past the retention window (descendant rows
//     cascade with the session)
//   - Deletes event-bus rows past their TTL
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config   *config.RetentionConfig
	sessions *history.Store
	events   *events.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, sessions *history.Store, eventStore *events.Store) *Service {
	return &Service{
		config:   cfg,
		sessions: sessions,
		events:   eventStore,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_retention_days", s.config.SessionRetentionDays,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteExpiredSessions(ctx)
	s.deleteExpiredEvents(ctx)
}

func (s *Service) deleteExpiredSessions(ctx context.Context) {
	count, err := s.sessions.DeleteExpiredSessions(ctx, s.config.SessionRetentionDays)
	if err != nil {
		slog.Error("Retention: session deletion failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired sessions", "count", count)
	}
}

func (s *Service) deleteExpiredEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EventTTL)
	count, err := s.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired events", "count", count)
	}
}
