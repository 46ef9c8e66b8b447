package core

// scheduler.go runs background maintenance for the service.
//
// Session expiry is lazy, so an abandoned session would otherwise stay in
// memory until the next Create sweeps it. The sweeper removes expired
// sessions on a fixed interval and keeps the open-sessions gauge current.
// It stops when its context is cancelled.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartSessionSweeper gets no interval.
const DefaultSweepInterval = 5 * time.Minute

// sweeper is implemented by session stores that can drop expired sessions
// in bulk.
type sweeper interface {
	Sweep() int
}

// StartSessionSweeper removes expired sessions every interval until ctx is
// done. It returns immediately if the store cannot sweep.
func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	sw, ok := s.store.(sweeper)
	if !ok {
		slog.Debug("session store does not support sweeping")
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(sw)
		}
	}
}

// runSweep performs one sweep and reports the remaining session count.
func (s *Service) runSweep(sw sweeper) int {
	start := time.Now()
	removed := sw.Sweep()
	open := s.store.Len()
	s.recorder.SessionsOpen(open)

	if removed > 0 {
		slog.Info("expired sessions removed",
			"removed", removed,
			"open", open,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return removed
}
