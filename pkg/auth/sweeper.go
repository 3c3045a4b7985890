package auth

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often the guest sweep runs. The interval and
// the guest TTL are independent settings; an expired guest may live up to
// one extra interval past its nominal expiry.
const DefaultSweepInterval = time.Hour

// Sweeper runs the guest expiry sweep on a fixed interval. Sweeps are not
// reentrant: if a sweep is still running when the next tick fires, that
// tick is skipped, not queued.
type Sweeper struct {
	interval time.Duration
	guests   *GuestService
	logger   *slog.Logger
	running  atomic.Bool
}

// NewSweeper creates a new sweeper.
func NewSweeper(interval time.Duration, guests *GuestService, logger *slog.Logger) *Sweeper {
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		interval: interval,
		guests:   guests,
		logger:   logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is
// cancelled. Sweep errors are logged and never stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("guest sweeper started", "interval", s.interval, "guest_ttl", s.guests.TTL())

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("guest sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep unless a previous one is still in flight.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping tick")
		return
	}

	go func() {
		defer s.running.Store(false)

		start := time.Now()
		purged, err := s.guests.Sweep(ctx)
		if err != nil {
			s.logger.Error("guest sweep failed", "error", err)
			return
		}
		if purged > 0 {
			s.logger.Info("guest sweep completed", "purged", purged, "duration", time.Since(start))
		}
	}()
}
