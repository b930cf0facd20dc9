// Package registry runs background maintenance for the refresh token registry.
package registry

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
)

// Deleter is the part of refreshtokens.Registry the sweeper needs.
type Deleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper periodically deletes expired registry entries. Registries check
// expiry on every read, so sweeping only reclaims space.
type Sweeper struct {
	registry Deleter
	interval time.Duration
	log      logging.Logger
	now      func() time.Time
	onSwept  func(n int64)
}

// NewSweeper returns a Sweeper. onSwept, if not nil, receives the number of
// entries removed by each successful pass.
func NewSweeper(registry Deleter, interval time.Duration, log logging.Logger, onSwept func(n int64)) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		log:      log,
		now:      time.Now,
		onSwept:  onSwept,
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info(ctx, "registry sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass. Errors are logged, not returned; the next
// tick tries again.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	n, err := s.registry.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error(ctx, "registry sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Debug(ctx, "registry sweep", "deleted", n)
	}
	if s.onSwept != nil {
		s.onSwept(n)
	}
}
