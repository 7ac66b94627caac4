package account

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/account-service/internal/logger"
)

// Purger is the slice of TokenManager the sweeper needs.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error)
}

// Sweeper periodically purges expired tokens on a fixed interval.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	now      Clock
	log      zerolog.Logger
}

func NewSweeper(p Purger, interval time.Duration, now Clock) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		purger:   p,
		interval: interval,
		now:      now,
		log:      logger.Component("purge_sweeper"),
	}
}

// Run blocks until ctx is cancelled. It sweeps once immediately, then on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single purge. Failures are logged; the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	s.log.Info().Time("now", now).Msg("purging expired tokens")

	res, err := s.purger.PurgeExpired(ctx, now)
	if err != nil {
		s.log.Warn().Err(err).Msg("token purge failed")
		return
	}

	evt := s.log.Info().Int64("deleted", res.Total())
	for kind, n := range res {
		evt = evt.Int64(string(kind), n)
	}
	evt.Msg("expired tokens purged")
}
