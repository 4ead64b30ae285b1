// Package jobs runs periodic maintenance against the identity store.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"crewgate.org/internal/obs"
)

// SweepStore is the slice of the store the sweeper needs.
type SweepStore interface {
	PurgeRefreshTokens(ctx context.Context, olderThan time.Time) (int64, error)
	DeactivateExpiredAssignments(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper purges dead refresh tokens and flips expired role assignments
// inactive on a cron schedule.
type Sweeper struct {
	store   SweepStore
	cron    *cron.Cron
	now     func() time.Time
	timeout time.Duration
	grace   time.Duration
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper constructs an unstarted sweeper.
func NewSweeper(store SweepStore, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:   store,
		cron:    cron.New(),
		now:     time.Now,
		timeout: 30 * time.Second,
		grace:   24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep and begins running it. The schedule accepts the
// standard cron syntax plus descriptors like "@every 15m".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs both maintenance passes once. Errors are logged, not returned;
// the next tick retries.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := s.now().UTC()
	log := obs.Logger()

	// Tokens stay around for a grace day after expiry; recently-expired ones
	// still produce a precise "expired" error on refresh instead of a 404.
	purged, err := s.store.PurgeRefreshTokens(ctx, now.Add(-s.grace))
	if err != nil {
		log.WithError(err).Error("refresh token purge failed")
	} else if purged > 0 {
		log.WithField("purged", purged).Info("refresh tokens purged")
	}

	deactivated, err := s.store.DeactivateExpiredAssignments(ctx, now)
	if err != nil {
		log.WithError(err).Error("assignment expiry sweep failed")
	} else if deactivated > 0 {
		log.WithField("deactivated", deactivated).Info("expired role assignments deactivated")
	}
}
