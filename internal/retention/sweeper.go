package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/pacebuddies/internal/store"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Sweeper bounds the growth of the entity kinds that event deletion does
// not cascade: position samples age out after maxAge, ready marks and
// registrations of deleted events are dropped wholesale. A failed pass is
// logged and simply retried on the next tick.
type Sweeper struct {
	db       store.EntityStore
	interval time.Duration
	maxAge   time.Duration

	now func() time.Time
}

func NewSweeper(db store.EntityStore, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		log.Debugf("retention sweeper started, interval %s, max age %s", s.interval, s.maxAge)

		for {
			select {
			case <-ctx.Done():
				log.Debugln("retention sweeper stopped")
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					log.Errorf("retention sweep: %s", err)
				}
			}
		}
	}()
}

// Sweep runs one retention pass. Each step runs even when a previous one
// failed, the errors are combined.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var sweepErr error

	cutoff := s.now().Add(-s.maxAge)
	deleted, err := s.db.DeleteOlderThan(ctx, store.KindPosition, cutoff)
	if err != nil {
		sweepErr = multierr.Append(sweepErr, fmt.Errorf("delete old positions: %w", err))
	} else if deleted > 0 {
		log.Debugf("retention: %d old position samples deleted", deleted)
	}

	for _, kind := range []string{store.KindReadyMark, store.KindRegistration} {
		if err := s.sweepOrphaned(ctx, kind); err != nil {
			sweepErr = multierr.Append(sweepErr, err)
		}
	}

	return sweepErr
}

// sweepOrphaned drops all partitions of a kind whose event no longer exists.
func (s *Sweeper) sweepOrphaned(ctx context.Context, kind string) error {
	partitions, err := s.db.Partitions(ctx, kind)
	if err != nil {
		return fmt.Errorf("list %s partitions: %w", kind, err)
	}

	var sweepErr error
	for _, eventID := range partitions {
		_, err := s.db.Get(ctx, store.KindEvent, "event", eventID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrEntityNotFound) {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("get event %s: %w", eventID, err))
			continue
		}

		deleted, err := s.db.DeletePartition(ctx, kind, eventID)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("delete %s partition %s: %w", kind, eventID, err))
			continue
		}
		log.Debugf("retention: %d orphaned %s entries of event %s deleted", deleted, kind, eventID)
	}
	return sweepErr
}
