package session

import (
	"context"
	"errors"
	"time"
)

// Sweep removes every record whose refresh window closed before now, batch by
// batch. Records no user references (left by a failed attach) go the same way.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		recs, err := s.ledger.ListExpired(ctx, now, s.cfg.SweepBatch)
		if err != nil {
			return total, err
		}

		removed := 0
		for _, rec := range recs {
			err := s.remove(ctx, rec)
			switch {
			case err == nil:
				removed++
			case errors.Is(err, errRecordGone):
			case ctx.Err() != nil:
				s.metrics.sweep(total + removed)
				return total + removed, ctx.Err()
			default:
				s.log.Warn("auth.sweep.record.fail", "record_id", rec.ID, "err", err)
			}
		}
		total += removed

		// A short batch is the last one; a batch with no progress would loop forever.
		if len(recs) < s.cfg.SweepBatch || removed == 0 {
			break
		}
	}

	s.metrics.sweep(total)
	return total, nil
}

// RunSweeper calls Sweep every SweepInterval until ctx ends. It returns nil on shutdown.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.log.Info("auth.sweeper.start", "interval", s.cfg.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("auth.sweeper.stop")
			return nil
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now.UTC())
			if err != nil && ctx.Err() == nil {
				s.log.Error("auth.sweep.fail", "removed", n, "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("auth.sweep.ok", "removed", n)
			}
		}
	}
}
