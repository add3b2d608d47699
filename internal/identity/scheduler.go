package identity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Scheduler rotates the identifier of every account that opted in once
// its current identifier is older than the rotation period.
type Scheduler struct {
	m        *Manager
	interval time.Duration
	period   time.Duration
	log      *zap.SugaredLogger
}

func NewScheduler(m *Manager, interval, period time.Duration, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		m:        m,
		interval: interval,
		period:   period,
		log:      logger,
	}
}

// Run checks for due profiles every interval until ctx is done. A zero
// interval disables the scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("identifier rotation scheduler disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.RotateDue(ctx)
			if err != nil {
				s.log.Errorw("scheduled rotation", "error", err, "rotated", n)
				continue
			}
			if n > 0 {
				s.log.Infow("scheduled rotation complete", "rotated", n)
			}
		}
	}
}

// RotateDue rotates every due profile and returns how many were rotated.
// It stops at the first failure.
func (s *Scheduler) RotateDue(ctx context.Context) (int, error) {
	due, err := s.m.db.ListProfilesDueForRotation(ctx, s.m.now().Add(-s.period))
	if err != nil {
		return 0, fmt.Errorf("list due profiles: %w", err)
	}

	var n int
	for _, p := range due {
		if _, err := s.m.Rotate(ctx, p.AccountId); err != nil {
			return n, err
		}
		n++
	}

	return n, nil
}
