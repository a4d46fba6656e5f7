package dispatch

import (
	"context"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/metrics"
	"pulse-server/internal/models"
)

// Claimer hands out jobs that are due, marking them as taken.
type Claimer interface {
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.NotificationJob, error)
}

type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// Sweeper periodically claims due jobs and submits them for another attempt.
type Sweeper struct {
	claimer    Claimer
	submitter  Submitter
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	now        func() time.Time
	log        logger.Logger
}

// NewSweeper builds a sweeper. Jobs left PENDING or PROCESSING for longer
// than staleAfter are considered abandoned and reclaimed.
func NewSweeper(claimer Claimer, submitter Submitter, interval, staleAfter time.Duration, batch int, log logger.Logger) *Sweeper {
	return &Sweeper{
		claimer:    claimer,
		submitter:  submitter,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
		log:        log.WithFields(map[string]interface{}{"component": "sweeper"}),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Retry sweeper started", map[string]interface{}{"interval": s.interval.String(), "batch": s.batch})
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Retry sweeper stopped", nil)
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one claim-and-submit pass and returns how many jobs were
// submitted. Jobs that cannot be submitted stay PROCESSING and are reclaimed
// once stale.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	jobs, err := s.claimer.ClaimDue(ctx, now, now.Add(-s.staleAfter), s.batch)
	if err != nil {
		s.log.Error("Failed to claim due jobs", map[string]interface{}{"error": err.Error()})
		return 0
	}

	submitted := 0
	for _, job := range jobs {
		if err := s.submitter.Submit(ctx, Task{Job: job}); err != nil {
			s.log.Warn("Could not submit reclaimed job", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
			continue
		}
		submitted++
	}
	if len(jobs) > 0 {
		metrics.SweeperJobs.Add(float64(submitted))
		s.log.Info("Reclaimed due jobs", map[string]interface{}{"claimed": len(jobs), "submitted": submitted})
	}
	return submitted
}
