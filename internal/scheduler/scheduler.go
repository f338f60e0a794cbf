// Package scheduler runs periodic maintenance jobs alongside the pipeline.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/jobrelay/internal/store"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own interval, one goroutine per job.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler creates a scheduler. Jobs with a non-positive interval are skipped.
func NewScheduler(jobs []Job, logger *slog.Logger) *Scheduler {
	active := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Interval > 0 && j.Run != nil {
			active = append(active, j)
		}
	}
	return &Scheduler{
		jobs:   active,
		logger: logger,
	}
}

// Run runs every job once immediately, then on its interval. It returns nil
// when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "jobs", len(s.jobs))

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()

	s.logger.Info("shutting down scheduler")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled job failed", "job", j.Name, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(j.Interval):
		}
	}
}

// Cleaner purges records past their retention.
type Cleaner interface {
	Cleanup(ctx context.Context, r store.Retention) (store.CleanupResult, error)
}

// RetentionJob returns a job that purges old records every interval.
func RetentionJob(cleaner Cleaner, r store.Retention, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			res, err := cleaner.Cleanup(ctx, r)
			if err != nil {
				return err
			}
			if res.Total() > 0 {
				logger.Info("retention cleanup",
					"notifications", res.Notifications,
					"deliveries", res.Deliveries,
					"opportunities", res.Opportunities,
				)
			}
			return nil
		},
	}
}
