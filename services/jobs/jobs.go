// Package jobsvc runs the periodic maintenance jobs.
package jobsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/codexlms/codex/core"
)

const jobTimeout = 5 * time.Minute

type (
	SubscriptionMaintainer interface {
		ExpireOverdue(ctx context.Context) (int, error)
		ResetUsage(ctx context.Context) (int, error)
	}

	SessionPurger interface {
		PurgeExpired(ctx context.Context) (int, error)
	}

	// Job runs on a standard cron schedule and reports how many documents it changed.
	Job struct {
		Name     string
		Schedule string
		Run      func(ctx context.Context) (int, error)
	}
)

func DefaultJobs(subs SubscriptionMaintainer, sessions SessionPurger) []Job {
	return []Job{
		{Name: "expire overdue subscriptions", Schedule: "@hourly", Run: subs.ExpireOverdue},
		{Name: "reset monthly usage", Schedule: "0 0 1 * *", Run: subs.ResetUsage},
		{Name: "purge assistant sessions", Schedule: "*/10 * * * *", Run: sessions.PurgeExpired},
	}
}

type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
}

// NewScheduler registers the jobs on a UTC scheduler; a run is skipped while the previous one
// of the same job is still going.
func NewScheduler(logger core.Logger, jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) }); err != nil {
			return nil, errors.Wrapf(err, "scheduling %q", job.Name)
		}
	}
	return s, nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := job.Run(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("job %q failed", job.Name), err)
		return
	}
	s.logger.Info(fmt.Sprintf("job %q done: %d updated", job.Name, n))
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for the running jobs, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
