// Package job schedules the periodic maintenance of the feed streams.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-graph-cache/pkg/logger"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the retention sweep every ten minutes.
const DefaultSchedule = "@every 10m"

// Sweeper trims every feed stream to the retention policy.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// RetentionJob is a cron.Job running one retention sweep. Overlapping runs
// are skipped.
type RetentionJob struct {
	sweeper Sweeper
	timeout time.Duration
	logger  logger.Logger
	mu      sync.Mutex
}

var _ cron.Job = (*RetentionJob)(nil)

// NewRetentionJob creates a RetentionJob. Each run is bounded by timeout.
func NewRetentionJob(s Sweeper, timeout time.Duration, l logger.Logger) *RetentionJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RetentionJob{sweeper: s, timeout: timeout, logger: logger.OrNop(l)}
}

// Name identifies the job in logs.
func (j *RetentionJob) Name() string { return "feed_retention" }

// Run implements cron.Job.
func (j *RetentionJob) Run() {
	if !j.mu.TryLock() {
		j.logger.Warn("previous sweep still running, skipping", logger.String("job", j.Name()))
		return
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	removed, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("feed retention sweep failed",
			logger.String("job", j.Name()),
			logger.Int64("removed", removed),
			logger.Error(err))
		return
	}
	j.logger.Info("feed retention sweep finished",
		logger.String("job", j.Name()),
		logger.Int64("removed", removed),
		logger.Duration("took", time.Since(start)))
}

// Scheduler owns the cron instance driving the jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers job under schedule, a standard cron spec or an
// "@every" descriptor.
func NewScheduler(schedule string, job *RetentionJob) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	return &Scheduler{cron: c}, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
