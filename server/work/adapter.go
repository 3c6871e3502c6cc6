package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/villagevault/villagevault/server/cron"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

const (
	MAX_CONCURRENCY = 1

	DEFAULT_SCHEDULED_POLL = 1 * time.Second
	DEFAULT_STUCK_POLL     = 1 * time.Minute
	DEFAULT_STUCK_AFTER    = 10 * time.Minute
)

type AdapterConfig struct {
	TimeZone    string
	Concurrency int
	// SleepBackoffs overrides DefaultSleepBackoffs for idle workers.
	SleepBackoffs []time.Duration
	// ScheduledPoll is how often the scheduled queue is checked for due jobs.
	ScheduledPoll time.Duration
	// StuckPoll is how often in-progress jobs are checked; StuckAfter is how
	// long a job may stay in-progress before it's requeued.
	StuckPoll  time.Duration
	StuckAfter time.Duration
}

type WorkerPoolAdapter struct {
	mu            sync.Mutex
	cronScheduler *gocron.Scheduler
	pool          *WorkerPool
	requeuers     []*requeuer
	started       bool
}

func NewWorkerAdapter(jobs store.JobStore, config AdapterConfig) *WorkerPoolAdapter {
	if config.ScheduledPoll <= 0 {
		config.ScheduledPoll = DEFAULT_SCHEDULED_POLL
	}
	if config.StuckPoll <= 0 {
		config.StuckPoll = DEFAULT_STUCK_POLL
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = DEFAULT_STUCK_AFTER
	}

	pool := newWorkerPool(jobs, config.Concurrency, config.SleepBackoffs)

	scheduledRequeuer, err := newRequeuer(models.SCHEDULED_JOB, pool, config.ScheduledPoll, 0)
	if err != nil {
		logg.Panic(err)
	}
	stuckRequeuer, err := newRequeuer(models.IN_PROGRESS_JOB, pool, config.StuckPoll, config.StuckAfter)
	if err != nil {
		logg.Panic(err)
	}

	return &WorkerPoolAdapter{
		cronScheduler: cron.NewCronScheduler(config.TimeZone),
		pool:          pool,
		requeuers:     []*requeuer{scheduledRequeuer, stuckRequeuer},
	}
}

// Start starts the cron scheduler, requeuers & worker pool
func (adapter *WorkerPoolAdapter) Start() error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()

	if adapter.started {
		return nil
	}
	adapter.started = true

	logg.Info("Starting cron scheduler & worker pool")
	adapter.cronScheduler.StartAsync()
	for _, r := range adapter.requeuers {
		r.start()
	}
	adapter.pool.start()

	return nil
}

// Stop stops the cron scheduler, requeuers & worker pool
func (adapter *WorkerPoolAdapter) Stop() error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()

	if !adapter.started {
		return nil
	}
	adapter.started = false

	logg.Info("Stopping cron scheduler & worker pool")
	adapter.cronScheduler.Stop()
	for _, r := range adapter.requeuers {
		r.stop()
	}
	adapter.pool.stop()

	return nil
}

// Register binds a name to a handler.
func (adapter *WorkerPoolAdapter) Register(name string, handler Handler) error {
	return adapter.pool.registerHandler(name, handler)
}

// Perform sends a new job to the queue, now - to be executed as soon as a worker is available
func (adapter *WorkerPoolAdapter) Perform(ctx context.Context, job JobParams) error {
	logg.Infof("Enqueuing job: %v", job.Name)

	err := adapter.pool.enqueue(ctx, job)
	if errors.Is(err, models.ErrDuplicateJob) {
		logg.Warnf("Duplicate job already in queue for: %v", job.Name)
		return nil
	}

	if err != nil {
		return fmt.Errorf("error enqueuing job: %v, %v", job.Name, err)
	}

	return nil
}

// PerformAt schedules a job to be queued once 'at' is reached. Times in the past
// are queued straight away.
func (adapter *WorkerPoolAdapter) PerformAt(ctx context.Context, at time.Time, job JobParams) error {
	if !at.After(time.Now()) {
		return adapter.Perform(ctx, job)
	}

	logg.Infof("Scheduling job: %v at %v", job.Name, at.Format(time.RFC3339))

	err := adapter.pool.enqueueAt(ctx, at, job)
	if errors.Is(err, models.ErrDuplicateJob) {
		logg.Warnf("Duplicate job already scheduled for: %v", job.Name)
		return nil
	}

	if err != nil {
		return fmt.Errorf("error scheduling job: %v, %v", job.Name, err)
	}

	return nil
}

// PerformIn schedules a job to be queued after 'delay'.
func (adapter *WorkerPoolAdapter) PerformIn(ctx context.Context, delay time.Duration, job JobParams) error {
	return adapter.PerformAt(ctx, time.Now().Add(delay), job)
}

// PeriodicallyPerform adds a job to the queue (to be executed)
// periodically, based on the 'cronExpression' expression provided
func (adapter *WorkerPoolAdapter) PeriodicallyPerform(cronExpression string, job JobParams) error {
	_, err := adapter.cronScheduler.Cron(cronExpression).Tag(job.Name).
		Do(
			func(job JobParams) {
				err := adapter.Perform(context.Background(), job)
				if err != nil {
					logg.Error(err)
				}
			},
			job,
		)
	return err
}

func (adapter *WorkerPoolAdapter) RemovePeriodicJob(jobName string) {
	adapter.cronScheduler.RemoveByTag(jobName)
}
