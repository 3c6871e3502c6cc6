package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

// requeuer moves jobs back into the queue: due jobs from 'scheduled', and jobs
// that stayed too long 'in-progress' (i.e. their worker died).
type requeuer struct {
	fromQueue  string
	jobs       store.JobStore
	pool       *WorkerPool
	sleep      time.Duration
	stuckAfter time.Duration
	stopChan   chan struct{}
	now        func() time.Time
}

var supportedQueues = map[string]bool{models.IN_PROGRESS_JOB: true, models.SCHEDULED_JOB: true}

func newRequeuer(fromQueue string, pool *WorkerPool, sleep, stuckAfter time.Duration) (*requeuer, error) {
	if !supportedQueues[fromQueue] {
		return nil, fmt.Errorf("%v is not a supported queue, must be in %v", fromQueue, supportedQueues)
	}

	return &requeuer{
		fromQueue:  fromQueue,
		jobs:       pool.jobs,
		pool:       pool,
		sleep:      sleep,
		stuckAfter: stuckAfter,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}, nil
}

func (r *requeuer) start() {
	go r.loop()
}

func (r *requeuer) stop() {
	r.stopChan <- struct{}{}
}

func (r *requeuer) loop() {
	rateLimiter := time.NewTicker(DefaultTickerDuration)
	defer rateLimiter.Stop()

	r.logInfof("Starting job requeuer")
	for {
		select {
		case <-r.stopChan:
			r.logInfof("Stopping job requeuer")
			return
		case <-rateLimiter.C:
			job, err := r.nextJob()

			// If no job found, sleep for 'sleep' before looking again
			if errors.Is(err, store.ErrNotFound) {
				rateLimiter.Reset(nonZero(r.sleep))
				continue
			}

			if err != nil {
				r.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			r.requeue(job)
			rateLimiter.Reset(DefaultTickerDuration)
		}
	}
}

func (r *requeuer) nextJob() (*models.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.fromQueue == models.IN_PROGRESS_JOB {
		return r.jobs.NextStuckJob(ctx, r.now().Add(-r.stuckAfter))
	}
	return r.jobs.NextDueScheduledJob(ctx, r.now())
}

func (r *requeuer) requeue(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job.Claimed = false
	job.Status = models.ENQUEUED_JOB

	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		r.logError(err)
		return
	}

	r.pool.wake()
	r.logInfof("job with id=%v, name=%v requeued", job.ID, job.Name)
}

func (r *requeuer) logInfof(template string, args ...interface{}) {
	prefix := colors.Yellow(fmt.Sprintf("[%s job requeuer] ", r.fromQueue))
	logg.Infof(prefix+template, args...)
}

func (r *requeuer) logError(args ...interface{}) {
	prefix := colors.Red(fmt.Sprintf("[%s job requeuer] ", r.fromQueue))
	logg.Error(append([]interface{}{prefix}, args...)...)
}
