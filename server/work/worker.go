package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

const MAX_FAILS = 4

var (
	DefaultTickerDuration = 5 * time.Millisecond
	TickerDurationOnError = 10 * time.Millisecond

	ErrDuplicateHandler = errors.New("handler with provided name already mapped")
	ErrUnknownHandler   = errors.New("no handler registered with provided name")

	logg = logger.NewLogger()
)

type JobParams struct {
	Name    string
	Handler string
	Unique  bool
	Args    map[string]interface{}
}

type Handler func(ctx context.Context, args map[string]interface{}) error

type worker struct {
	id            string
	jobs          store.JobStore
	handlers      map[string]Handler
	stopChan      chan struct{}
	wakeChan      <-chan struct{}
	sleepBackoffs []time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

func newWorker(jobs store.JobStore, wakeChan <-chan struct{}, sleepBackoffs []time.Duration) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		id:            makeIdentifier(),
		jobs:          jobs,
		handlers:      make(map[string]Handler),
		stopChan:      make(chan struct{}),
		wakeChan:      wakeChan,
		sleepBackoffs: sleepBackoffs,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// registerHandler binds a name to a job handler.
func (w *worker) registerHandler(name string, handler Handler) error {
	if _, ok := w.handlers[name]; ok {
		return ErrDuplicateHandler
	}

	w.handlers[name] = handler

	return nil
}

// start starts the worker loop that pulls jobs from the queue & process them
func (w *worker) start() {
	go w.loop()
}

// stop cancels the running job's context & waits for the loop to exit.
func (w *worker) stop() {
	w.cancel()
	w.stopChan <- struct{}{}
}

func (w *worker) loop() {
	var consequtiveNoJobs int
	var currentJob *models.Job
	var err error

	rateLimiter := time.NewTicker(DefaultTickerDuration)
	defer rateLimiter.Stop()

	w.logInfof("Starting worker")
	for {
		select {
		case <-w.stopChan:
			w.logInfof("Stopping worker")
			return
		case <-w.wakeChan:
			consequtiveNoJobs = 0
			rateLimiter.Reset(DefaultTickerDuration)
		case <-rateLimiter.C:
			currentJob, err = w.jobs.NextEnqueuedJob(w.ctx)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// If no job found, slowly increase the wait time between each job fetch
					// using 'sleepBackoffs'. To reduce db hit when it's not necessary.
					consequtiveNoJobs++
					idx := consequtiveNoJobs
					if idx >= len(w.sleepBackoffs) {
						idx = len(w.sleepBackoffs) - 1
					}
					rateLimiter.Reset(nonZero(w.sleepBackoffs[idx]))
					continue
				}

				w.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			claimed, err := w.jobs.ClaimJob(w.ctx, currentJob.ID)
			if err != nil {
				w.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			if !claimed {
				rateLimiter.Reset(DefaultTickerDuration)
				continue
			}

			w.logInfof("claimed job with id=%v, name=%v", currentJob.ID, currentJob.Name)

			w.processJob(currentJob)
			rateLimiter.Reset(DefaultTickerDuration)
			consequtiveNoJobs = 0
		}
	}
}

func (w *worker) processJob(job *models.Job) {
	// Reload so the status & claim written by ClaimJob aren't overwritten later
	claimedJob, err := w.jobs.GetJob(w.ctx, job.ID)
	if err == nil {
		job = claimedJob
	}

	handler, ok := w.handlers[job.Handler]
	if !ok {
		w.determineFailedJobFate(job, fmt.Errorf("%w: %q", ErrUnknownHandler, job.Handler))
		return
	}

	args := make(map[string]interface{})
	if job.Args != "" {
		if err := json.Unmarshal([]byte(job.Args), &args); err != nil {
			w.logError(err)
			w.determineFailedJobFate(job, err)
			return
		}
	}

	err = handler(w.ctx, args)
	if err != nil {
		// Jobs interrupted by a shutdown go back to the queue without counting as a failure
		if w.ctx.Err() != nil {
			w.releaseJob(job)
			return
		}

		w.logError(err)
		w.determineFailedJobFate(job, err)
		return
	}
	w.markJobAsSuccessful(job)
}

func (w *worker) determineFailedJobFate(job *models.Job, runError error) {
	job.Fails++
	job.Claimed = false
	job.LastError = runError.Error()

	// For job with Fails >= MAX_FAILS mark as DEAD else requeue the job to be retried
	if job.Fails >= MAX_FAILS {
		job.Status = models.DEAD_JOB
	} else {
		job.Status = models.ENQUEUED_JOB
	}

	w.updateJob(job)
}

func (w *worker) markJobAsSuccessful(job *models.Job) {
	job.Claimed = false
	job.Status = models.SUCCESSFUL_JOB

	w.updateJob(job)
}

func (w *worker) releaseJob(job *models.Job) {
	job.Claimed = false
	job.Status = models.ENQUEUED_JOB

	w.updateJob(job)
}

// updateJob persists the job's fate. It runs after a shutdown was requested, so
// it doesn't use the worker's context.
func (w *worker) updateJob(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.jobs.UpdateJob(ctx, job); err != nil {
		w.logError(err)
		return
	}
	w.logInfof("job with id=%v completed with status=%v", job.ID, job.Status)
}

func (w *worker) logInfof(template string, args ...interface{}) {
	prefix := colors.Yellow(fmt.Sprintf("[worker %v] ", w.id))
	logg.Infof(prefix+template, args...)
}

func (w *worker) logError(args ...interface{}) {
	prefix := colors.Red(fmt.Sprintf("[worker %v] ", w.id))
	logg.Error(append([]interface{}{prefix}, args...)...)
}

func nonZero(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTickerDuration
	}
	return d
}
