package work

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

var ErrPoolStarted = errors.New("worker pool already started")

// DefaultSleepBackoffs is how long idle workers wait between polls, growing
// with each consecutive empty poll.
var DefaultSleepBackoffs = []time.Duration{0, 1 * time.Second, 5 * time.Second, 10 * time.Second}

type WorkerPool struct {
	mu            sync.Mutex
	jobs          store.JobStore
	handlers      map[string]Handler
	workers       []*worker
	wakeChan      chan struct{}
	concurrency   int
	sleepBackoffs []time.Duration
	started       bool
}

func newWorkerPool(jobs store.JobStore, concurrency int, sleepBackoffs []time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = MAX_CONCURRENCY
	}
	if len(sleepBackoffs) == 0 {
		sleepBackoffs = DefaultSleepBackoffs
	}

	return &WorkerPool{
		jobs:          jobs,
		handlers:      make(map[string]Handler),
		wakeChan:      make(chan struct{}, 1),
		concurrency:   concurrency,
		sleepBackoffs: sleepBackoffs,
	}
}

// registerHandler binds a name to a job handler for all workers in pool.
// Handlers must be registered before the pool starts.
func (wp *WorkerPool) registerHandler(name string, handler Handler) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return ErrPoolStarted
	}
	if _, ok := wp.handlers[name]; ok {
		return ErrDuplicateHandler
	}
	wp.handlers[name] = handler

	return nil
}

// enqueue adds a job to the queue(to be executed) by creating a record based on 'JobParams' provided
func (wp *WorkerPool) enqueue(ctx context.Context, job JobParams) error {
	return wp.createJob(ctx, job, models.ENQUEUED_JOB, nil)
}

// enqueueAt adds a job to the scheduled queue, the scheduled requeuer moves it
// to the queue once 'at' has passed.
func (wp *WorkerPool) enqueueAt(ctx context.Context, at time.Time, job JobParams) error {
	return wp.createJob(ctx, job, models.SCHEDULED_JOB, &at)
}

func (wp *WorkerPool) createJob(ctx context.Context, job JobParams, status string, enqueueAt *time.Time) error {
	if strings.TrimSpace(job.Name) == "" || strings.TrimSpace(job.Handler) == "" {
		return fmt.Errorf("both a name & handler is required for a job")
	}

	argsAsJson, err := json.Marshal(job.Args)
	if err != nil {
		return err
	}

	// With 'Unique' set, this ensures that all jobs currently in the queue or scheduled are unique
	err = wp.jobs.CreateJob(ctx, &models.Job{
		Name:      job.Name,
		Handler:   job.Handler,
		Args:      string(argsAsJson),
		Status:    status,
		EnqueueAt: enqueueAt,
	}, job.Unique)
	if err != nil {
		return err
	}

	if status == models.ENQUEUED_JOB {
		wp.wake()
	}
	return nil
}

// wake nudges one idle worker to poll right away.
func (wp *WorkerPool) wake() {
	select {
	case wp.wakeChan <- struct{}{}:
	default:
	}
}

// start starts all workers in pool i.e the workers can start processing jobs
func (wp *WorkerPool) start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}
	wp.started = true

	wp.workers = nil
	for i := 0; i < wp.concurrency; i++ {
		w := newWorker(wp.jobs, wp.wakeChan, wp.sleepBackoffs)
		for name, handler := range wp.handlers {
			if err := w.registerHandler(name, handler); err != nil {
				logg.Panic(err)
			}
		}
		wp.workers = append(wp.workers, w)
	}

	for _, worker := range wp.workers {
		worker.start()
	}
}

// stop stops all workers in pool i.e jobs will stop being processed
func (wp *WorkerPool) stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.started {
		return
	}

	wg := sync.WaitGroup{}
	for _, w := range wp.workers {
		wg.Add(1)
		go func(w *worker) {
			w.stop()
			wg.Done()
		}(w)
	}
	wg.Wait()
	wp.started = false
}

func makeIdentifier() string {
	return uuid.NewString()[:8]
}
