package work

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store/memstore"
)

func TestEnqueueAt(t *testing.T) {
	ctx := context.Background()
	jobs := memstore.New()
	workerPool := newWorkerPool(jobs, MAX_CONCURRENCY, nil)

	at := time.Now().Add(time.Second)
	err := workerPool.enqueueAt(ctx, at, JobParams{
		Name:    "suits",
		Handler: "donna",
		Args: map[string]interface{}{
			"first_name": "mike",
			"last_name":  "ross",
		},
	})
	require.NoError(t, err)

	// Make sure the correct job is created & scheduled to be run
	job, err := jobs.NextDueScheduledJob(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "suits", job.Name, "The job name should match the expected job name")
	assert.Contains(t, job.Args, "mike", "Should contain the correct arg values")
	assert.Equal(t, models.SCHEDULED_JOB, job.Status, "The job should be in scheduled queue")
}

func TestRegisterAfterStart(t *testing.T) {
	workerPool := newWorkerPool(memstore.New(), MAX_CONCURRENCY, []time.Duration{10 * time.Millisecond})
	workerPool.start()
	defer workerPool.stop()

	err := workerPool.registerHandler("late", func(ctx context.Context, args map[string]interface{}) error { return nil })
	assert.ErrorIs(t, err, ErrPoolStarted)
}
