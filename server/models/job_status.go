package models

const (
	ENQUEUED_JOB    = "enqueued"
	IN_PROGRESS_JOB = "in-progress"
	SUCCESSFUL_JOB  = "successful"
	DEAD_JOB        = "dead"
	SCHEDULED_JOB   = "scheduled"
)

var JobStatusNameMap = map[string]bool{
	ENQUEUED_JOB:    true,
	IN_PROGRESS_JOB: true,
	SUCCESSFUL_JOB:  true,
	DEAD_JOB:        true,
	SCHEDULED_JOB:   true,
}

type JobsStats struct {
	EnqueuedJobCount   int64 `json:"enqueuedJobCount"`
	ScheduledJobCount  int64 `json:"scheduledJobCount"`
	InProgressJobCount int64 `json:"inProgressJobCount"`
	SuccessfulJobCount int64 `json:"successfulJobCount"`
	DeadJobCount       int64 `json:"deadJobCount"`
}
