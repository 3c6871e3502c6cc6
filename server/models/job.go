package models

import (
	"errors"
	"time"
)

var ErrDuplicateJob = errors.New("job with the given name already exists in queue")

type Job struct {
	BaseModel
	Fails     int        `json:"fails"`
	Name      string     `json:"name" gorm:"index"`
	Handler   string     `json:"handler"`
	Args      string     `json:"args"`
	LastError string     `json:"lastError"`
	Claimed   bool       `json:"claimed" gorm:"default:false"`
	Status    string     `json:"status" gorm:"index"`
	EnqueueAt *time.Time `json:"enqueueAt,omitempty"`
}

// IsQueued is true for jobs still waiting to run, either enqueued or scheduled for later.
func (job *Job) IsQueued() bool {
	return job.Status == ENQUEUED_JOB || job.Status == SCHEDULED_JOB
}

// IsDue reports whether a scheduled job should move into the queue at 'now'.
func (job *Job) IsDue(now time.Time) bool {
	return job.Status == SCHEDULED_JOB && job.EnqueueAt != nil && !job.EnqueueAt.After(now)
}
