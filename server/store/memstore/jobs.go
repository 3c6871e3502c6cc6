package memstore

import (
	"context"
	"time"

	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

func (s *MemStore) CreateJob(_ context.Context, job *models.Job, unique bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unique {
		for _, existing := range s.jobs {
			if existing.Name == job.Name && existing.IsQueued() {
				return models.ErrDuplicateJob
			}
		}
	}

	if job.Status == "" {
		job.Status = models.ENQUEUED_JOB
	}
	s.stamp(&job.BaseModel)
	s.jobs[job.ID] = *job
	return nil
}

// NextEnqueuedJob returns the oldest unclaimed job in the queue.
func (s *MemStore) NextEnqueuedJob(_ context.Context) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.firstJob(func(job *models.Job) bool {
		return job.Status == models.ENQUEUED_JOB && !job.Claimed
	})
}

func (s *MemStore) ClaimJob(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if job.Claimed || job.Status != models.ENQUEUED_JOB {
		return false, nil
	}

	job.Claimed = true
	job.Status = models.IN_PROGRESS_JOB
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return true, nil
}

func (s *MemStore) UpdateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return store.ErrNotFound
	}
	job.UpdatedAt = s.now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &job, nil
}

func (s *MemStore) NextDueScheduledJob(_ context.Context, now time.Time) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.firstJob(func(job *models.Job) bool {
		return job.IsDue(now)
	})
}

func (s *MemStore) NextStuckJob(_ context.Context, updatedBefore time.Time) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.firstJob(func(job *models.Job) bool {
		return job.Status == models.IN_PROGRESS_JOB && job.UpdatedAt.Before(updatedBefore)
	})
}

func (s *MemStore) JobStats(_ context.Context) (*models.JobsStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.JobsStats{}
	for _, job := range s.jobs {
		switch job.Status {
		case models.ENQUEUED_JOB:
			stats.EnqueuedJobCount++
		case models.SCHEDULED_JOB:
			stats.ScheduledJobCount++
		case models.IN_PROGRESS_JOB:
			stats.InProgressJobCount++
		case models.SUCCESSFUL_JOB:
			stats.SuccessfulJobCount++
		case models.DEAD_JOB:
			stats.DeadJobCount++
		}
	}
	return stats, nil
}

// firstJob returns the earliest inserted job matching 'match'. Caller holds a lock.
func (s *MemStore) firstJob(match func(job *models.Job) bool) (*models.Job, error) {
	var found *models.Job
	for _, job := range s.jobs {
		j := job
		if !match(&j) {
			continue
		}
		if found == nil || s.order[j.ID] < s.order[found.ID] {
			found = &j
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}
