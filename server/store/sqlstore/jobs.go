package sqlstore

import (
	"context"
	"time"

	"github.com/villagevault/villagevault/server/models"
	"gorm.io/gorm"
)

func (s *SQLStore) CreateJob(ctx context.Context, job *models.Job, unique bool) error {
	if job.Status == "" {
		job.Status = models.ENQUEUED_JOB
	}

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if unique {
			// A job with the same name waiting in the queue (now or later) makes this one a duplicate
			var count int64
			err := tx.Model(&models.Job{}).
				Where("name = ? AND status IN ?", job.Name, []string{models.ENQUEUED_JOB, models.SCHEDULED_JOB}).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return models.ErrDuplicateJob
			}
		}
		return tx.Create(job).Error
	})
}

func (s *SQLStore) NextEnqueuedJob(ctx context.Context) (*models.Job, error) {
	job := models.Job{}
	err := s.conn(ctx).
		Where("status = ? AND claimed = ?", models.ENQUEUED_JOB, false).
		Order("created_at asc").
		First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (s *SQLStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	res := s.conn(ctx).Model(&models.Job{}).
		Where("id = ? AND claimed = ? AND status = ?", id, false, models.ENQUEUED_JOB).
		Updates(map[string]interface{}{
			"claimed":    true,
			"status":     models.IN_PROGRESS_JOB,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (s *SQLStore) UpdateJob(ctx context.Context, job *models.Job) error {
	return s.save(ctx, job)
}

func (s *SQLStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job := models.Job{}
	err := s.conn(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (s *SQLStore) NextDueScheduledJob(ctx context.Context, now time.Time) (*models.Job, error) {
	job := models.Job{}
	err := s.conn(ctx).
		Where("status = ? AND enqueue_at <= ?", models.SCHEDULED_JOB, now.UTC()).
		Order("enqueue_at asc").
		First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (s *SQLStore) NextStuckJob(ctx context.Context, updatedBefore time.Time) (*models.Job, error) {
	job := models.Job{}
	err := s.conn(ctx).
		Where("status = ? AND updated_at < ?", models.IN_PROGRESS_JOB, updatedBefore.UTC()).
		Order("updated_at asc").
		First(&job).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (s *SQLStore) JobStats(ctx context.Context) (*models.JobsStats, error) {
	rows := []struct {
		Status string
		Count  int64
	}{}

	err := s.conn(ctx).Model(&models.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &models.JobsStats{}
	for _, row := range rows {
		switch row.Status {
		case models.ENQUEUED_JOB:
			stats.EnqueuedJobCount = row.Count
		case models.SCHEDULED_JOB:
			stats.ScheduledJobCount = row.Count
		case models.IN_PROGRESS_JOB:
			stats.InProgressJobCount = row.Count
		case models.SUCCESSFUL_JOB:
			stats.SuccessfulJobCount = row.Count
		case models.DEAD_JOB:
			stats.DeadJobCount = row.Count
		}
	}
	return stats, nil
}
