// Package scheduler turns alerts into persisted sendAlert jobs: immediately,
// at their scheduled time, and again on every repeat interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/delivery"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/work"
)

const (
	SEND_ALERT_HANDLER = "sendAlert"
	ALERT_ID_ARG       = "alertId"
)

var (
	logg = logger.NewLogger()

	ErrMissingAlertID = errors.New("job args are missing an alert id")
)

// Queue is the persisted work queue the scheduler enqueues into.
type Queue interface {
	Register(name string, handler work.Handler) error
	Perform(ctx context.Context, job work.JobParams) error
	PerformAt(ctx context.Context, at time.Time, job work.JobParams) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, alertID string) (*delivery.Report, error)
}

type AlertScheduler struct {
	alerts     store.AlertStore
	queue      Queue
	dispatcher Dispatcher
	now        func() time.Time
}

// NewAlertScheduler registers the sendAlert handler on 'queue', so it must be
// created before the queue starts.
func NewAlertScheduler(alerts store.AlertStore, queue Queue, dispatcher Dispatcher) (*AlertScheduler, error) {
	scheduler := &AlertScheduler{
		alerts:     alerts,
		queue:      queue,
		dispatcher: dispatcher,
		now:        time.Now,
	}

	if err := queue.Register(SEND_ALERT_HANDLER, scheduler.sendAlert); err != nil {
		return nil, err
	}

	return scheduler, nil
}

// Schedule queues the first dispatch of 'alert'. Alerts scheduled in the past
// are dispatched right away.
func (s *AlertScheduler) Schedule(ctx context.Context, alert *models.Alert) error {
	if alert.IsScheduled && alert.ScheduledAt != nil && alert.ScheduledAt.After(s.now()) {
		alert.NextRunAt = alert.ScheduledAt
		if err := s.alerts.SetAlertNextRun(ctx, alert.ID, *alert.ScheduledAt); err != nil {
			return err
		}

		logg.Infof("%s alert %v scheduled for %v", colors.Blue("[scheduler]"), alert.ID, alert.ScheduledAt.Format(time.RFC3339))
		return s.queue.PerformAt(ctx, *alert.ScheduledAt, jobParams(alert.ID))
	}

	return s.queue.Perform(ctx, jobParams(alert.ID))
}

func (s *AlertScheduler) sendAlert(ctx context.Context, args map[string]interface{}) error {
	alertID, ok := args[ALERT_ID_ARG].(string)
	if !ok || alertID == "" {
		return ErrMissingAlertID
	}

	alert, err := s.alerts.GetAlert(ctx, alertID)
	if errors.Is(err, store.ErrNotFound) {
		logg.Infof("%s alert %v no longer exists, nothing to send", colors.Blue("[scheduler]"), alertID)
		return nil
	}
	if err != nil {
		return err
	}

	if alert.Status != models.ACTIVE_ALERT {
		logg.Infof("%s alert %v is %v, nothing to send", colors.Blue("[scheduler]"), alertID, alert.Status)
		return nil
	}

	// The next occurrence is queued before dispatching, so a retried dispatch
	// finds it already queued instead of queuing it twice
	if alert.IsRepeated {
		if err := s.scheduleNext(ctx, alert); err != nil {
			return err
		}
	}

	_, err = s.dispatcher.Dispatch(ctx, alertID)
	return err
}

// scheduleNext queues the next occurrence of a repeating alert one interval from now.
func (s *AlertScheduler) scheduleNext(ctx context.Context, alert *models.Alert) error {
	next := models.NextOccurrence(alert.RepeatInterval, s.now())
	alert.NextRunAt = &next
	if err := s.alerts.SetAlertNextRun(ctx, alert.ID, next); err != nil {
		return fmt.Errorf("scheduleNext %v: %w", alert.ID, err)
	}

	logg.Infof("%s alert %v repeats %v, next run at %v",
		colors.Blue("[scheduler]"), alert.ID, alert.RepeatInterval, next.Format(time.RFC3339))

	return s.queue.PerformAt(ctx, next, jobParams(alert.ID))
}

func jobName(alertID string) string {
	return fmt.Sprintf("%s:%s", SEND_ALERT_HANDLER, alertID)
}

func jobParams(alertID string) work.JobParams {
	return work.JobParams{
		Name:    jobName(alertID),
		Handler: SEND_ALERT_HANDLER,
		Unique:  true,
		Args:    map[string]interface{}{ALERT_ID_ARG: alertID},
	}
}
