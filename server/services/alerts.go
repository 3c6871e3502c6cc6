package services

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

type AlertScheduler interface {
	Schedule(ctx context.Context, alert *models.Alert) error
}

type AlertStore interface {
	store.AlertStore
	store.DeliveryStore
}

type CreateAlertInput struct {
	Title          string    `json:"title" validate:"required,min=1,max=200"`
	Message        string    `json:"message" validate:"required,min=1,max=1000"`
	Priority       string    `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH EMERGENCY"`
	VillageID      string    `json:"villageId" validate:"required"`
	Channels       *[]string `json:"channels"`
	IsScheduled    bool      `json:"isScheduled"`
	ScheduledAt    string    `json:"scheduledAt"`
	IsRepeated     bool      `json:"isRepeated"`
	RepeatInterval string    `json:"repeatInterval"`
}

type UpdateAlertInput struct {
	Title    *string `json:"title"`
	Message  *string `json:"message"`
	Priority *string `json:"priority"`
	Status   *string `json:"status"`
}

type AlertService struct {
	alerts    AlertStore
	emitter   Emitter
	scheduler AlertScheduler
}

func NewAlertService(alerts AlertStore, emitter Emitter, scheduler AlertScheduler) *AlertService {
	return &AlertService{alerts: alerts, emitter: emitterOrNop(emitter), scheduler: scheduler}
}

// Create persists a new alert from 'sender', announces it to every connected
// client when it has the IN_APP channel & hands it to the scheduler. Scheduling
// problems are logged, the alert is created either way.
func (s *AlertService) Create(ctx context.Context, sender *models.User, input CreateAlertInput) (*models.Alert, error) {
	alert, err := input.toAlert()
	if err != nil {
		return nil, err
	}

	alert.SenderID = sender.ID
	alert.SenderName = sender.Name
	alert.SenderRole = sender.Role
	alert.Status = models.ACTIVE_ALERT

	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, errors.Wrap(err, "failed to create alert")
	}

	if alert.HasChannel(models.IN_APP_CHANNEL) {
		s.emitter.Broadcast(NEW_ALERT_EVENT, alert)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, alert); err != nil {
			logg.Errorf("%s unable to schedule alert %v: %v", colors.Red("[alerts]"), alert.ID, err)
		}
	}

	return alert, nil
}

func (input CreateAlertInput) toAlert() (*models.Alert, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	channels, err := normalizeChannels(input.Channels)
	if err != nil {
		return nil, err
	}

	alert := &models.Alert{
		Title:          input.Title,
		Message:        input.Message,
		Priority:       input.Priority,
		VillageID:      input.VillageID,
		Channels:       channels,
		IsScheduled:    input.IsScheduled,
		IsRepeated:     input.IsRepeated,
		RepeatInterval: input.RepeatInterval,
	}

	if input.IsScheduled {
		if err := validateField("scheduledAt", input.ScheduledAt, "required,time_stamp"); err != nil {
			return nil, err
		}
	}
	if input.ScheduledAt != "" {
		scheduledAt, err := parseTimestamp(input.ScheduledAt)
		if err != nil {
			return nil, invalid(`"scheduledAt" must be a valid date`)
		}
		alert.ScheduledAt = &scheduledAt
	}

	if alert.RepeatInterval == "" {
		alert.RepeatInterval = models.DAILY_REPEAT
	}
	if err := validateField("repeatInterval", alert.RepeatInterval, "oneof=daily weekly monthly"); err != nil {
		return nil, err
	}

	return alert, nil
}

// normalizeChannels defaults a missing channel list to IN_APP & collapses duplicates.
// An explicitly empty list is rejected.
func normalizeChannels(channels *[]string) ([]string, error) {
	if channels == nil {
		return []string{models.IN_APP_CHANNEL}, nil
	}

	if err := validateField("channels", *channels, "min=1"); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var normalized []string
	for i, channel := range *channels {
		if !models.ChannelNameMap[channel] {
			return nil, invalid(describeChannel(i))
		}
		if seen[channel] {
			continue
		}
		seen[channel] = true
		normalized = append(normalized, channel)
	}

	return normalized, nil
}

func describeChannel(index int) string {
	return fmt.Sprintf(`"channels[%d]" must be one of [IN_APP, SMS, MISSED_CALL]`, index)
}

// List never fails; persistence errors are logged & an empty list returned.
func (s *AlertService) List(ctx context.Context, filter models.AlertFilter) []models.Alert {
	alerts, err := s.alerts.ListAlerts(ctx, filter)
	if err != nil {
		logg.Errorf("%s unable to list alerts: %v", colors.Red("[alerts]"), err)
		return []models.Alert{}
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts
}

func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Alert")
	}
	return alert, nil
}

func (s *AlertService) Update(ctx context.Context, id string, input UpdateAlertInput) (*models.Alert, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	alert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		alert.Title = *input.Title
	}
	if input.Message != nil {
		alert.Message = *input.Message
	}
	if input.Priority != nil {
		alert.Priority = *input.Priority
	}
	if input.Status != nil {
		alert.Status = *input.Status
	}

	if err := s.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, notFoundOr(errors.Wrap(err, "failed to update alert"), "Alert")
	}

	return alert, nil
}

func (input UpdateAlertInput) validate() error {
	if input.Title != nil {
		if err := validateField("title", *input.Title, "min=1,max=200"); err != nil {
			return err
		}
	}
	if input.Message != nil {
		if err := validateField("message", *input.Message, "min=1,max=1000"); err != nil {
			return err
		}
	}
	if input.Priority != nil {
		if err := validateField("priority", *input.Priority, "oneof=LOW MEDIUM HIGH EMERGENCY"); err != nil {
			return err
		}
	}
	if input.Status != nil {
		if err := validateField("status", *input.Status, "oneof=ACTIVE COMPLETED ARCHIVED"); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the alert & its delivery records. A pending sendAlert job finds
// the alert gone & ends the repeat chain.
func (s *AlertService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.alerts.DeleteAlert(ctx, id); err != nil {
		return notFoundOr(errors.Wrap(err, "failed to delete alert"), "Alert")
	}

	if err := s.alerts.DeleteDeliveries(ctx, id); err != nil {
		logg.Errorf("%s unable to delete deliveries of alert %v: %v", colors.Red("[alerts]"), id, err)
	}

	return nil
}

// Deliveries reports every delivery attempt recorded for alert 'id'.
func (s *AlertService) Deliveries(ctx context.Context, id string) ([]models.AlertDelivery, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	deliveries, err := s.alerts.ListDeliveries(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deliveries")
	}
	if deliveries == nil {
		deliveries = []models.AlertDelivery{}
	}
	return deliveries, nil
}
