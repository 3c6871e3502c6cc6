package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

type SOSStore interface {
	store.SOSStore
	store.VillageStore
}

type CreateSOSInput struct {
	Type        string   `json:"type" validate:"required,oneof=MEDICAL SAFETY FIRE POLICE OTHER"`
	Description string   `json:"description" validate:"required,min=1,max=1000"`
	Location    string   `json:"location" validate:"required,min=1,max=200"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	Address     string   `json:"address" validate:"max=500"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH EMERGENCY"`
	VillageID   string   `json:"villageId" validate:"required"`
}

type UpdateSOSInput struct {
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

type SOSStatusUpdate struct {
	ReportID string `json:"reportId"`
	Status   string `json:"status"`
}

type SOSService struct {
	reports SOSStore
	emitter Emitter
}

func NewSOSService(reports SOSStore, emitter Emitter) *SOSService {
	return &SOSService{reports: reports, emitter: emitterOrNop(emitter)}
}

// Create files a PENDING report on behalf of 'reporter' & raises sosAlert in
// the report's village room.
func (s *SOSService) Create(ctx context.Context, reporter *models.User, input CreateSOSInput) (*models.SOSReport, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	report := &models.SOSReport{
		Type:          input.Type,
		Description:   input.Description,
		Location:      input.Location,
		Latitude:      input.Latitude,
		Longitude:     input.Longitude,
		Address:       input.Address,
		Priority:      input.Priority,
		Status:        models.PENDING_SOS,
		VillageID:     input.VillageID,
		ReporterID:    reporter.ID,
		ReporterName:  reporter.Name,
		ReporterPhone: reporter.PhoneNumber,
		ReporterRole:  reporter.Role,
	}
	if report.Priority == "" {
		report.Priority = models.HIGH_PRIORITY
	}

	if err := s.reports.CreateSOSReport(ctx, report); err != nil {
		return nil, errors.Wrap(err, "failed to create SOS report")
	}

	s.emitToVillage(ctx, report, SOS_ALERT_EVENT, report, reporter)

	return report, nil
}

// List never fails; persistence errors are logged & an empty list returned.
func (s *SOSService) List(ctx context.Context, filter models.SOSFilter) []models.SOSReport {
	if filter.Status != "" {
		filter.Status, _ = models.NormalizeSOSStatus(filter.Status)
	}

	reports, err := s.reports.ListSOSReports(ctx, filter)
	if err != nil {
		logg.Errorf("%s unable to list SOS reports: %v", colors.Red("[sos]"), err)
		return []models.SOSReport{}
	}
	if reports == nil {
		reports = []models.SOSReport{}
	}
	return reports
}

func (s *SOSService) Get(ctx context.Context, id string) (*models.SOSReport, error) {
	report, err := s.reports.GetSOSReport(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "SOS report")
	}
	return report, nil
}

// UpdateStatus moves report 'id' to 'status' (case insensitive) & notifies the
// report's village room.
func (s *SOSService) UpdateStatus(ctx context.Context, id, status string) (*models.SOSReport, error) {
	if status == "" {
		return nil, invalid("Status is required")
	}

	normalized, ok := models.NormalizeSOSStatus(status)
	if !ok {
		return nil, invalid("Invalid status")
	}

	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report.Status = normalized
	if err := s.reports.UpdateSOSReport(ctx, report); err != nil {
		return nil, notFoundOr(errors.Wrap(err, "failed to update SOS status"), "SOS report")
	}

	s.emitToVillage(ctx, report, SOS_STATUS_UPDATE_EVENT, SOSStatusUpdate{ReportID: report.ID, Status: normalized}, nil)

	return report, nil
}

// Update applies a partial update. Status goes through the same canonical set
// as UpdateStatus and a change is announced the same way.
func (s *SOSService) Update(ctx context.Context, id string, input UpdateSOSInput) (*models.SOSReport, error) {
	var status string
	if input.Status != nil {
		var ok bool
		status, ok = models.NormalizeSOSStatus(*input.Status)
		if !ok {
			return nil, invalid(`"status" must be one of [PENDING, ACKNOWLEDGED, IN_PROGRESS, RESOLVED, CANCELLED]`)
		}
	}
	if input.Priority != nil {
		if err := validateField("priority", *input.Priority, "oneof=LOW MEDIUM HIGH EMERGENCY"); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		if err := validateField("description", *input.Description, "min=1,max=1000"); err != nil {
			return nil, err
		}
	}
	if input.Location != nil {
		if err := validateField("location", *input.Location, "min=1,max=200"); err != nil {
			return nil, err
		}
	}

	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	statusChanged := status != "" && status != report.Status
	if status != "" {
		report.Status = status
	}
	if input.Priority != nil {
		report.Priority = *input.Priority
	}
	if input.Description != nil {
		report.Description = *input.Description
	}
	if input.Location != nil {
		report.Location = *input.Location
	}

	if err := s.reports.UpdateSOSReport(ctx, report); err != nil {
		return nil, notFoundOr(errors.Wrap(err, "failed to update SOS report"), "SOS report")
	}

	if statusChanged {
		s.emitToVillage(ctx, report, SOS_STATUS_UPDATE_EVENT, SOSStatusUpdate{ReportID: report.ID, Status: report.Status}, nil)
	}

	return report, nil
}

func (s *SOSService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.reports.DeleteSOSReport(ctx, id); err != nil {
		return notFoundOr(errors.Wrap(err, "failed to delete SOS report"), "SOS report")
	}
	return nil
}

func (s *SOSService) emitToVillage(ctx context.Context, report *models.SOSReport, event string, data interface{}, fallback *models.User) {
	room, err := villageRoom(ctx, s.reports, report.VillageID, fallback)
	if err != nil {
		logg.Errorf("%s unable to resolve village room for SOS report %v: %v", colors.Red("[sos]"), report.ID, err)
		return
	}
	s.emitter.EmitToRoom(room, event, data)
}
