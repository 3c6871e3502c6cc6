package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

func createSOS(t *testing.T, f *fixture, service *SOSService) *models.SOSReport {
	t.Helper()

	report, err := service.Create(context.Background(), f.villager, CreateSOSInput{
		Type:        "MEDICAL",
		Description: "Elderly neighbour collapsed",
		Location:    "Near the temple",
		VillageID:   f.villager.VillageID,
	})
	require.NoError(t, err)
	return report
}

func TestCreateSOSReport(t *testing.T) {
	f := newFixture(t)
	service := NewSOSService(f.store, f.emitter)

	report := createSOS(t, f, service)

	assert.Equal(t, models.PENDING_SOS, report.Status)
	assert.Equal(t, models.HIGH_PRIORITY, report.Priority)
	assert.Equal(t, f.villager.ID, report.ReporterID)
	assert.Equal(t, f.villager.Name, report.ReporterName)
	assert.Equal(t, f.villager.PhoneNumber, report.ReporterPhone)
	assert.Equal(t, models.VILLAGER_ROLE, report.ReporterRole)

	require.Len(t, f.emitter.emitted, 1)
	assert.Equal(t, DEMO_ROOM, f.emitter.emitted[0].room)
	assert.Equal(t, SOS_ALERT_EVENT, f.emitter.emitted[0].event)

	_, err := service.Create(context.Background(), f.villager, CreateSOSInput{
		Type:        "FLOOD",
		Description: "x",
		Location:    "y",
		VillageID:   f.villager.VillageID,
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, `"type" must be one of [MEDICAL, SAFETY, FIRE, POLICE, OTHER]`, validationErr.Message)
}

func TestUpdateSOSStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewSOSService(f.store, f.emitter)
	report := createSOS(t, f, service)

	updated, err := service.UpdateStatus(ctx, report.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.RESOLVED_SOS, updated.Status)

	stored, err := service.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RESOLVED_SOS, stored.Status)

	last := f.emitter.emitted[len(f.emitter.emitted)-1]
	assert.Equal(t, DEMO_ROOM, last.room)
	assert.Equal(t, SOS_STATUS_UPDATE_EVENT, last.event)
	assert.Equal(t, SOSStatusUpdate{ReportID: report.ID, Status: models.RESOLVED_SOS}, last.data)

	testCases := []struct {
		status   string
		expected string
	}{
		{"", "Status is required"},
		{"closed", "Invalid status"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			_, err := service.UpdateStatus(ctx, report.ID, tc.status)
			assert.EqualError(t, err, tc.expected)
		})
	}

	_, err = service.UpdateStatus(ctx, "missing", "ACKNOWLEDGED")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "SOS report not found")
}

func TestUpdateSOSReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewSOSService(f.store, f.emitter)
	report := createSOS(t, f, service)
	emittedBefore := len(f.emitter.emitted)

	updated, err := service.Update(ctx, report.ID, UpdateSOSInput{Priority: strPtr(models.EMERGENCY_PRIORITY)})
	require.NoError(t, err)
	assert.Equal(t, models.EMERGENCY_PRIORITY, updated.Priority)
	assert.Len(t, f.emitter.emitted, emittedBefore, "no status change, nothing to announce")

	updated, err = service.Update(ctx, report.ID, UpdateSOSInput{Status: strPtr("in_progress")})
	require.NoError(t, err)
	assert.Equal(t, models.IN_PROGRESS_SOS, updated.Status)
	assert.Len(t, f.emitter.emitted, emittedBefore+1)

	_, err = service.Update(ctx, report.ID, UpdateSOSInput{Location: strPtr("")})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	require.NoError(t, service.Delete(ctx, report.ID))
	_, err = service.Get(ctx, report.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSOSReportsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewSOSService(f.store, f.emitter)

	first := createSOS(t, f, service)
	createSOS(t, f, service)
	_, err := service.UpdateStatus(ctx, first.ID, models.ACKNOWLEDGED_SOS)
	require.NoError(t, err)

	assert.Len(t, service.List(ctx, models.SOSFilter{}), 2)
	assert.Len(t, service.List(ctx, models.SOSFilter{Status: "acknowledged"}), 1)
	assert.Len(t, service.List(ctx, models.SOSFilter{Limit: 1}), 1)
}
