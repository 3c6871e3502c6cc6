package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

func TestVillageUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewDirectoryService(f.store)

	members, err := service.VillageUsers(ctx, f.sarpanch, "")
	require.NoError(t, err)

	var names []string
	for _, member := range members {
		names = append(names, member.Name)
	}
	assert.Equal(t, []string{"Gayathri", "Rohini", "Thilak Nikilesh", "Veena"}, names)

	members, err = service.VillageUsers(ctx, f.villager, models.SARPANCH_ROLE)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, f.sarpanch.ID, members[0].ID)

	_, err = service.VillageUsers(ctx, f.villager, "ADMIN")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	member, err := service.VillageUser(ctx, f.villager, f.sarpanch.ID)
	require.NoError(t, err)
	assert.Equal(t, f.sarpanch.Name, member.Name)

	outsider := &models.User{Name: "Outsider", PhoneNumber: "9000000000", VillageID: "elsewhere", IsVerified: true}
	require.NoError(t, f.store.CreateUser(ctx, outsider))
	_, err = service.VillageUser(ctx, f.villager, outsider.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchAndCurrentVillage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewDirectoryService(f.store)

	villages, err := service.SearchVillages(ctx, "522508")
	require.NoError(t, err)
	require.Len(t, villages, 1)
	assert.Equal(t, "Test Village", villages[0].Name)

	villages, err = service.SearchVillages(ctx, "999999")
	require.NoError(t, err)
	assert.Empty(t, villages)

	_, err = service.SearchVillages(ctx, "52a508")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	details, err := service.CurrentVillage(ctx, f.villager)
	require.NoError(t, err)
	assert.Equal(t, "522508", details.PinCode)
	assert.Len(t, details.Users, 5)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := NewDirectoryService(f.store)

	alerts := NewAlertService(f.store, f.emitter, nil)
	_, err := alerts.Create(ctx, f.sarpanch, validAlertInput(f.sarpanch.VillageID))
	require.NoError(t, err)

	reports := NewSOSService(f.store, f.emitter)
	createSOS(t, f, reports)

	messages := NewMessageService(f.store, f.emitter)
	_, err = messages.Create(ctx, f.villager, CreateMessageInput{Content: "Hello", VillageID: f.villager.VillageID})
	require.NoError(t, err)

	stats := service.Stats(ctx, f.villager)
	assert.Equal(t, models.VillageStats{
		TotalUsers:        5,
		TotalVillagers:    4,
		TotalAlerts:       1,
		PendingSOSReports: 1,
		RecentMessages:    1,
	}, stats)
}
