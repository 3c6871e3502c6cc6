package store

import (
	"context"
	"errors"

	"github.com/villagevault/villagevault/server/models"
)

const (
	DEMO_PIN_CODE     = "522508"
	DEMO_VILLAGE_NAME = "Test Village"
)

var demoUsers = []models.User{
	{Name: "Village Sarpanch", PhoneNumber: "7286973788", Role: models.SARPANCH_ROLE},
	{Name: "Thilak Nikilesh", PhoneNumber: "6305994096", Role: models.VILLAGER_ROLE},
	{Name: "Gayathri", PhoneNumber: "9849119427", Role: models.VILLAGER_ROLE},
	{Name: "Veena", PhoneNumber: "9494064441", Role: models.VILLAGER_ROLE},
	{Name: "Rohini", PhoneNumber: "7981738294", Role: models.VILLAGER_ROLE},
}

// SeedDemoData inserts a demo village with a verified Sarpanch & villagers, unless
// the demo village already exists.
func SeedDemoData(ctx context.Context, s Store) error {
	_, err := s.GetVillageByPinCode(ctx, DEMO_PIN_CODE)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	village := &models.Village{
		Name:     DEMO_VILLAGE_NAME,
		PinCode:  DEMO_PIN_CODE,
		District: models.DEFAULT_DISTRICT,
		State:    models.DEFAULT_STATE,
	}
	if err := s.CreateVillage(ctx, village); err != nil {
		return err
	}

	for _, demoUser := range demoUsers {
		user := demoUser
		user.VillageID = village.ID
		user.VillageName = village.Name
		user.PinCode = village.PinCode
		user.IsVerified = true

		err := s.CreateUser(ctx, &user)
		if err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}

	return nil
}
