// Package services holds VillageVault's domain operations. Handlers & the
// real-time gateway call into it with an authenticated principal; it validates
// input, enforces ownership rules, persists through the store & emits events.
package services

import (
	"context"
	"errors"

	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

const (
	NEW_ALERT_EVENT         = "newAlert"
	NEW_MESSAGE_EVENT       = "newMessage"
	SOS_ALERT_EVENT         = "sosAlert"
	SOS_STATUS_UPDATE_EVENT = "sosStatusUpdate"
)

var logg = logger.NewLogger()

// Emitter pushes events to connected real-time clients.
type Emitter interface {
	EmitToRoom(room, event string, data interface{})
	Broadcast(event string, data interface{})
}

type nopEmitter struct{}

func (nopEmitter) EmitToRoom(room, event string, data interface{}) {}
func (nopEmitter) Broadcast(event string, data interface{})        {}

func emitterOrNop(emitter Emitter) Emitter {
	if emitter == nil {
		return nopEmitter{}
	}
	return emitter
}

// villageRoom resolves the real-time room of 'villageID'. When the village
// record is gone the room is rebuilt from the fallback user's pin code & village name.
func villageRoom(ctx context.Context, villages store.VillageStore, villageID string, fallback *models.User) (string, error) {
	village, err := villages.GetVillage(ctx, villageID)
	if err == nil {
		return village.Room(), nil
	}

	if errors.Is(err, store.ErrNotFound) && fallback != nil {
		return models.VillageRoom(fallback.PinCode, fallback.VillageName), nil
	}

	return "", err
}
