package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/store/memstore"
)

const (
	SARPANCH_PHONE = "7286973788"
	VILLAGER_PHONE = "9849119427"
	DEMO_ROOM      = "522508-Test Village"
)

type emitted struct {
	room  string
	event string
	data  interface{}
}

type recordingEmitter struct {
	mu         sync.Mutex
	emitted    []emitted
	broadcasts []emitted
}

func (e *recordingEmitter) EmitToRoom(room, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, emitted{room: room, event: event, data: data})
}

func (e *recordingEmitter) Broadcast(event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcasts = append(e.broadcasts, emitted{event: event, data: data})
}

type fixture struct {
	store    *memstore.MemStore
	emitter  *recordingEmitter
	sarpanch *models.User
	villager *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s := memstore.New()
	require.NoError(t, store.SeedDemoData(ctx, s))

	sarpanch, err := s.GetUserByPhone(ctx, SARPANCH_PHONE)
	require.NoError(t, err)
	villager, err := s.GetUserByPhone(ctx, VILLAGER_PHONE)
	require.NoError(t, err)

	return &fixture{store: s, emitter: &recordingEmitter{}, sarpanch: sarpanch, villager: villager}
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}
