package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/auth/key"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/services"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/store/memstore"
)

const DEMO_ROOM = "522508-Test Village"

type testEnv struct {
	server   *httptest.Server
	hub      *Hub
	auth     *services.AuthService
	sarpanch *models.User
	villager *models.User
	store    *memstore.MemStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s := memstore.New()
	require.NoError(t, store.SeedDemoData(ctx, s))

	keyPair, err := key.GenerateKeyPair(2048)
	require.NoError(t, err)

	hub := NewHub()
	authService := services.NewAuthService(s, nil, nil, keyPair, 0)
	messages := services.NewMessageService(s, hub)

	server := httptest.NewServer(http.HandlerFunc(New(hub, authService, s, messages, "").ServeWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})

	sarpanch, err := s.GetUserByPhone(ctx, "7286973788")
	require.NoError(t, err)
	villager, err := s.GetUserByPhone(ctx, "9849119427")
	require.NoError(t, err)

	return &testEnv{server: server, hub: hub, auth: authService, sarpanch: sarpanch, villager: villager, store: s}
}

func (env *testEnv) socketURL() string {
	return "ws" + strings.TrimPrefix(env.server.URL, "http")
}

func (env *testEnv) connect(t *testing.T, user *models.User) *websocket.Conn {
	t.Helper()

	token, err := env.auth.IssueToken(user)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(env.socketURL()+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.hub.IsOnline(user.ID) }, time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: data}))
}

// nextEvent reads frames until one named 'event' arrives & decodes its data into 'v'.
func nextEvent(t *testing.T, conn *websocket.Conn, event string, v interface{}) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame inboundFrame
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %v", event)
		if frame.Event == event {
			require.NoError(t, json.Unmarshal(frame.Data, v))
			return
		}
	}
}

func TestRefusesUnauthenticatedConnections(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name     string
		query    string
		expected string
	}{
		{"no token", "", "Access denied. No token provided."},
		{"bad token", "?token=abc", "Invalid token."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(env.socketURL()+tc.query, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"success":false,"message":"`+tc.expected+`"}`, string(body))
		})
	}
}

func TestBearerHeaderAndPresence(t *testing.T) {
	env := newTestEnv(t)
	sarpanchConn := env.connect(t, env.sarpanch)

	token, err := env.auth.IssueToken(env.villager)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	villagerConn, _, err := websocket.DefaultDialer.Dial(env.socketURL(), header)
	require.NoError(t, err)

	var status userStatus
	nextEvent(t, sarpanchConn, USER_STATUS_CHANGE_EVENT, &status)
	assert.Equal(t, userStatus{UserID: env.villager.ID, IsOnline: true}, status)

	send(t, villagerConn, SET_ONLINE_STATUS_EVENT, false)
	nextEvent(t, sarpanchConn, USER_STATUS_CHANGE_EVENT, &status)
	assert.Equal(t, userStatus{UserID: env.villager.ID, IsOnline: false}, status)

	villagerConn.Close()
	assert.Eventually(t, func() bool { return !env.hub.IsOnline(env.villager.ID) }, time.Second, 5*time.Millisecond)
	nextEvent(t, sarpanchConn, USER_STATUS_CHANGE_EVENT, &status)
	assert.Equal(t, userStatus{UserID: env.villager.ID, IsOnline: false}, status)
}

func TestVillageRoomMessages(t *testing.T) {
	env := newTestEnv(t)
	sarpanchConn := env.connect(t, env.sarpanch)
	villagerConn := env.connect(t, env.villager)

	assert.Zero(t, env.hub.RoomSize(DEMO_ROOM), "village room is joined on request only")

	send(t, sarpanchConn, JOIN_VILLAGE_EVENT, nil)
	send(t, villagerConn, JOIN_VILLAGE_EVENT, nil)
	require.Eventually(t, func() bool { return env.hub.RoomSize(DEMO_ROOM) == 2 }, time.Second, 5*time.Millisecond)

	send(t, villagerConn, SEND_MESSAGE_EVENT, map[string]string{"content": "Hello everyone"})

	var message models.Message
	nextEvent(t, sarpanchConn, services.NEW_MESSAGE_EVENT, &message)
	assert.Equal(t, "Hello everyone", message.Content)
	assert.Equal(t, env.villager.ID, message.SenderID)
	assert.Equal(t, env.villager.VillageID, message.VillageID)

	stored, err := env.store.GetMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello everyone", stored.Content)

	send(t, villagerConn, SEND_MESSAGE_EVENT, map[string]string{"content": "   "})
	var errPayload errorPayload
	nextEvent(t, villagerConn, ERROR_EVENT, &errPayload)
	assert.NotEmpty(t, errPayload.Message)
}

func TestTypingAndReadReceipts(t *testing.T) {
	env := newTestEnv(t)
	sarpanchConn := env.connect(t, env.sarpanch)
	villagerConn := env.connect(t, env.villager)

	send(t, sarpanchConn, TYPING_EVENT, typingPayload{ConversationID: env.villager.ID, IsTyping: true})
	var typing userTyping
	nextEvent(t, villagerConn, USER_TYPING_EVENT, &typing)
	assert.Equal(t, userTyping{UserID: env.sarpanch.ID, IsTyping: true}, typing)

	ctx := context.Background()
	require.NoError(t, env.store.CreateMessage(ctx, &models.Message{
		Content:   "Please check",
		Type:      models.TEXT_MESSAGE,
		VillageID: env.villager.VillageID,
		SenderID:  env.villager.ID,
	}))

	send(t, sarpanchConn, MESSAGE_READ_EVENT, readPayload{SenderID: env.villager.ID, ConversationID: "village-chat"})
	var read messagesRead
	nextEvent(t, villagerConn, MESSAGES_READ_EVENT, &read)
	assert.Equal(t, messagesRead{ReaderID: env.sarpanch.ID, ConversationID: "village-chat"}, read)

	messages, err := env.store.ListMessages(ctx, models.MessageFilter{VillageID: env.villager.VillageID})
	require.NoError(t, err)
	require.NotEmpty(t, messages)
	assert.True(t, messages[0].IsRead)
}

func TestRejectsBadEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, env.villager)

	var errPayload errorPayload

	send(t, conn, "dance", nil)
	nextEvent(t, conn, ERROR_EVENT, &errPayload)
	assert.Equal(t, "Unknown event: dance", errPayload.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	nextEvent(t, conn, ERROR_EVENT, &errPayload)
	assert.Equal(t, "Invalid event", errPayload.Message)

	send(t, conn, TYPING_EVENT, nil)
	nextEvent(t, conn, ERROR_EVENT, &errPayload)
	assert.Equal(t, "Missing data for typing", errPayload.Message)
}

func TestHubRooms(t *testing.T) {
	hub := NewHub()
	alice := &Client{hub: hub, send: make(chan []byte, 4), user: &models.User{BaseModel: models.BaseModel{ID: "alice"}}}
	bob := &Client{hub: hub, send: make(chan []byte, 4), user: &models.User{BaseModel: models.BaseModel{ID: "bob"}}}

	hub.Join(alice, "room")
	assert.Zero(t, hub.RoomSize("room"), "unregistered clients can't join rooms")

	hub.register(alice)
	hub.register(bob)
	hub.Join(alice, "room")
	hub.Join(bob, "room")

	hub.EmitToRoomExcept("room", "ping", "hi", alice)
	assert.Len(t, alice.send, 0)
	assert.JSONEq(t, `{"event":"ping","data":"hi"}`, string(<-bob.send))

	assert.True(t, hub.unregister(alice))
	assert.False(t, hub.unregister(alice))
	assert.Equal(t, 1, hub.RoomSize("room"))

	_, open := <-alice.send
	assert.False(t, open)

	hub.Broadcast("ping", nil)
	assert.JSONEq(t, `{"event":"ping"}`, string(<-bob.send))
}
