// Package gateway is VillageVault's real-time socket server. Connections are
// authenticated with a bearer token, put in a room named after their user id &
// may join their village room on request.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/services"
	"github.com/villagevault/villagevault/server/store"
)

const (
	JOIN_VILLAGE_EVENT      = "joinVillage"
	TYPING_EVENT            = "typing"
	MESSAGE_READ_EVENT      = "messageRead"
	SET_ONLINE_STATUS_EVENT = "setOnlineStatus"
	SEND_MESSAGE_EVENT      = "sendMessage"

	USER_STATUS_CHANGE_EVENT = "userStatusChange"
	USER_TYPING_EVENT        = "userTyping"
	MESSAGES_READ_EVENT      = "messagesRead"
	ERROR_EVENT              = "error"

	EVENT_TIMEOUT = 5 * time.Second
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type Messages interface {
	Create(ctx context.Context, sender *models.User, input services.CreateMessageInput) (*models.Message, error)
	MarkRead(ctx context.Context, senderID, readerID string) (int64, error)
}

type Store interface {
	store.UserStore
	store.VillageStore
}

type userStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type userTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type readPayload struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

type messagesRead struct {
	ReaderID       string `json:"readerId"`
	ConversationID string `json:"conversationId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type Gateway struct {
	hub      *Hub
	auth     Authenticator
	store    Store
	messages Messages
	upgrader websocket.Upgrader
}

// New returns a gateway accepting connections from 'allowedOrigin'. An empty
// origin or "*" accepts any origin.
func New(hub *Hub, authenticator Authenticator, st Store, messages Messages, allowedOrigin string) *Gateway {
	g := &Gateway{hub: hub, auth: authenticator, store: st, messages: messages}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigin),
	}
	return g
}

func (g *Gateway) Hub() *Hub {
	return g.hub
}

// ServeWS authenticates the request & upgrades it to a socket connection.
func (g *Gateway) ServeWS(rw http.ResponseWriter, r *http.Request) {
	user, err := g.auth.Authenticate(r.Context(), requestToken(r))
	if err != nil {
		refuse(rw, err)
		return
	}

	conn, err := g.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		logg.Warnf("%s upgrade failed for user %v: %v", colors.Yellow("[gateway]"), user.ID, err)
		return
	}

	client := newClient(g.hub, conn, user)
	g.hub.register(client)
	g.hub.Join(client, user.ID)
	g.hub.BroadcastExcept(USER_STATUS_CHANGE_EVENT, userStatus{UserID: user.ID, IsOnline: true}, client)

	logg.Infof("%s user %v connected", colors.Blue("[gateway]"), user.ID)

	go client.writePump()
	go client.readPump(g.handle, g.disconnect)
}

func (g *Gateway) disconnect(c *Client) {
	if !g.hub.unregister(c) {
		return
	}

	logg.Infof("%s user %v disconnected", colors.Blue("[gateway]"), c.user.ID)

	// Other tabs of the same user keep them online
	if !g.hub.IsOnline(c.user.ID) {
		g.hub.BroadcastExcept(USER_STATUS_CHANGE_EVENT, userStatus{UserID: c.user.ID, IsOnline: false}, c)
	}
}

func (g *Gateway) handle(c *Client, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), EVENT_TIMEOUT)
	defer cancel()

	switch frame.Event {
	case JOIN_VILLAGE_EVENT:
		g.joinVillage(ctx, c)
	case TYPING_EVENT:
		var payload typingPayload
		if !decode(c, frame, &payload) {
			return
		}
		if payload.ConversationID == "" {
			c.emit(ERROR_EVENT, errorPayload{Message: "conversationId is required"})
			return
		}
		g.hub.EmitToRoomExcept(payload.ConversationID, USER_TYPING_EVENT,
			userTyping{UserID: c.user.ID, IsTyping: payload.IsTyping}, c)
	case MESSAGE_READ_EVENT:
		var payload readPayload
		if !decode(c, frame, &payload) {
			return
		}
		g.messageRead(ctx, c, payload)
	case SET_ONLINE_STATUS_EVENT:
		var isOnline bool
		if !decode(c, frame, &isOnline) {
			return
		}
		g.hub.BroadcastExcept(USER_STATUS_CHANGE_EVENT, userStatus{UserID: c.user.ID, IsOnline: isOnline}, c)
	case SEND_MESSAGE_EVENT:
		var input services.CreateMessageInput
		if !decode(c, frame, &input) {
			return
		}
		g.sendMessage(ctx, c, input)
	default:
		c.emit(ERROR_EVENT, errorPayload{Message: "Unknown event: " + frame.Event})
	}
}

func (g *Gateway) joinVillage(ctx context.Context, c *Client) {
	user, err := g.store.GetUser(ctx, c.user.ID)
	if err != nil {
		logg.Errorf("%s unable to load user %v: %v", colors.Red("[gateway]"), c.user.ID, err)
		c.emit(ERROR_EVENT, errorPayload{Message: "Unable to join village"})
		return
	}

	room := models.VillageRoom(user.PinCode, user.VillageName)
	if village, err := g.store.GetVillage(ctx, user.VillageID); err == nil {
		room = village.Room()
	}

	g.hub.Join(c, room)
	logg.Infof("%s user %v joined %v", colors.Blue("[gateway]"), user.ID, room)
}

func (g *Gateway) messageRead(ctx context.Context, c *Client, payload readPayload) {
	if payload.SenderID == "" {
		c.emit(ERROR_EVENT, errorPayload{Message: "senderId is required"})
		return
	}

	if _, err := g.messages.MarkRead(ctx, payload.SenderID, c.user.ID); err != nil {
		logg.Errorf("%s unable to mark messages read: %v", colors.Red("[gateway]"), err)
		c.emit(ERROR_EVENT, errorPayload{Message: "Unable to mark messages as read"})
		return
	}

	g.hub.EmitToRoom(payload.SenderID, MESSAGES_READ_EVENT,
		messagesRead{ReaderID: c.user.ID, ConversationID: payload.ConversationID})
}

// sendMessage persists the message; MessageService emits newMessage to the village room.
func (g *Gateway) sendMessage(ctx context.Context, c *Client, input services.CreateMessageInput) {
	if input.VillageID == "" {
		input.VillageID = c.user.VillageID
	}

	_, err := g.messages.Create(ctx, c.user, input)
	if err == nil {
		return
	}

	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		c.emit(ERROR_EVENT, errorPayload{Message: validationErr.Message})
		return
	}

	logg.Errorf("%s unable to send message for user %v: %v", colors.Red("[gateway]"), c.user.ID, err)
	c.emit(ERROR_EVENT, errorPayload{Message: "Failed to send message"})
}

func decode(c *Client, frame inboundFrame, v interface{}) bool {
	if len(frame.Data) == 0 {
		c.emit(ERROR_EVENT, errorPayload{Message: "Missing data for " + frame.Event})
		return false
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		c.emit(ERROR_EVENT, errorPayload{Message: "Invalid data for " + frame.Event})
		return false
	}
	return true
}

// requestToken reads the bearer token from the 'token' query param, falling
// back to the Authorization header.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func refuse(rw http.ResponseWriter, err error) {
	message := "Authentication error"
	var unauthorizedErr *services.UnauthorizedError
	if errors.As(err, &unauthorizedErr) {
		message = unauthorizedErr.Message
	} else {
		logg.Errorf("%s unable to authenticate connection: %v", colors.Red("[gateway]"), err)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(rw).Encode(map[string]interface{}{"success": false, "message": message})
}

func originChecker(allowedOrigin string) func(r *http.Request) bool {
	allowedOrigin = strings.TrimSuffix(allowedOrigin, "/")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Scheme+"://"+u.Host, allowedOrigin)
	}
}
