package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
)

const (
	// Time allowed to write a message to the peer.
	WRITE_WAIT = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	PONG_WAIT = 60 * time.Second

	// Send pings to peer with this period. Must be less than PONG_WAIT.
	PING_PERIOD = (PONG_WAIT * 9) / 10

	MAX_MESSAGE_SIZE = 64 * 1024
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one authenticated socket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	user *models.User
}

func newClient(hub *Hub, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, SEND_BUFFER_SIZE),
		user: user,
	}
}

// readPump decodes frames from the connection & hands them to 'handle' until the
// connection fails or is closed.
func (c *Client) readPump(handle func(c *Client, frame inboundFrame), onClose func(c *Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(MAX_MESSAGE_SIZE)
	c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logg.Warnf("%s connection of user %v closed: %v", colors.Yellow("[gateway]"), c.user.ID, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.emit(ERROR_EVENT, errorPayload{Message: "Invalid event"})
			continue
		}

		handle(c, frame)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(PING_PERIOD)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// emit queues an event for this client only.
func (c *Client) emit(event string, data interface{}) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}

	var slow []*Client
	c.hub.mu.RLock()
	if c.hub.clients[c] {
		slow = c.hub.sendAll(map[*Client]bool{c: true}, msg, nil)
	}
	c.hub.mu.RUnlock()

	c.hub.drop(slow)
}
