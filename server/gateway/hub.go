package gateway

import (
	"encoding/json"
	"sync"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/logger"
)

const SEND_BUFFER_SIZE = 256

var logg = logger.NewLogger()

// Frame is the JSON envelope of every socket message, in both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub tracks live clients & the rooms they joined. Room membership only lives
// as long as the connection.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// unregister removes 'c' from every room & closes its send channel. It's safe
// to call more than once.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return false
	}

	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)

	return true
}

// Join adds 'c' to 'room'. Unknown clients are ignored.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
}

// RoomSize is the number of connections currently in 'room'.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// IsOnline reports whether the user has at least one live connection. Every
// connection joins the room named after its user id.
func (h *Hub) IsOnline(userID string) bool {
	return h.RoomSize(userID) > 0
}

func (h *Hub) EmitToRoom(room, event string, data interface{}) {
	h.EmitToRoomExcept(room, event, data, nil)
}

func (h *Hub) EmitToRoomExcept(room, event string, data interface{}, except *Client) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	slow := h.sendAll(h.rooms[room], msg, except)
	h.mu.RUnlock()

	h.drop(slow)
}

func (h *Hub) Broadcast(event string, data interface{}) {
	h.BroadcastExcept(event, data, nil)
}

func (h *Hub) BroadcastExcept(event string, data interface{}, except *Client) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	slow := h.sendAll(h.clients, msg, except)
	h.mu.RUnlock()

	h.drop(slow)
}

// sendAll must be called with at least a read lock held. Clients whose buffer
// is full are returned so they can be dropped.
func (h *Hub) sendAll(targets map[*Client]bool, msg []byte, except *Client) []*Client {
	var slow []*Client
	for c := range targets {
		if c == except {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

// drop closes the connection of each client; their read pump then unregisters them.
func (h *Hub) drop(clients []*Client) {
	for _, c := range clients {
		logg.Warnf("%s dropping slow client of user %v", colors.Yellow("[gateway]"), c.user.ID)
		c.conn.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func encode(event string, data interface{}) ([]byte, bool) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		logg.Errorf("%s unable to encode %v event: %v", colors.Red("[gateway]"), event, err)
		return nil, false
	}
	return msg, true
}
