// Package hub runs the websocket chat rooms.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBuffer = 256

// Client represents a connected websocket client.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu        sync.Mutex
	closed    bool
	room      string
	sessionID string
	userName  string
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Room returns the joined room, or "" before join_chat.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Identity returns the session id and user name set by join_chat.
func (c *Client) Identity() (sessionID, userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.userName
}

func (c *Client) setIdentity(sessionID, userName string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.userName = userName
	c.mu.Unlock()
}

// Send queues data for the client. It reports false when the client is gone
// or its buffer is full.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendEnvelope sends a protocol envelope to the client.
func (c *Client) SendEnvelope(t MessageType, data any) error {
	raw, err := marshalEnvelope(t, data)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError sends an error message to the client.
func (c *Client) SendError(code, message string) {
	c.SendEnvelope(TypeError, ErrorMessage{Code: code, Message: message})
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func marshalEnvelope(t MessageType, data any) ([]byte, error) {
	env, err := NewEnvelope(t, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

type roomMessage struct {
	room   string
	data   []byte
	except *Client
}

// Hub manages websocket connections, rooms and per-session message counts.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	rooms    map[string]map[*Client]bool
	sessions map[string]int

	broadcast chan *roomMessage
}

// New creates a hub. Call Run to start it.
func New() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		rooms:     make(map[string]map[*Client]bool),
		sessions:  make(map[string]int),
		broadcast: make(chan *roomMessage, sendBuffer),
	}
}

// Run delivers room broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.close()
			}
			h.rooms = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case msg := <-h.broadcast:
			h.mu.RLock()
			members := make([]*Client, 0, len(h.rooms[msg.room]))
			for c := range h.rooms[msg.room] {
				if c != msg.except {
					members = append(members, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range members {
				if !c.Send(msg.data) {
					// Slow consumer, disconnect
					h.remove(c)
				}
			}
		}
	}
}

// remove drops c from the hub and tells its room it left.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	room := c.Room()
	h.leaveLocked(c, room)
	h.mu.Unlock()
	c.close()

	if room != "" {
		_, name := c.Identity()
		h.toRoom(room, TypeUserLeft, UserLeftMessage{UserID: c.id, UserName: name, Room: room}, nil)
	}
	log.Printf("Websocket client disconnected: %s", c.id)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if room == "" {
		return
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// NewClient creates a client for conn. Register it before use.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Register registers a client with the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Printf("Websocket client connected: %s", c.id)
}

// Unregister removes a client from the hub. It is safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.remove(c)
}

// Join moves c into room under sessionID and returns the room's size and
// the session's message count.
func (h *Hub) Join(c *Client, room, sessionID, userName string) (activeUsers, messageCount int) {
	c.setIdentity(sessionID, userName)

	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	prev := c.room
	c.room = room
	c.mu.Unlock()
	if prev != room {
		h.leaveLocked(c, prev)
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = 0
	}
	return len(h.rooms[room]), h.sessions[sessionID]
}

// Record counts one message against sessionID.
func (h *Hub) Record(sessionID string) {
	h.mu.Lock()
	h.sessions[sessionID]++
	h.mu.Unlock()
}

// ClearSession resets a session's message count. It reports false for an
// unknown session.
func (h *Hub) ClearSession(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sessionID]; !ok {
		return false
	}
	h.sessions[sessionID] = 0
	return true
}

// Stats returns the connection, session, room and message counts.
func (h *Hub) Stats() ServiceStatsMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := ServiceStatsMessage{
		ActiveConnections: len(h.clients),
		ChatSessions:      len(h.sessions),
		ChatRooms:         make(map[string]int, len(h.rooms)),
	}
	for room, members := range h.rooms {
		st.ChatRooms[room] = len(members)
	}
	for _, n := range h.sessions {
		st.TotalMessages += n
	}
	return st
}

// Rooms returns the names of rooms with at least one member.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		out = append(out, room)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Broadcast sends an envelope to every member of room except the given
// client, which may be nil.
func (h *Hub) Broadcast(room string, t MessageType, data any, except *Client) {
	h.toRoom(room, t, data, except)
}

func (h *Hub) toRoom(room string, t MessageType, data any, except *Client) {
	raw, err := marshalEnvelope(t, data)
	if err != nil {
		log.Printf("Failed to marshal %s envelope: %v", t, err)
		return
	}
	select {
	case h.broadcast <- &roomMessage{room: room, data: raw, except: except}:
	default:
		log.Printf("Broadcast queue full, dropping %s for room %s", t, room)
	}
}
