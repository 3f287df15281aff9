package hub

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hazem-soussi-HA/hazoom/internal/ratelimit"
)

const (
	readLimit    = 65536
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	replyTimeout = 5 * time.Minute
)

// Responder produces the AI reply for a room message and forgets a session.
type Responder interface {
	Reply(ctx context.Context, userID, sessionID, message string) (string, error)
	Clear(ctx context.Context, userID, sessionID string) error
}

// Config controls access to the websocket endpoint.
type Config struct {
	APIKey               string
	AllowedOrigins       []string
	MessagesPerMinute    int
	ConnectionsPerMinute int
}

// Handler upgrades HTTP requests and runs the room protocol.
type Handler struct {
	hub       *Hub
	responder Responder
	apiKey    string
	conns     *ratelimit.Keyed
	messages  *ratelimit.Keyed
	upgrader  websocket.Upgrader
}

// NewHandler returns the /ws handler. A nil responder disables AI replies.
func NewHandler(h *Hub, responder Responder, cfg Config) *Handler {
	origins := cfg.AllowedOrigins
	return &Handler{
		hub:       h,
		responder: responder,
		apiKey:    cfg.APIKey,
		conns:     ratelimit.NewKeyed(cfg.ConnectionsPerMinute),
		messages:  ratelimit.NewKeyed(cfg.MessagesPerMinute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
					return true
				}
				return slices.Contains(origins, origin)
			},
		},
	}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ip := ratelimit.ClientIP(r)
	if !h.conns.Allow(ip) {
		log.Printf("Websocket connection rate limit exceeded for %s", ip)
		reject(conn, CodeRateLimited, "Too many connection attempts")
		return
	}
	if !h.authorized(r) {
		log.Printf("Websocket authentication failed for %s", ip)
		reject(conn, CodeAuthFailed, "Invalid or missing API key")
		return
	}

	client := h.hub.NewClient(conn)
	h.hub.Register(client)
	client.SendEnvelope(TypeConnected, ConnectedMessage{
		ClientID: client.id,
		Message:  "Connected to HAZoom chat",
	})

	go h.writePump(client)
	h.readPump(r.Context(), client)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	key := r.URL.Query().Get("api_key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) == 1
}

// reject sends a single error envelope and closes the connection.
func reject(conn *websocket.Conn, code, message string) {
	defer conn.Close()
	raw, err := marshalEnvelope(TypeError, ErrorMessage{Code: code, Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
}

func (h *Handler) readPump(parent context.Context, client *Client) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer func() {
		cancel()
		h.hub.Unregister(client)
		h.messages.Forget(client.id)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(readLimit)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		h.handleMessage(ctx, client, message)
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, client *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		client.SendError(CodeBadRequest, "Invalid message format")
		return
	}

	switch env.Type {
	case TypeJoinChat:
		var msg JoinChatMessage
		if !decode(client, env.Data, &msg) {
			return
		}
		h.handleJoin(client, &msg)

	case TypeSendMessage:
		var msg SendMessageMessage
		if !decode(client, env.Data, &msg) {
			return
		}
		h.handleSend(ctx, client, &msg)

	case TypeTypingStart, TypeTypingStop:
		h.handleTyping(client, env.Type == TypeTypingStart)

	case TypeGetStats:
		client.SendEnvelope(TypeServiceStats, h.hub.Stats())

	case TypeClearChat:
		var msg ClearChatMessage
		if !decode(client, env.Data, &msg) {
			return
		}
		h.handleClear(ctx, client, &msg)

	default:
		client.SendError(CodeBadRequest, "Unknown message type: "+string(env.Type))
	}
}

// decode unmarshals an optional payload. An absent payload leaves v zero.
func decode(client *Client, data json.RawMessage, v any) bool {
	if len(data) == 0 || string(data) == "null" {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		client.SendError(CodeBadRequest, "Invalid message data")
		return false
	}
	return true
}

func (h *Handler) handleJoin(client *Client, msg *JoinChatMessage) {
	sessionID := orDefault(msg.SessionID, defaultSession)
	userName := orDefault(msg.UserName, defaultUser)
	room := orDefault(msg.Room, defaultRoom)

	active, count := h.hub.Join(client, room, sessionID, userName)
	client.SendEnvelope(TypeChatJoined, ChatJoinedMessage{
		SessionID:    sessionID,
		Room:         room,
		UserName:     userName,
		MessageCount: count,
		ActiveUsers:  active,
	})
}

func (h *Handler) handleSend(ctx context.Context, client *Client, msg *SendMessageMessage) {
	if !h.messages.Allow(client.id) {
		client.SendError(CodeMessageRateLimited, "Too many messages, slow down")
		return
	}

	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return
	}

	joinedSession, joinedName := client.Identity()
	sessionID := orDefault(msg.SessionID, orDefault(joinedSession, defaultSession))
	userName := orDefault(msg.UserName, orDefault(joinedName, defaultUser))
	room := orDefault(msg.Room, orDefault(client.Room(), defaultRoom))
	kind := orDefault(msg.Type, "text")

	// A client that never joined is placed in the room it posts to.
	if client.Room() == "" {
		h.hub.Join(client, room, sessionID, userName)
	}

	posted := ChatMessage{
		ID:        uuid.NewString(),
		Message:   text,
		UserName:  userName,
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Room:      room,
		SessionID: sessionID,
	}
	h.hub.Record(sessionID)
	h.hub.Broadcast(room, TypeNewMessage, posted, nil)

	if kind != "text" || strings.HasPrefix(text, "/") || h.responder == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()

		reply, err := h.responder.Reply(ctx, userName, sessionID, text)
		if err != nil {
			log.Printf("Websocket AI reply failed: %v", err)
			client.SendError(CodeAIError, "Failed to generate AI response")
			return
		}
		h.hub.Record(sessionID)
		h.hub.Broadcast(room, TypeAIResponse, ChatMessage{
			ID:         uuid.NewString(),
			Message:    reply,
			UserName:   aiUserName,
			Type:       "ai_response",
			Timestamp:  time.Now().UTC(),
			Room:       room,
			SessionID:  sessionID,
			ResponseTo: posted.ID,
		}, nil)
	}()
}

func (h *Handler) handleTyping(client *Client, typing bool) {
	room := client.Room()
	if room == "" {
		return
	}
	_, name := client.Identity()
	h.hub.Broadcast(room, TypeUserTyping, UserTypingMessage{UserName: name, IsTyping: typing}, client)
}

func (h *Handler) handleClear(ctx context.Context, client *Client, msg *ClearChatMessage) {
	joined, userName := client.Identity()
	sessionID := orDefault(msg.SessionID, joined)
	if sessionID == "" || !h.hub.ClearSession(sessionID) {
		client.SendError(CodeNotFound, "Session not found")
		return
	}
	if h.responder != nil {
		if err := h.responder.Clear(ctx, orDefault(userName, defaultUser), sessionID); err != nil {
			log.Printf("Failed to clear session %s: %v", sessionID, err)
		}
	}
	client.SendEnvelope(TypeChatCleared, ChatClearedMessage{SessionID: sessionID})
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
