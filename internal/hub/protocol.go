package hub

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of websocket message.
type MessageType string

const (
	// Client -> Server
	TypeJoinChat    MessageType = "join_chat"
	TypeSendMessage MessageType = "send_message"
	TypeTypingStart MessageType = "typing_start"
	TypeTypingStop  MessageType = "typing_stop"
	TypeGetStats    MessageType = "get_stats"
	TypeClearChat   MessageType = "clear_chat"

	// Server -> Client
	TypeConnected    MessageType = "connected"
	TypeChatJoined   MessageType = "chat_joined"
	TypeNewMessage   MessageType = "new_message"
	TypeAIResponse   MessageType = "ai_response"
	TypeUserTyping   MessageType = "user_typing"
	TypeUserLeft     MessageType = "user_left"
	TypeServiceStats MessageType = "service_stats"
	TypeChatCleared  MessageType = "chat_cleared"
	TypeError        MessageType = "error"
)

// Error codes carried by ErrorMessage.
const (
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeMessageRateLimited = "MESSAGE_RATE_LIMIT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeAIError            = "AI_ERROR"
)

const (
	defaultSession = "default"
	defaultUser    = "Anonymous"
	defaultRoom    = "general"
	aiUserName     = "HAZoom AI"
)

// Envelope wraps all websocket messages with a type field.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(t MessageType, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Data: raw}, nil
}

// JoinChatMessage is sent by the client to enter a room.
type JoinChatMessage struct {
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
	Room      string `json:"room"`
}

// SendMessageMessage is sent by the client to post to its room.
type SendMessageMessage struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	Room      string `json:"room,omitempty"`
	Type      string `json:"type,omitempty"`
}

// ClearChatMessage asks the server to forget a session's messages.
type ClearChatMessage struct {
	SessionID string `json:"session_id"`
}

// ConnectedMessage greets an accepted connection.
type ConnectedMessage struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// ChatJoinedMessage confirms a join.
type ChatJoinedMessage struct {
	SessionID    string `json:"session_id"`
	Room         string `json:"room"`
	UserName     string `json:"user_name"`
	MessageCount int    `json:"message_count"`
	ActiveUsers  int    `json:"active_users"`
}

// ChatMessage is a room message, either from a user or the AI.
type ChatMessage struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	UserName   string    `json:"user_name"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Room       string    `json:"room"`
	SessionID  string    `json:"session_id,omitempty"`
	ResponseTo string    `json:"response_to,omitempty"`
}

// UserTypingMessage tells a room someone started or stopped typing.
type UserTypingMessage struct {
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// UserLeftMessage tells a room a client disconnected.
type UserLeftMessage struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Room     string `json:"room"`
}

// ServiceStatsMessage answers get_stats.
type ServiceStatsMessage struct {
	ActiveConnections int            `json:"active_connections"`
	ChatSessions      int            `json:"chat_sessions"`
	ChatRooms         map[string]int `json:"chat_rooms"`
	TotalMessages     int            `json:"total_messages"`
}

// ChatClearedMessage confirms clear_chat.
type ChatClearedMessage struct {
	SessionID string `json:"session_id"`
}

// ErrorMessage reports a failure to the client.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
