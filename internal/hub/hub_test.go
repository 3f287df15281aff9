package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	err error

	mu      sync.Mutex
	replies []string
	cleared []string
}

func (f *fakeResponder) Reply(ctx context.Context, userID, sessionID, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.replies = append(f.replies, userID+"/"+sessionID+": "+message)
	return "echo: " + message, nil
}

func (f *fakeResponder) Clear(ctx context.Context, userID, sessionID string) error {
	f.mu.Lock()
	f.cleared = append(f.cleared, userID+"/"+sessionID)
	f.mu.Unlock()
	return nil
}

func (f *fakeResponder) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func newTestServer(t *testing.T, r Responder, cfg Config) (*Hub, string) {
	t.Helper()
	if cfg.MessagesPerMinute == 0 {
		cfg.MessagesPerMinute = 100
	}
	if cfg.ConnectionsPerMinute == 0 {
		cfg.ConnectionsPerMinute = 100
	}

	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(NewHandler(h, r, cfg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, data any) {
	t.Helper()
	env, err := NewEnvelope(typ, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func recv(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func expect[T any](t *testing.T, conn *websocket.Conn, typ MessageType) T {
	t.Helper()
	env := recv(t, conn)
	require.Equal(t, typ, env.Type, "payload: %s", env.Data)
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func connectAndJoin(t *testing.T, url, session, user, room string) *websocket.Conn {
	t.Helper()
	conn := dial(t, url, nil)
	expect[ConnectedMessage](t, conn, TypeConnected)
	send(t, conn, TypeJoinChat, JoinChatMessage{SessionID: session, UserName: user, Room: room})
	expect[ChatJoinedMessage](t, conn, TypeChatJoined)
	return conn
}

func TestJoinDefaults(t *testing.T) {
	_, url := newTestServer(t, &fakeResponder{}, Config{})
	conn := dial(t, url, nil)

	hello := expect[ConnectedMessage](t, conn, TypeConnected)
	assert.NotEmpty(t, hello.ClientID)

	send(t, conn, TypeJoinChat, nil)
	joined := expect[ChatJoinedMessage](t, conn, TypeChatJoined)
	assert.Equal(t, "default", joined.SessionID)
	assert.Equal(t, "general", joined.Room)
	assert.Equal(t, "Anonymous", joined.UserName)
	assert.Equal(t, 1, joined.ActiveUsers)
	assert.Equal(t, 0, joined.MessageCount)
}

func TestSendMessageGetsAIReply(t *testing.T) {
	resp := &fakeResponder{}
	_, url := newTestServer(t, resp, Config{})
	alice := connectAndJoin(t, url, "s1", "alice", "lobby")
	bob := connectAndJoin(t, url, "s2", "bob", "lobby")

	send(t, alice, TypeSendMessage, SendMessageMessage{Message: "  hello  "})

	for _, conn := range []*websocket.Conn{alice, bob} {
		posted := expect[ChatMessage](t, conn, TypeNewMessage)
		assert.Equal(t, "hello", posted.Message)
		assert.Equal(t, "alice", posted.UserName)
		assert.Equal(t, "text", posted.Type)
		assert.Equal(t, "lobby", posted.Room)

		reply := expect[ChatMessage](t, conn, TypeAIResponse)
		assert.Equal(t, "echo: hello", reply.Message)
		assert.Equal(t, aiUserName, reply.UserName)
		assert.Equal(t, "ai_response", reply.Type)
		assert.Equal(t, posted.ID, reply.ResponseTo)
	}

	assert.Equal(t, []string{"alice/s1: hello"}, resp.replies)
}

func TestCommandsAndBlankMessagesSkipAI(t *testing.T) {
	resp := &fakeResponder{}
	_, url := newTestServer(t, resp, Config{})
	conn := connectAndJoin(t, url, "s1", "alice", "lobby")

	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "   "})
	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "/help"})
	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "pic.png", Type: "image"})
	send(t, conn, TypeGetStats, nil)

	assert.Equal(t, "/help", expect[ChatMessage](t, conn, TypeNewMessage).Message)
	assert.Equal(t, "image", expect[ChatMessage](t, conn, TypeNewMessage).Type)

	stats := expect[ServiceStatsMessage](t, conn, TypeServiceStats)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, 1, stats.ChatSessions)
	assert.Equal(t, map[string]int{"lobby": 1}, stats.ChatRooms)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Zero(t, resp.replyCount())
}

func TestAIReplyFailureSendsError(t *testing.T) {
	_, url := newTestServer(t, &fakeResponder{err: errors.New("no provider")}, Config{})
	conn := connectAndJoin(t, url, "s1", "alice", "lobby")

	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "hi"})
	expect[ChatMessage](t, conn, TypeNewMessage)
	msg := expect[ErrorMessage](t, conn, TypeError)
	assert.Equal(t, CodeAIError, msg.Code)
}

func TestTypingExcludesSender(t *testing.T) {
	_, url := newTestServer(t, nil, Config{})
	alice := connectAndJoin(t, url, "s1", "alice", "lobby")
	bob := connectAndJoin(t, url, "s2", "bob", "lobby")

	send(t, alice, TypeTypingStart, nil)
	typing := expect[UserTypingMessage](t, bob, TypeUserTyping)
	assert.Equal(t, "alice", typing.UserName)
	assert.True(t, typing.IsTyping)

	send(t, alice, TypeTypingStop, nil)
	assert.False(t, expect[UserTypingMessage](t, bob, TypeUserTyping).IsTyping)

	// Alice's next frame is her own stats reply, not her typing echo.
	send(t, alice, TypeGetStats, nil)
	expect[ServiceStatsMessage](t, alice, TypeServiceStats)
}

func TestUserLeft(t *testing.T) {
	h, url := newTestServer(t, nil, Config{})
	alice := connectAndJoin(t, url, "s1", "alice", "lobby")
	bob := connectAndJoin(t, url, "s2", "bob", "lobby")
	assert.Equal(t, []string{"lobby"}, h.Rooms())

	alice.Close()
	left := expect[UserLeftMessage](t, bob, TypeUserLeft)
	assert.Equal(t, "lobby", left.Room)
	assert.Equal(t, "alice", left.UserName)

	require.Eventually(t, func() bool { return h.Stats().ActiveConnections == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClearChat(t *testing.T) {
	resp := &fakeResponder{}
	_, url := newTestServer(t, resp, Config{})
	conn := connectAndJoin(t, url, "s1", "alice", "lobby")

	send(t, conn, TypeClearChat, ClearChatMessage{SessionID: "missing"})
	assert.Equal(t, CodeNotFound, expect[ErrorMessage](t, conn, TypeError).Code)

	send(t, conn, TypeClearChat, ClearChatMessage{SessionID: "s1"})
	assert.Equal(t, "s1", expect[ChatClearedMessage](t, conn, TypeChatCleared).SessionID)
	assert.Equal(t, []string{"alice/s1"}, resp.cleared)
}

func TestMessageRateLimit(t *testing.T) {
	_, url := newTestServer(t, nil, Config{MessagesPerMinute: 1})
	conn := connectAndJoin(t, url, "s1", "alice", "lobby")

	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "/one"})
	send(t, conn, TypeSendMessage, SendMessageMessage{Message: "/two"})

	expect[ChatMessage](t, conn, TypeNewMessage)
	assert.Equal(t, CodeMessageRateLimited, expect[ErrorMessage](t, conn, TypeError).Code)
}

func TestConnectionRateLimit(t *testing.T) {
	_, url := newTestServer(t, nil, Config{ConnectionsPerMinute: 1})

	first := dial(t, url, nil)
	expect[ConnectedMessage](t, first, TypeConnected)

	second := dial(t, url, nil)
	assert.Equal(t, CodeRateLimited, expect[ErrorMessage](t, second, TypeError).Code)
}

func TestAPIKey(t *testing.T) {
	_, url := newTestServer(t, nil, Config{APIKey: "secret"})

	denied := dial(t, url, nil)
	assert.Equal(t, CodeAuthFailed, expect[ErrorMessage](t, denied, TypeError).Code)

	byQuery := dial(t, url+"?api_key=secret", nil)
	expect[ConnectedMessage](t, byQuery, TypeConnected)

	byHeader := dial(t, url, http.Header{"X-API-Key": {"secret"}})
	expect[ConnectedMessage](t, byHeader, TypeConnected)
}

func TestUnknownType(t *testing.T) {
	_, url := newTestServer(t, nil, Config{})
	conn := dial(t, url, nil)
	expect[ConnectedMessage](t, conn, TypeConnected)

	send(t, conn, "dance", nil)
	assert.Equal(t, CodeBadRequest, expect[ErrorMessage](t, conn, TypeError).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, CodeBadRequest, expect[ErrorMessage](t, conn, TypeError).Code)
}
