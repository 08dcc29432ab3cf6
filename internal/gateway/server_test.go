package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/paxxium/internal/agent"
	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChat records turns and answers with a scripted handler.
type fakeChat struct {
	mu      sync.Mutex
	turns   []domain.InboundMessage
	cleared []string
	handle  func(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error)
	history *domain.Conversation
}

func (f *fakeChat) Handle(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error) {
	f.mu.Lock()
	f.turns = append(f.turns, msg)
	f.mu.Unlock()
	if f.handle != nil {
		return f.handle(ctx, msg, sink)
	}
	return echo(ctx, msg, sink)
}

func (f *fakeChat) History(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if f.history != nil {
		return f.history, nil
	}
	return &domain.Conversation{ID: conversationID, UserID: userID}, nil
}

func (f *fakeChat) Clear(ctx context.Context, userID, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID+"/"+conversationID)
	return 2, nil
}

func (f *fakeChat) Turns() []domain.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.InboundMessage(nil), f.turns...)
}

// echo streams the user's words back one fragment per word.
func echo(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error) {
	words := strings.Fields(msg.Content)
	for _, w := range words {
		if err := sink(domain.StreamEvent{
			MessageFrom:    domain.AuthorAgent,
			Content:        w,
			ConversationID: msg.ConversationID,
			Type:           domain.StreamEventType,
		}); err != nil {
			return nil, err
		}
	}
	return &agent.Reply{
		Message:   &domain.Message{ConversationID: msg.ConversationID, Author: domain.AuthorAgent, Content: strings.Join(words, "")},
		Model:     "gpt-4o",
		Fragments: len(words),
	}, nil
}

func testGatewayConfig() config.GatewayConfig {
	cfg := config.Defaults().Gateway
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func testServer(t *testing.T, chat Chat, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	return testServerWithConfig(t, testGatewayConfig(), chat, opts...)
}

func testServerWithConfig(t *testing.T, cfg config.GatewayConfig, chat Chat, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, chat, NewJWTVerifier(testSecret, ""), logging.New(nil, "silent"), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := IssueJWT(testSecret, "", userID, time.Hour)
	require.NoError(t, err)
	return token
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventChallenge, challenge.Event)
	return conn
}

func connect(t *testing.T, ts *httptest.Server, userID string) (*websocket.Conn, HelloOK) {
	t.Helper()
	conn := dialWS(t, ts)
	req, err := NewRequest("c-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test", Version: "1.0.0", Platform: "linux"},
		Auth:        &ConnectAuth{Token: tokenFor(t, userID)},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "connect failed: %+v", resp.Error)
	var hello HelloOK
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	return conn, hello
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
}

// readUntilResponse collects frames until the response to id arrives.
func readUntilResponse(t *testing.T, conn *websocket.Conn, id string) (Frame, []Frame) {
	t.Helper()
	var events []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f, events
		}
		events = append(events, f)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketHandshake(t *testing.T) {
	srv, ts := testServer(t, &fakeChat{})

	_, hello := connect(t, ts, "u1")
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.Equal(t, "u1", hello.UserID)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{"chat.send", "health", "room.join", "room.leave"}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventToken)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return srv.Hub().Members(agent.UserRoom("u1")) == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeBadToken(t *testing.T) {
	_, ts := testServer(t, &fakeChat{})
	conn := dialWS(t, ts)

	call(t, conn, "c-1", "connect", ConnectParams{MaxProtocol: 1, Auth: &ConnectAuth{Token: "forged"}})
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestWebSocketHandshakeWrongFirstFrame(t *testing.T) {
	_, ts := testServer(t, &fakeChat{})
	conn := dialWS(t, ts)

	call(t, conn, "x-1", "health", nil)
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_error", resp.Error.Code)
}

func TestWebSocketUnknownMethod(t *testing.T) {
	_, ts := testServer(t, &fakeChat{})
	conn, _ := connect(t, ts, "u1")

	call(t, conn, "r-1", "does.not.exist", nil)
	resp, _ := readUntilResponse(t, conn, "r-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestWebSocketRooms(t *testing.T) {
	srv, ts := testServer(t, &fakeChat{})
	conn, _ := connect(t, ts, "u1")
	own := agent.ConversationRoom("u1", "chat-1")

	call(t, conn, "r-1", "room.join", RoomParams{Room: "user:u2"})
	resp, _ := readUntilResponse(t, conn, "r-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "forbidden", resp.Error.Code)

	call(t, conn, "r-2", "room.join", RoomParams{Room: "chat-1"})
	resp, _ = readUntilResponse(t, conn, "r-2")
	require.True(t, *resp.OK)
	var joined struct {
		Room  string   `json:"room"`
		Rooms []string `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &joined))
	assert.Equal(t, own, joined.Room)
	assert.Equal(t, []string{own, "user:u1"}, joined.Rooms)
	assert.Equal(t, 1, srv.Hub().Members(own))

	call(t, conn, "r-3", "room.leave", RoomParams{Room: own})
	resp, _ = readUntilResponse(t, conn, "r-3")
	require.True(t, *resp.OK)
	assert.Zero(t, srv.Hub().Members(own))

	call(t, conn, "r-4", "room.leave", RoomParams{})
	resp, _ = readUntilResponse(t, conn, "r-4")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)

	call(t, conn, "r-5", "room.join", RoomParams{})
	resp, _ = readUntilResponse(t, conn, "r-5")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestWebSocketRoomsArePrivatePerUser(t *testing.T) {
	srv, ts := testServer(t, &fakeChat{})
	alice, _ := connect(t, ts, "alice")
	bob, _ := connect(t, ts, "bob")
	aliceRoom := agent.ConversationRoom("alice", "shared-chat")

	call(t, alice, "a-1", "room.join", RoomParams{Room: "shared-chat"})
	resp, _ := readUntilResponse(t, alice, "a-1")
	require.True(t, *resp.OK)

	// The same chat id resolves to bob's own room.
	call(t, bob, "b-1", "room.join", RoomParams{Room: "shared-chat"})
	resp, _ = readUntilResponse(t, bob, "b-1")
	require.True(t, *resp.OK)
	assert.Equal(t, 1, srv.Hub().Members(aliceRoom))
	assert.Equal(t, 1, srv.Hub().Members(agent.ConversationRoom("bob", "shared-chat")))

	// Naming alice's room directly is refused.
	call(t, bob, "b-2", "room.join", RoomParams{Room: aliceRoom})
	resp, _ = readUntilResponse(t, bob, "b-2")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "forbidden", resp.Error.Code)
	assert.Equal(t, 1, srv.Hub().Members(aliceRoom))
}

func TestWebSocketChatSend(t *testing.T) {
	chat := &fakeChat{}
	hub := NewHub(logging.New(nil, "silent"))
	chat.handle = func(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error) {
		// Agents publish every fragment to the conversation room as well.
		return echo(ctx, msg, func(evt domain.StreamEvent) error {
			hub.Publish(agent.ConversationRoom(msg.UserID, msg.ConversationID), evt)
			return sink(evt)
		})
	}
	_, ts := testServer(t, chat, WithHub(hub))
	conn, _ := connect(t, ts, "u1")

	call(t, conn, "r-1", "room.join", RoomParams{Room: "chat-1"})
	readUntilResponse(t, conn, "r-1")

	call(t, conn, "r-2", "chat.send", ChatSendParams{
		UserMessage:  UserMessage{Content: "Hel lo"},
		ChatSettings: domain.ChatSettings{ChatID: "chat-1", AgentModel: "GPT-4"},
	})
	resp, events := readUntilResponse(t, conn, "r-2")
	require.True(t, *resp.OK, "chat.send failed: %+v", resp.Error)

	var result struct {
		Message   domain.Message `json:"message"`
		Model     string         `json:"model"`
		Fragments int            `json:"fragments"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "Hello", result.Message.Content)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.Equal(t, 2, result.Fragments)

	var room, direct []string
	for _, e := range events {
		switch e.Event {
		case EventToken:
			var evt domain.StreamEvent
			require.NoError(t, json.Unmarshal(e.Payload, &evt))
			room = append(room, evt.Content)
			assert.Positive(t, e.Seq)
		case EventChatToken:
			var p struct {
				RequestID string             `json:"requestId"`
				Event     domain.StreamEvent `json:"event"`
			}
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			assert.Equal(t, "r-2", p.RequestID)
			direct = append(direct, p.Event.Content)
		}
	}
	assert.Equal(t, []string{"Hel", "lo"}, room)
	assert.Equal(t, []string{"Hel", "lo"}, direct)

	turns := chat.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "u1", turns[0].UserID)
	assert.Equal(t, "chat-1", turns[0].ConversationID)
	assert.Equal(t, "GPT-4", turns[0].Settings.AgentModel)
}

func TestWebSocketChatSendValidation(t *testing.T) {
	chat := &fakeChat{}
	_, ts := testServer(t, chat)
	conn, _ := connect(t, ts, "u1")

	call(t, conn, "r-1", "chat.send", ChatSendParams{UserMessage: UserMessage{Content: "hi"}})
	resp, _ := readUntilResponse(t, conn, "r-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)

	call(t, conn, "r-2", "chat.send", ChatSendParams{ChatSettings: domain.ChatSettings{ChatID: "c1"}})
	resp, _ = readUntilResponse(t, conn, "r-2")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)

	assert.Empty(t, chat.Turns())
}

func TestWebSocketChatSendErrors(t *testing.T) {
	chat := &fakeChat{handle: func(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error) {
		return nil, &domain.ConfigurationError{Reason: "no provider key", Err: domain.ErrUnauthenticated}
	}}
	_, ts := testServer(t, chat)
	conn, _ := connect(t, ts, "u1")

	call(t, conn, "r-1", "chat.send", ChatSendParams{
		UserMessage:  UserMessage{Content: "hi"},
		ChatSettings: domain.ChatSettings{ChatID: "c1"},
	})
	resp, _ := readUntilResponse(t, conn, "r-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestWebSocketChatSendRateLimited(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.RateLimit = config.RateLimitConfig{PerMinute: 1, Burst: 1}
	_, ts := testServerWithConfig(t, cfg, &fakeChat{})
	conn, _ := connect(t, ts, "u1")

	send := ChatSendParams{UserMessage: UserMessage{Content: "hi"}, ChatSettings: domain.ChatSettings{ChatID: "c1"}}
	call(t, conn, "r-1", "chat.send", send)
	resp, _ := readUntilResponse(t, conn, "r-1")
	require.True(t, *resp.OK)

	call(t, conn, "r-2", "chat.send", send)
	resp, _ = readUntilResponse(t, conn, "r-2")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestWebSocketDisconnectLeavesRooms(t *testing.T) {
	srv, ts := testServer(t, &fakeChat{})
	conn, _ := connect(t, ts, "u1")
	room := agent.ConversationRoom("u1", "chat-1")

	call(t, conn, "r-1", "room.join", RoomParams{Room: "chat-1"})
	readUntilResponse(t, conn, "r-1")
	require.Equal(t, 1, srv.Hub().Members(room))

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool {
		return srv.Hub().Members(room) == 0 && srv.clients.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind, host, want string
	}{
		{"loopback", "", "127.0.0.1:8080"},
		{"lan", "", "0.0.0.0:8080"},
		{"auto", "", "0.0.0.0:8080"},
		{"custom", "10.0.0.5", "10.0.0.5:8080"},
		{"custom", "", "0.0.0.0:8080"},
	}
	for _, tt := range tests {
		cfg := config.GatewayConfig{Port: 8080, Bind: tt.bind, CustomBindHost: tt.host}
		assert.Equal(t, tt.want, resolveBindAddr(cfg), tt.bind)
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	check := checkWebSocketOrigin([]string{"https://app.example.com"})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
