package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineClient is registered in rooms but has no socket; sends fail with
// ErrClientClosed.
func offlineClient(id string) *Client {
	return &Client{ConnID: id, closed: true}
}

func TestHubMembership(t *testing.T) {
	h := NewHub(logging.New(nil, "silent"))
	a, b := offlineClient("a"), offlineClient("b")

	h.Subscribe("chat-1", a)
	h.Subscribe("chat-1", b)
	h.Subscribe("user:u1", a)

	assert.Equal(t, 2, h.Members("chat-1"))
	assert.Equal(t, []string{"chat-1", "user:u1"}, h.Rooms(a))
	assert.Equal(t, []string{"chat-1"}, h.Rooms(b))

	h.Unsubscribe("chat-1", b)
	assert.Equal(t, 1, h.Members("chat-1"))
	assert.Empty(t, h.Rooms(b))

	h.Drop(a)
	assert.Empty(t, h.Rooms(a))
	assert.Zero(t, h.Members("chat-1"))
	assert.Empty(t, h.rooms)
}

func TestHubKeepsNoEmptyRooms(t *testing.T) {
	h := NewHub(logging.New(nil, "silent"))
	for i := range 1000 {
		room := fmt.Sprintf("chat:u1:c%d", i)
		h.Join(room)
		h.Publish(room, domain.StreamEvent{Content: "x", Type: domain.StreamEventType})
	}
	assert.Empty(t, h.rooms)

	c := offlineClient("a")
	h.Subscribe("chat:u1:c1", c)
	h.Join("chat:u1:c1")
	assert.Equal(t, 1, h.Members("chat:u1:c1"))
	h.Unsubscribe("chat:u1:c1", c)
	assert.Empty(t, h.rooms)
}

func TestHubPublishDoesNotWaitOnSlowClient(t *testing.T) {
	h := NewHub(logging.New(nil, "silent"))
	// Never started, so nothing drains its queue.
	slow := NewClient(nil, ClientInfo{}, Identity{UserID: "u1"}, logging.New(nil, "silent"))
	h.Subscribe("user:u1", slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sendBuffer + 1 {
			h.Publish("user:u1", domain.StreamEvent{Content: "x", Type: domain.StreamEventType})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a client that is not reading")
	}

	assert.Len(t, slow.send, sendBuffer)
	assert.ErrorIs(t, slow.Send(Frame{}), ErrClientClosed)
}

func TestClientSendQueueOverflow(t *testing.T) {
	c := NewClient(nil, ClientInfo{}, Identity{UserID: "u1"}, logging.New(nil, "silent"))
	for range sendBuffer {
		require.NoError(t, c.Send(Frame{}))
	}
	assert.ErrorIs(t, c.Send(Frame{}), ErrSlowClient)
	assert.ErrorIs(t, c.Send(Frame{}), ErrClientClosed)
	assert.NoError(t, c.Close())
}

func TestHubPublishSkipsFailedClients(t *testing.T) {
	h := NewHub(logging.New(nil, "silent"))
	h.Subscribe("chat-1", offlineClient("a"))

	h.Publish("chat-1", domain.StreamEvent{Content: "x", Type: domain.StreamEventType})
	h.Publish("nobody-here", domain.StreamEvent{Content: "y", Type: domain.StreamEventType})
	h.Yield()

	assert.Equal(t, int64(2), h.seq.Load())
}

func TestRoomFor(t *testing.T) {
	tests := []struct {
		user, room string
		want       string
		ok         bool
	}{
		{"u1", "user:u1", "user:u1", true},
		{"u1", "user:u2", "user:u2", false},
		{"u1", "chat-123", "chat:u1:chat-123", true},
		{"u1", "chat:u1:chat-123", "chat:u1:chat-123", true},
		{"alice", "chat:bob:shared-chat", "chat:bob:shared-chat", false},
		{"u1", "", "", false},
		{"", "chat-123", "chat::chat-123", false},
	}
	for _, tt := range tests {
		got, ok := roomFor(tt.user, tt.room)
		assert.Equal(t, tt.ok, ok, "%s -> %s", tt.user, tt.room)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.user, tt.room)
	}
}
