package gateway

import (
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/soyeahso/paxxium/internal/agent"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
)

// Hub fans reply fragments out to websocket rooms. It is the realtime
// transport handed to agents.
type Hub struct {
	log *logging.Logger
	seq atomic.Int64

	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room -> connID -> client
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{log: log.Sub("hub"), rooms: make(map[string]map[string]*Client)}
}

// Join is a no-op. Rooms exist only while they have subscribers, and a
// publish to a room nobody is in is dropped.
func (h *Hub) Join(room string) {}

// Publish queues a token event for every subscriber of room. It never waits
// on a socket; failed sends are logged and skipped.
func (h *Hub) Publish(room string, evt domain.StreamEvent) {
	h.mu.RLock()
	subs := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	seq := h.seq.Add(1)
	for _, c := range subs {
		if err := c.SendEvent(EventToken, evt, seq); err != nil {
			h.log.Debug().Err(err).Str("room", room).Str("connId", c.ConnID).Msg("publish failed")
		}
	}
}

// Yield gives other goroutines, including socket writers, a chance to run
// between fragments.
func (h *Hub) Yield() { runtime.Gosched() }

// Subscribe adds a client to a room.
func (h *Hub) Subscribe(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ConnID] = c
	h.log.Debug().Str("room", room).Str("connId", c.ConnID).Msg("joined room")
}

// Unsubscribe removes a client from a room. Empty rooms are dropped.
func (h *Hub) Unsubscribe(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, c.ConnID)
}

// Drop removes a client from every room.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.leave(room, c.ConnID)
	}
}

// Rooms returns the rooms a client is in, sorted.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for room, members := range h.rooms {
		if _, ok := members[c.ConnID]; ok {
			out = append(out, room)
		}
	}
	sort.Strings(out)
	return out
}

// Members returns the number of subscribers in a room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) leave(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// roomFor maps a room.join or room.leave argument to a hub room. A bare id
// names one of the caller's conversations. Prefixed names must belong to
// the caller.
func roomFor(userID, room string) (string, bool) {
	switch {
	case room == "":
		return "", false
	case strings.HasPrefix(room, "user:"), strings.HasPrefix(room, "chat:"):
		return room, agent.OwnsRoom(userID, room)
	default:
		return agent.ConversationRoom(userID, room), userID != ""
	}
}
