package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/paxxium/internal/logging"
)

var (
	// ErrClientClosed is returned when sending to a closed connection.
	ErrClientClosed = errors.New("client connection closed")
	// ErrSlowClient is returned when a client's send queue is full. The
	// client is disconnected.
	ErrSlowClient = errors.New("client send queue full")
)

const (
	writeWait = 10 * time.Second
	// sendBuffer is how many frames may wait for the write pump.
	sendBuffer = 256
)

// Client is an authenticated websocket connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Identity    Identity
	ConnectedAt time.Time

	socket *websocket.Conn
	log    *logging.Logger
	send   chan Frame
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a connection that passed the handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, id Identity, log *logging.Logger) *Client {
	connID := uuid.New().String()
	return &Client{
		ConnID:      connID,
		Info:        info,
		Identity:    id,
		ConnectedAt: time.Now(),
		socket:      conn,
		log:         log.With("connId", connID),
		send:        make(chan Frame, sendBuffer),
		done:        make(chan struct{}),
	}
}

// Start runs the write pump. Frames sent before Start wait in the queue.
func (c *Client) Start() {
	go c.writePump()
}

// writePump is the only writer on the socket once the handshake is done.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(f); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}
		}
	}
}

// Send queues a frame for the write pump without blocking. A client whose
// queue is full is closed. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	c.log.Warn().Int("queued", cap(c.send)).Msg("send queue full, closing slow client")
	c.Close()
	return ErrSlowClient
}

// SendEvent sends a named event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond answers a request.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError answers a request with an error.
func (c *Client) RespondError(reqID string, e ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, e))
}

// ReadFrame blocks for the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close stops the write pump and closes the connection once. Queued frames
// are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.done != nil {
		close(c.done)
	}
	if c.socket == nil {
		return nil
	}
	return c.socket.Close()
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("userId", c.Identity.UserID).Str("client", c.Info.ID).Msg("client connected")
}

func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
