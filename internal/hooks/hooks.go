// Package hooks dispatches Paxxium lifecycle events to registered handlers.
// Handler failures are logged and never interrupt the pipeline that emitted
// the event.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/paxxium/internal/logging"
)

// Event names.
const (
	EventMessageReceived  = "message_received"
	EventBeforeAgentRun   = "before_agent_run"
	EventAfterAgentRun    = "after_agent_run"
	EventMessagePersisted = "message_persisted"
	EventMemoryCleared    = "memory_cleared"
	EventGatewayStart     = "gateway_start"
	EventGatewayStop      = "gateway_stop"
)

// AllEvents lists every event the router and gateway emit.
var AllEvents = []string{
	EventMessageReceived,
	EventBeforeAgentRun,
	EventAfterAgentRun,
	EventMessagePersisted,
	EventMemoryCleared,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged only.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds handler registrations. A nil *Manager drops every event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler under a name used in logs and by Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	kept := handlers[:0:0]
	for _, h := range handlers {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

// Emit runs the event's handlers in registration order and waits for them.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.run(ctx, h, p)
	}
}

// EmitAsync runs the event's handlers concurrently and returns at once.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range handlers {
		go m.run(ctx, h, p)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler.
func (m *Manager) Events() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}

func (m *Manager) snapshot(event string) []namedHandler {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("event", p.Event).Str("handler", h.name).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook handler error")
	}
}
