package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/soyeahso/paxxium/internal/store"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testRegistry() *llm.Registry {
	reg := llm.NewRegistry(silentLog())
	reg.Alias("GPT-4", "gpt-4-0125-preview")
	reg.SetFallback("gpt-3.5-turbo-0125")
	reg.SetVision("gpt-4-vision-preview")
	return reg
}

var fastRetry = RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}

// wordEstimator charges one token per word.
type wordEstimator struct{}

func (wordEstimator) Estimate(_, text string) int { return len(strings.Fields(text)) }

type recordingTransport struct {
	mu     sync.Mutex
	joined map[string]int
	events map[string][]domain.StreamEvent
	yields int
}

func newTransport() *recordingTransport {
	return &recordingTransport{joined: map[string]int{}, events: map[string][]domain.StreamEvent{}}
}

func (r *recordingTransport) Join(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined[room]++
}

func (r *recordingTransport) Publish(room string, evt domain.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[room] = append(r.events[room], evt)
}

func (r *recordingTransport) Yield() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.yields++
}

func (r *recordingTransport) contents(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events[room] {
		out = append(out, e.Content)
	}
	return out
}

// memWriter stores messages in memory and fails the first `failures` writes.
type memWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	msgs     []domain.Message
}

func (w *memWriter) CreateMessage(_ context.Context, msg domain.Message) (*domain.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return nil, errors.New("database is locked")
	}
	w.msgs = append(w.msgs, msg)
	return &msg, nil
}

func (w *memWriter) messages() []domain.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Message(nil), w.msgs...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	agent     *Agent
	client    *llm.MockClient
	writer    *memWriter
	transport *recordingTransport
}

// fixtureRoom is the conversation room of the fixture agent.
const fixtureRoom = "chat:u1:c1"

func newFixture(t *testing.T, variant Variant, client *llm.MockClient, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{client: client, writer: &memWriter{}, transport: newTransport()}
	deps := Deps{
		Client:       client,
		Models:       testRegistry(),
		Estimator:    wordEstimator{},
		Messages:     f.writer,
		Transport:    f.transport,
		Capabilities: NewCapabilities(NewComputation()),
		Retry:        fastRetry,
		Log:          silentLog(),
	}
	for _, o := range opts {
		o(&deps)
	}
	a, err := New(context.Background(), "u1", "c1", variant, Settings{SystemPrompt: "You are terse."}, deps)
	require.NoError(t, err)
	f.agent = a
	return f
}

// toolStream emits content then finishes asking for the given calls.
func toolStream(content string, calls ...llm.ToolCall) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent, 2)
	if content != "" {
		ch <- llm.StreamEvent{Type: llm.EventDelta, Content: content}
	}
	ch <- llm.StreamEvent{Type: llm.EventDone, Response: &llm.CompletionResponse{Content: content, ToolCalls: calls}}
	close(ch)
	return ch
}

func history(pairs ...string) []domain.Message {
	var msgs []domain.Message
	for i, c := range pairs {
		author := domain.AuthorUser
		if i%2 == 1 {
			author = domain.AuthorAgent
		}
		msgs = append(msgs, domain.Message{Author: author, Content: c})
	}
	return msgs
}
