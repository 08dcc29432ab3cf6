package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client and ImageGenerator. Requests are
// recorded in order.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
	ImageFunc    func(ctx context.Context, req ImageRequest) (string, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.record(req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	m.record(req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return FragmentStream("mock ", "stream response"), nil
}

func (m *MockClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if m.ImageFunc != nil {
		return m.ImageFunc(ctx, req)
	}
	return "https://images.example.com/mock.png", nil
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

func (m *MockClient) record(req CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// FragmentStream returns a closed channel holding one delta per fragment
// followed by a done event.
func FragmentStream(fragments ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(fragments)+1)
	var full string
	for _, f := range fragments {
		ch <- StreamEvent{Type: EventDelta, Content: f}
		full += f
	}
	ch <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: full}}
	close(ch)
	return ch
}

// FailingStream delivers the fragments and then an error event.
func FailingStream(err error, fragments ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(fragments)+1)
	for _, f := range fragments {
		ch <- StreamEvent{Type: EventDelta, Content: f}
	}
	ch <- StreamEvent{Type: EventError, Err: err}
	close(ch)
	return ch
}
