package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Registry tests ---

func TestRegistryResolveKnownModel(t *testing.T) {
	reg := NewRegistry(silentLog())

	model, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Alias("GPT-4", "gpt-4-0125-preview")

	model, err := reg.Resolve("GPT-4")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-0125-preview", model)
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.SetFallback("gpt-3.5-turbo-0125")

	model, err := reg.Resolve("GPT-3.5")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo-0125", model)

	model, err = reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo-0125", model)
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("llama-3")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no model for label")
}

func TestRegistryFromConfigDefaults(t *testing.T) {
	cfg := config.Defaults()
	reg := NewRegistryFromConfig(cfg.Models, silentLog())

	model, err := reg.Resolve("GPT-4")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-0125-preview", model)

	model, err = reg.Resolve("anything else")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo-0125", model)
}

func TestRegistryRoute(t *testing.T) {
	cfg := config.Defaults()
	reg := NewRegistryFromConfig(cfg.Models, silentLog())

	text, err := reg.Route("GPT-4", false, true)
	require.NoError(t, err)
	assert.Equal(t, Route{Model: "gpt-4-0125-preview", MaxTokens: 300}, text)

	vision, err := reg.Route("GPT-4", true, true)
	require.NoError(t, err)
	assert.Equal(t, Route{Model: "gpt-4-vision-preview", MaxTokens: 1000, Vision: true}, vision)

	// Vision disabled keeps the text path even with an image.
	disabled, err := reg.Route("GPT-4", true, false)
	require.NoError(t, err)
	assert.False(t, disabled.Vision)
	assert.Equal(t, 300, disabled.MaxTokens)
}

func TestRegistryRouteNoVisionModel(t *testing.T) {
	reg := NewRegistry(silentLog())
	_, err := reg.Route("gpt-4o", true, true)
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("my-finetune")

	names := reg.List()
	assert.Contains(t, names, "my-finetune")
	assert.Contains(t, names, "gpt-3.5-turbo-0125")
	assert.IsIncreasing(t, names)
}

// --- MockClient tests ---

func TestMockClientComplete(t *testing.T) {
	mock := &MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{
				Content: "The answer is 42",
				Usage:   Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}

	resp, err := mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "What is the answer?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Len(t, mock.Requests(), 1)
}

func TestMockClientStream(t *testing.T) {
	mock := &MockClient{ProviderName: "test"}

	ch, err := mock.Stream(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	var events []StreamEvent
	for evt := range ch {
		events = append(events, evt)
	}

	require.Len(t, events, 3)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, EventDelta, events[1].Type)
	assert.Equal(t, EventDone, events[2].Type)
	assert.Equal(t, "mock stream response", events[2].Response.Content)
}

func TestFailingStream(t *testing.T) {
	boom := errors.New("boom")
	var types []string
	var last StreamEvent
	for evt := range FailingStream(boom, "a", "b") {
		types = append(types, evt.Type)
		last = evt
	}
	assert.Equal(t, []string{EventDelta, EventDelta, EventError}, types)
	assert.ErrorIs(t, last.Err, boom)
}

func TestProviderErrorString(t *testing.T) {
	assert.Equal(t, "openai: 429 rate limited", (&ProviderError{Provider: "openai", Message: "rate limited", Code: 429}).Error())
	assert.Equal(t, "openai: closed", (&ProviderError{Provider: "openai", Message: "closed"}).Error())
}

func TestMessageIsComposite(t *testing.T) {
	assert.False(t, Message{Role: RoleUser, Content: "hi"}.IsComposite())
	assert.True(t, Message{Role: RoleUser, Content: "look", ImageURL: "https://x/y.png"}.IsComposite())
}
