package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
)

// FailoverClient runs non-streaming completions against a primary model and
// falls back through a model list on retryable errors. The streaming path
// never goes through it.
type FailoverClient struct {
	client    llm.Client
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary model first,
// then the fallbacks on retryable errors (429, 5xx).
func NewFailoverClient(client llm.Client, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		client:    client,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Complete tries each model in turn, stopping at the first success or the
// first non-retryable error.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	models := f.models(req.Model)

	var lastErr error
	for _, model := range models {
		req.Model = model
		resp, err := f.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if isRetryable(err) {
			f.log.Warn().
				Str("model", model).
				Err(err).
				Msg("retryable error, trying next model")
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// GenerateImage calls the wrapped client when it can make images. Image
// models have no fallbacks.
func (f *FailoverClient) GenerateImage(ctx context.Context, req llm.ImageRequest) (string, error) {
	gen, ok := f.client.(llm.ImageGenerator)
	if !ok {
		return "", &llm.ProviderError{Provider: f.client.Name(), Message: "image generation not supported"}
	}
	return gen.GenerateImage(ctx, req)
}

// models lists the request model (or primary) followed by unique fallbacks.
func (f *FailoverClient) models(requested string) []string {
	first := requested
	if first == "" {
		first = f.primary
	}
	seen := map[string]bool{first: true}
	models := []string{first}
	for _, m := range f.fallbacks {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	return models
}

// isRetryable checks if the error suggests trying another model.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 429, 500, 502, 503, 504, 529:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
