package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/soyeahso/paxxium/internal/logging"
)

// OpenAIClient talks to the OpenAI chat completions API, or any server
// speaking the same protocol when BaseURL is set.
type OpenAIClient struct {
	client *openai.Client
	log    *logging.Logger
}

// NewOpenAIClient creates a provider bound to one API key. An empty baseURL
// uses the public endpoint.
func NewOpenAIClient(apiKey, baseURL string, log *logging.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		log:    log.Sub("llm.openai"),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	creq, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		c.log.Error().Err(err).Str("model", req.Model).Dur("duration", time.Since(start)).Msg("completion failed")
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Message: "no choices in response"}
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Model:      resp.Model,
		Duration:   time.Since(start),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: tc.Function.Arguments})
	}

	c.log.Debug().
		Str("model", req.Model).
		Dur("duration", out.Duration).
		Int("inputTokens", out.Usage.InputTokens).
		Int("outputTokens", out.Usage.OutputTokens).
		Msg("completion finished")
	return out, nil
}

// Stream opens a streaming chat completion. Only non-empty text deltas are
// delivered; tool call fragments are merged into the final response.
func (c *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	creq, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	creq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		c.log.Error().Err(err).Str("model", req.Model).Msg("stream open failed")
		return nil, wrapOpenAIError(err)
	}

	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		start := time.Now()
		var (
			content strings.Builder
			stop    string
			model   string
			usage   Usage
		)
		calls := map[int]*ToolCall{}

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(StreamEvent{Type: EventError, Err: wrapOpenAIError(err)})
				return
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
			}
			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					stop = string(choice.FinishReason)
				}
				for i, tc := range choice.Delta.ToolCalls {
					idx := i
					if tc.Index != nil {
						idx = *tc.Index
					}
					call, ok := calls[idx]
					if !ok {
						call = &ToolCall{}
						calls[idx] = call
					}
					if tc.ID != "" {
						call.ID = tc.ID
					}
					if tc.Function.Name != "" {
						call.Name = tc.Function.Name
					}
					call.Input += tc.Function.Arguments
				}
				if choice.Delta.Content == "" {
					continue
				}
				content.WriteString(choice.Delta.Content)
				if !send(StreamEvent{Type: EventDelta, Content: choice.Delta.Content}) {
					return
				}
			}
		}

		resp := &CompletionResponse{
			Content:    content.String(),
			StopReason: stop,
			Model:      model,
			Usage:      usage,
			Duration:   time.Since(start),
			ToolCalls:  orderedCalls(calls),
		}
		c.log.Debug().Str("model", req.Model).Dur("duration", resp.Duration).Int("toolCalls", len(resp.ToolCalls)).Msg("stream finished")
		send(StreamEvent{Type: EventDone, Response: resp})
	}()

	return ch, nil
}

// GenerateImage creates one image and returns its URL.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          model,
		N:              1,
		Size:           strings.ToLower(req.Size),
		Quality:        strings.ToLower(req.Quality),
		Style:          strings.ToLower(req.Style),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &ProviderError{Provider: "openai", Message: "image response carried no url"}
	}
	return resp.Data[0].URL, nil
}

func orderedCalls(calls map[int]*ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]ToolCall, 0, len(idx))
	for _, i := range idx {
		out = append(out, *calls[i])
	}
	return out
}

func buildChatRequest(req CompletionRequest) (openai.ChatCompletionRequest, error) {
	creq := openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if req.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, toOpenAIMessage(m))
	}

	for _, t := range req.Tools {
		var params json.RawMessage
		if t.InputSchema != "" {
			if !json.Valid([]byte(t.InputSchema)) {
				return creq, &ProviderError{Provider: "openai", Message: "invalid schema for tool " + t.Name}
			}
			params = json.RawMessage(t.InputSchema)
		}
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return creq, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: m.Role, ToolCallID: m.ToolCallID}
	if m.IsComposite() {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: m.Content},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: m.ImageURL}},
		}
	} else {
		msg.Content = m.Content
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:       tc.ID,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Input},
		})
	}
	return msg
}

// wrapOpenAIError maps client errors onto ProviderError, keeping the HTTP
// status so callers can tell rate limits from transport failures.
func wrapOpenAIError(err error) error {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "openai", Message: apiErr.Message, Code: apiErr.HTTPStatusCode}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: "openai", Message: reqErr.Error(), Code: reqErr.HTTPStatusCode}
	}
	return &ProviderError{Provider: "openai", Message: err.Error()}
}

// OpenAIFactory returns a ClientFactory producing OpenAIClients that share
// one base URL and logger.
func OpenAIFactory(baseURL string, log *logging.Logger) ClientFactory {
	return func(apiKey string) Client {
		return NewOpenAIClient(apiKey, baseURL, log)
	}
}
