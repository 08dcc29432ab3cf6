package agent

import (
	"context"
	"errors"

	"github.com/soyeahso/paxxium/internal/llm"
)

// Fragments is a finite, non-restartable sequence of reply fragments read
// from one provider stream. Use it like bufio.Scanner:
//
//	for s.Next() {
//		use(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
type Fragments struct {
	provider string
	events   <-chan llm.StreamEvent
	cancel   context.CancelFunc

	text string
	resp *llm.CompletionResponse
	err  error
	done bool
}

// OpenStream starts a streaming completion. Failures are returned as
// *llm.ProviderError and are never retried here.
func OpenStream(ctx context.Context, client llm.Client, req llm.CompletionRequest) (*Fragments, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := client.Stream(ctx, req)
	if err != nil {
		cancel()
		return nil, asProviderError(client.Name(), err)
	}
	return &Fragments{provider: client.Name(), events: events, cancel: cancel}, nil
}

// Next blocks until the next non-empty fragment is available. It returns
// false when the stream has ended, normally or not.
func (f *Fragments) Next() bool {
	if f.done {
		return false
	}
	for evt := range f.events {
		switch evt.Type {
		case llm.EventDelta:
			if evt.Content == "" {
				continue
			}
			f.text = evt.Content
			return true
		case llm.EventDone:
			f.resp = evt.Response
			if f.resp == nil {
				f.resp = &llm.CompletionResponse{}
			}
			f.finish(nil)
			return false
		case llm.EventError:
			err := evt.Err
			if err == nil {
				err = errors.New("stream error")
			}
			f.finish(asProviderError(f.provider, err))
			return false
		}
	}
	f.finish(&llm.ProviderError{Provider: f.provider, Message: "stream ended without completion"})
	return false
}

// Text returns the fragment read by the last successful Next.
func (f *Fragments) Text() string { return f.text }

// Err returns the error that ended the stream, if any.
func (f *Fragments) Err() error { return f.err }

// Response returns the final response after a normal end. It carries any
// tool calls the model asked for.
func (f *Fragments) Response() *llm.CompletionResponse { return f.resp }

// Close abandons the stream and releases the upstream connection.
func (f *Fragments) Close() {
	if !f.done {
		f.finish(context.Canceled)
	}
}

func (f *Fragments) finish(err error) {
	f.done = true
	f.err = err
	f.text = ""
	f.cancel()
}

func asProviderError(provider string, err error) error {
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &llm.ProviderError{Provider: provider, Message: err.Error()}
}
