package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
)

// Transport is the realtime side of emission. The gateway hub implements it.
type Transport interface {
	// Join subscribes the emitting session to a room. Joining twice is a no-op.
	Join(room string)
	// Publish delivers one event to every subscriber of a room.
	Publish(room string, evt domain.StreamEvent)
	// Yield hands control back to other sessions between fragments.
	Yield()
}

// Sink receives every event after it is published. Returning an error
// aborts the stream.
type Sink func(evt domain.StreamEvent) error

// MessageWriter persists messages. store.MessageStore implements it.
type MessageWriter interface {
	CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
}

// Emitter fans fragments out to rooms and accumulates the reply. The
// accumulated text is always the concatenation of emitted fragments in
// emission order.
type Emitter struct {
	transport      Transport
	sink           Sink
	rooms          []string
	conversationID string
	speaker        string
	log            *logging.Logger

	acc       strings.Builder
	fragments int
}

// NewEmitter creates an emitter for one reply. transport and sink may be nil.
func NewEmitter(transport Transport, sink Sink, rooms []string, conversationID, speaker string, log *logging.Logger) *Emitter {
	if speaker == "" {
		speaker = domain.AuthorAgent
	}
	return &Emitter{
		transport:      transport,
		sink:           sink,
		rooms:          rooms,
		conversationID: conversationID,
		speaker:        speaker,
		log:            log,
	}
}

// Emit publishes one fragment to every room, hands it to the sink and
// extends the accumulator.
func (e *Emitter) Emit(fragment string) error {
	evt := domain.StreamEvent{
		MessageFrom:    e.speaker,
		Content:        fragment,
		ConversationID: e.conversationID,
		Type:           domain.StreamEventType,
	}

	e.acc.WriteString(fragment)
	e.fragments++

	if e.transport != nil {
		for _, room := range e.rooms {
			e.transport.Join(room)
			e.transport.Publish(room, evt)
		}
	}
	if e.sink != nil {
		if err := e.sink(evt); err != nil {
			return err
		}
	}
	if e.transport != nil {
		e.transport.Yield()
	}
	return nil
}

// Text returns the accumulated reply.
func (e *Emitter) Text() string { return e.acc.String() }

// Fragments returns how many fragments were emitted.
func (e *Emitter) Fragments() int { return e.fragments }

// Persist stores exactly one assistant message holding the accumulated
// reply, retrying failed writes.
func (e *Emitter) Persist(ctx context.Context, w MessageWriter, userID string, policy RetryPolicy) (*domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: e.conversationID,
		UserID:         userID,
		Author:         e.speaker,
		Content:        e.Text(),
		CreatedAt:      time.Now().UTC(),
	}

	var stored *domain.Message
	err := policy.Do(ctx, func(attempt int) error {
		var err error
		stored, err = w.CreateMessage(ctx, msg)
		if err != nil && e.log != nil {
			e.log.Warn().Err(err).Int("attempt", attempt).Str("conversationId", e.conversationID).Msg("persisting reply failed")
		}
		return err
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "create message", Err: err}
	}
	return stored, nil
}
