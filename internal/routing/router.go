// Package routing dispatches inbound user turns to their conversation's
// agent. It owns the order of side effects around a reply: history is read,
// the user turn is persisted, then the agent streams and persists its own
// turn.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/paxxium/internal/agent"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/hooks"
	"github.com/soyeahso/paxxium/internal/logging"
)

// ErrEmptyMessage rejects turns with neither text nor an image.
var ErrEmptyMessage = errors.New("message has no content")

// Conversations is the message store the router reads and writes.
// store.MessageStore implements it.
type Conversations interface {
	CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
	GetAllMessages(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	DeleteAllMessages(ctx context.Context, userID, conversationID string) (int64, error)
}

// Agents hands out per-conversation agents. *agent.Pool implements it.
type Agents interface {
	Get(ctx context.Context, userID, conversationID string, s agent.Settings) (*agent.Agent, error)
	Lookup(userID, conversationID string) (*agent.Agent, bool)
	Defaults() agent.Settings
}

// Config tunes the router.
type Config struct {
	// StreamTimeout bounds one stream-and-emit cycle. Zero means no bound.
	StreamTimeout time.Duration
	Retry         agent.RetryPolicy
}

// Router routes inbound messages to agents.
type Router struct {
	agents   Agents
	messages Conversations
	hooks    *hooks.Manager
	cfg      Config
	log      *logging.Logger
}

// NewRouter creates a message router. hm may be nil.
func NewRouter(agents Agents, messages Conversations, hm *hooks.Manager, cfg Config, log *logging.Logger) *Router {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = agent.DefaultRetryPolicy
	}
	return &Router{
		agents:   agents,
		messages: messages,
		hooks:    hm,
		cfg:      cfg,
		log:      log.Sub("routing"),
	}
}

// Handle processes one user turn. Fragments reach the conversation's rooms
// and sink as they arrive. The returned reply has already been persisted.
func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error) {
	msg = normalize(msg)
	if msg.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if msg.ConversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if strings.TrimSpace(msg.Content) == "" && msg.ImageURL == "" {
		return nil, ErrEmptyMessage
	}

	log := r.log.With("userId", msg.UserID).With("conversationId", msg.ConversationID)
	log.Info().Bool("image", msg.ImageURL != "").Msg("routing inbound message")

	r.hooks.Emit(ctx, hooks.EventMessageReceived, map[string]any{
		"userId":         msg.UserID,
		"conversationId": msg.ConversationID,
		"messageId":      msg.ID,
		"image":          msg.ImageURL != "",
	})

	// History is read before the user turn lands so the new turn is never
	// part of its own context.
	history := msg.History
	if history == nil {
		conv, err := r.messages.GetAllMessages(ctx, msg.UserID, msg.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		history = conv.Messages
	}

	a, err := r.agents.Get(ctx, msg.UserID, msg.ConversationID, agent.SettingsFromChat(msg.Settings, r.agents.Defaults()))
	if err != nil {
		log.Warn().Err(err).Msg("no agent for conversation")
		return nil, err
	}

	if _, err := r.persistUser(ctx, msg); err != nil {
		log.Error().Err(err).Msg("user message not persisted")
		return nil, err
	}

	r.hooks.Emit(ctx, hooks.EventBeforeAgentRun, map[string]any{
		"userId":         msg.UserID,
		"conversationId": msg.ConversationID,
		"historyTurns":   len(history),
	})

	runCtx := ctx
	if r.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.StreamTimeout)
		defer cancel()
	}

	reply, err := a.Respond(runCtx, agent.Request{
		Text:     msg.Content,
		ImageURL: msg.ImageURL,
		History:  history,
		Sink:     sink,
	})

	after := map[string]any{
		"userId":         msg.UserID,
		"conversationId": msg.ConversationID,
	}
	if err != nil {
		after["error"] = err.Error()
		r.hooks.Emit(ctx, hooks.EventAfterAgentRun, after)
		log.Error().Err(err).Msg("agent run failed")
		return nil, err
	}
	after["model"] = reply.Model
	after["fragments"] = reply.Fragments
	after["durationMs"] = reply.Duration.Milliseconds()
	r.hooks.Emit(ctx, hooks.EventAfterAgentRun, after)

	r.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventMessagePersisted, map[string]any{
		"userId":         msg.UserID,
		"conversationId": msg.ConversationID,
		"messageId":      reply.Message.ID,
		"author":         reply.Message.Author,
		"length":         len(reply.Message.Content),
	})

	log.Info().
		Str("model", reply.Model).
		Int("fragments", reply.Fragments).
		Dur("duration", reply.Duration).
		Msg("reply completed")
	return reply, nil
}

// History returns the persisted conversation.
func (r *Router) History(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	return r.messages.GetAllMessages(ctx, userID, conversationID)
}

// Clear deletes the conversation's messages and empties the live agent's
// short-term memory.
func (r *Router) Clear(ctx context.Context, userID, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("conversation id is required")
	}
	n, err := r.messages.DeleteAllMessages(ctx, userID, conversationID)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "delete messages", Err: err}
	}
	if a, ok := r.agents.Lookup(userID, conversationID); ok {
		a.ClearMemory()
	}
	r.hooks.Emit(ctx, hooks.EventMemoryCleared, map[string]any{
		"userId":         userID,
		"conversationId": conversationID,
		"deleted":        n,
	})
	r.log.Info().Str("userId", userID).Str("conversationId", conversationID).Int64("deleted", n).Msg("conversation cleared")
	return n, nil
}

func (r *Router) persistUser(ctx context.Context, msg domain.InboundMessage) (*domain.Message, error) {
	turn := domain.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Author:         msg.Author,
		Content:        msg.Content,
		ImageURL:       msg.ImageURL,
		CreatedAt:      msg.Timestamp,
	}
	var saved *domain.Message
	err := r.cfg.Retry.Do(ctx, func(int) error {
		var err error
		saved, err = r.messages.CreateMessage(ctx, turn)
		return err
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "create user message", Err: err}
	}
	return saved, nil
}

// normalize fills the defaults a client may leave out.
func normalize(msg domain.InboundMessage) domain.InboundMessage {
	if msg.ConversationID == "" {
		msg.ConversationID = msg.Settings.ChatID
	}
	if msg.Author == "" {
		msg.Author = domain.AuthorUser
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}
