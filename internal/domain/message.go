package domain

import "time"

// Authors recorded on persisted messages.
const (
	AuthorUser  = "user"
	AuthorAgent = "agent"
)

// Role tags a turn handed to the completion provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted conversation turn. Messages are never mutated;
// a conversation only shrinks through an explicit clear.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Author         string    `json:"message_from"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Role maps the author to a provider role. Only "user" is the user role;
// every other author speaks as the assistant.
func (m Message) Role() Role {
	if m.Author == AuthorUser {
		return RoleUser
	}
	return RoleAssistant
}

// Conversation is the ordered history of one conversation, owned by one user.
type Conversation struct {
	ID       string    `json:"conversation_id"`
	UserID   string    `json:"user_id"`
	Messages []Message `json:"messages"`
}

// ChatSettings is the per-request agent configuration sent by clients.
type ChatSettings struct {
	ChatID         string `json:"chatId"`
	AgentModel     string `json:"agentModel,omitempty"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	ChatConstants  string `json:"chatConstants,omitempty"`
	UseProfileData bool   `json:"useProfileData,omitempty"`
}

// InboundMessage is a user turn arriving over HTTP, websocket or the CLI.
type InboundMessage struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	ConversationID string       `json:"conversationId"`
	Author         string       `json:"message_from"`
	Content        string       `json:"content"`
	ImageURL       string       `json:"image_url,omitempty"`
	Settings       ChatSettings `json:"chatSettings"`
	// History is the client supplied chat history. Nil means the
	// persisted conversation is used instead.
	History   []Message `json:"chatHistory,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamEvent is published to rooms and written to NDJSON responses for
// every fragment of an assistant reply.
type StreamEvent struct {
	MessageFrom    string `json:"message_from"`
	Content        string `json:"content"`
	ConversationID string `json:"chat_id"`
	Type           string `json:"type"`
}

// StreamEventType is the only event type emitted for reply fragments.
const StreamEventType = "stream"
