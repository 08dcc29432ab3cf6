package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/paxxium/internal/domain"
)

// timeLayout keeps sub-second precision so same-second rows stay distinct.
const timeLayout = time.RFC3339Nano

// MessageStore is the message persistence service backed by SQLite.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a message store using the given database.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// CreateMessage appends one message to a conversation and returns it with
// its id and timestamp filled in.
func (s *MessageStore) CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var image sql.NullString
	if msg.ImageURL != "" {
		image = sql.NullString{String: msg.ImageURL, Valid: true}
	}

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, author, content, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.UserID, msg.Author, msg.Content, image,
		msg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("conversationId", msg.ConversationID).Msg("failed to create message")
		return nil, err
	}
	return &msg, nil
}

// GetAllMessages returns the conversation in insertion order. A conversation
// with no messages is returned empty, not as an error.
func (s *MessageStore) GetAllMessages(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, author, content, image_url, created_at
		 FROM messages WHERE user_id = ? AND conversation_id = ? ORDER BY seq`,
		userID, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conv := &domain.Conversation{ID: conversationID, UserID: userID, Messages: []domain.Message{}}
	for rows.Next() {
		var msg domain.Message
		var image sql.NullString
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.Author, &msg.Content, &image, &createdAt); err != nil {
			return nil, err
		}
		msg.ImageURL = image.String
		msg.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// DeleteAllMessages clears a conversation and reports how many rows went.
func (s *MessageStore) DeleteAllMessages(ctx context.Context, userID, conversationID string) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND conversation_id = ?`, userID, conversationID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListConversations returns the conversation ids a user has messages in,
// most recently active first.
func (s *MessageStore) ListConversations(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT conversation_id FROM messages WHERE user_id = ?
		 GROUP BY conversation_id ORDER BY MAX(seq) DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
