package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Note is a fact the agent was asked to remember for a conversation.
type Note struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Rank           float64   `json:"rank,omitempty"` // FTS5 rank score (search results only)
}

// NoteStore keeps remembered notes with full-text search via SQLite FTS5.
type NoteStore struct {
	db *DB
}

// NewNoteStore creates a note store using the given database.
func NewNoteStore(db *DB) *NoteStore {
	return &NoteStore{db: db}
}

// Save inserts a note.
func (n *NoteStore) Save(ctx context.Context, note Note) (*Note, error) {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	_, err := n.db.sql.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, conversation_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.UserID, note.ConversationID, note.Content, note.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// List returns the notes of one conversation, oldest first. Limit of 0
// defaults to 50.
func (n *NoteStore) List(ctx context.Context, userID, conversationID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := n.db.sql.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, content, created_at, 0
		 FROM notes WHERE user_id = ? AND conversation_id = ?
		 ORDER BY rowid LIMIT ?`,
		userID, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

// Search finds a user's notes matching the query using FTS5, ranked by
// relevance. Limit of 0 defaults to 20.
func (n *NoteStore) Search(ctx context.Context, userID, query string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := n.db.sql.QueryContext(ctx,
		`SELECT n.id, n.user_id, n.conversation_id, n.content, n.created_at, rank
		 FROM notes_fts
		 JOIN notes n ON n.rowid = notes_fts.rowid
		 WHERE notes_fts MATCH ?
		   AND n.user_id = ?
		 ORDER BY rank
		 LIMIT ?`,
		match, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

// DeleteByConversation removes every note of one conversation.
func (n *NoteStore) DeleteByConversation(ctx context.Context, userID, conversationID string) error {
	_, err := n.db.sql.ExecContext(ctx,
		`DELETE FROM notes WHERE user_id = ? AND conversation_id = ?`, userID, conversationID,
	)
	return err
}

// ftsQuery quotes each word so user text never reaches FTS5 as syntax.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var note Note
		var createdAt string
		if err := rows.Scan(&note.ID, &note.UserID, &note.ConversationID, &note.Content, &createdAt, &note.Rank); err != nil {
			return nil, err
		}
		note.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
