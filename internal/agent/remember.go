package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/paxxium/internal/store"
)

// NoteStore keeps remembered notes. store.NoteStore implements it.
type NoteStore interface {
	Save(ctx context.Context, note store.Note) (*store.Note, error)
	List(ctx context.Context, userID, conversationID string, limit int) ([]store.Note, error)
}

// notesInPrompt bounds how many notes the system turn carries.
const notesInPrompt = 20

// Remember saves a note for the conversation. Saved notes are carried in
// the things-to-remember block of later turns.
type Remember struct {
	notes          NoteStore
	userID         string
	conversationID string
}

// NewRemember creates the memory-save capability for one conversation.
func NewRemember(notes NoteStore, userID, conversationID string) *Remember {
	return &Remember{notes: notes, userID: userID, conversationID: conversationID}
}

func (r *Remember) Kind() CapabilityKind { return KindMemorySave }

func (r *Remember) Description() string {
	return "Save a fact the user asks you to remember for the rest of this conversation"
}

func (r *Remember) InputSchema() string {
	return `{"type":"object","properties":{"note":{"type":"string","description":"The fact to remember"}},"required":["note"]}`
}

type rememberInput struct {
	Note string `json:"note"`
}

func (r *Remember) Invoke(ctx context.Context, input string) (string, error) {
	var in rememberInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("invalid memory-save input: %w", err)
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return "", fmt.Errorf("note is required")
	}
	if _, err := r.notes.Save(ctx, store.Note{UserID: r.userID, ConversationID: r.conversationID, Content: note}); err != nil {
		return "", fmt.Errorf("saving note: %w", err)
	}
	return "Saved: " + note, nil
}
