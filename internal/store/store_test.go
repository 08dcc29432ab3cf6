package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func latestVersion() int {
	return migrations[len(migrations)-1].Version
}

func TestDB_OpenInMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())

	v, err := db.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)
}

func TestDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "paxxium.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)
}

func TestDB_MigrateIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	v, err := db.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)
}

func TestDB_MigrationOrder(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version, migrations[i].Name)
	}
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"messages", "user_keys", "profiles", "notes", "notes_fts"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Message Store tests ---

func TestMessageStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	first, err := ms.CreateMessage(ctx, domain.Message{
		ConversationID: "chat-1", UserID: "alice", Author: domain.AuthorUser, Content: "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = ms.CreateMessage(ctx, domain.Message{
		ConversationID: "chat-1", UserID: "alice", Author: domain.AuthorAgent, Content: "hello",
	})
	require.NoError(t, err)

	conv, err := ms.GetAllMessages(ctx, "alice", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", conv.ID)
	assert.Equal(t, "alice", conv.UserID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hi", conv.Messages[0].Content)
	assert.Equal(t, domain.RoleUser, conv.Messages[0].Role())
	assert.Equal(t, "hello", conv.Messages[1].Content)
	assert.Equal(t, domain.RoleAssistant, conv.Messages[1].Role())
	assert.Equal(t, first.ID, conv.Messages[0].ID)
}

func TestMessageStore_PreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	for i := 0; i < 20; i++ {
		_, err := ms.CreateMessage(ctx, domain.Message{
			ConversationID: "c", UserID: "u", Author: domain.AuthorUser, Content: fmt.Sprintf("m%02d", i),
		})
		require.NoError(t, err)
	}

	conv, err := ms.GetAllMessages(ctx, "u", "c")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 20)
	for i, m := range conv.Messages {
		assert.Equal(t, fmt.Sprintf("m%02d", i), m.Content)
	}
}

func TestMessageStore_ImageURL(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	_, err := ms.CreateMessage(ctx, domain.Message{
		ConversationID: "c", UserID: "u", Author: domain.AuthorUser,
		Content: "what is this", ImageURL: "https://files.example.com/cat.png",
	})
	require.NoError(t, err)

	conv, err := ms.GetAllMessages(ctx, "u", "c")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "https://files.example.com/cat.png", conv.Messages[0].ImageURL)
}

func TestMessageStore_GetAll_Empty(t *testing.T) {
	ms := NewMessageStore(testDB(t))

	conv, err := ms.GetAllMessages(context.Background(), "u", "missing")
	require.NoError(t, err)
	assert.NotNil(t, conv.Messages)
	assert.Empty(t, conv.Messages)
}

func TestMessageStore_ScopedByUser(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	_, err := ms.CreateMessage(ctx, domain.Message{ConversationID: "c", UserID: "alice", Author: "user", Content: "mine"})
	require.NoError(t, err)

	conv, err := ms.GetAllMessages(ctx, "bob", "c")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestMessageStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	for _, content := range []string{"a", "b", "c"} {
		_, err := ms.CreateMessage(ctx, domain.Message{ConversationID: "c1", UserID: "u", Author: "user", Content: content})
		require.NoError(t, err)
	}
	_, err := ms.CreateMessage(ctx, domain.Message{ConversationID: "c2", UserID: "u", Author: "user", Content: "keep"})
	require.NoError(t, err)

	n, err := ms.DeleteAllMessages(ctx, "u", "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	conv, err := ms.GetAllMessages(ctx, "u", "c1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)

	conv, err = ms.GetAllMessages(ctx, "u", "c2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)
}

func TestMessageStore_ListConversations(t *testing.T) {
	ctx := context.Background()
	ms := NewMessageStore(testDB(t))

	for _, c := range []string{"old", "new"} {
		_, err := ms.CreateMessage(ctx, domain.Message{ConversationID: c, UserID: "u", Author: "user", Content: "x"})
		require.NoError(t, err)
	}

	ids, err := ms.ListConversations(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

// --- Key Store tests ---

func TestKeyStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyStore(testDB(t))

	require.NoError(t, ks.PutKeys(ctx, "alice", domain.EncryptedKeys{ProviderKey: "enc-1", SearchKey: "enc-2"}))

	keys, err := ks.GetKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "enc-1", keys.ProviderKey)
	assert.Equal(t, "enc-2", keys.SearchKey)

	// Replace.
	require.NoError(t, ks.PutKeys(ctx, "alice", domain.EncryptedKeys{ProviderKey: "enc-3"}))
	keys, err = ks.GetKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "enc-3", keys.ProviderKey)
	assert.Empty(t, keys.SearchKey)
}

func TestKeyStore_NotFound(t *testing.T) {
	ks := NewKeyStore(testDB(t))

	_, err := ks.GetKeys(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeyStore_Delete(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyStore(testDB(t))

	require.NoError(t, ks.PutKeys(ctx, "alice", domain.EncryptedKeys{ProviderKey: "enc"}))
	require.NoError(t, ks.DeleteKeys(ctx, "alice"))

	_, err := ks.GetKeys(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Profile Store tests ---

func TestProfileStore_AnswersThenAnalysis(t *testing.T) {
	ctx := context.Background()
	ps := NewProfileStore(testDB(t))

	answers := []domain.ProfileAnswer{{Question: "Favorite book?", Answer: "Dune"}}
	require.NoError(t, ps.SaveAnswers(ctx, "alice", answers))

	p, err := ps.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, answers, p.Answers)
	assert.Empty(t, p.Analysis)
	assert.Empty(t, p.NewsTopics)

	require.NoError(t, ps.SaveAnalysis(ctx, "alice", "Enjoys long-form science fiction.", []string{"space", "books"}))

	p, err = ps.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Enjoys long-form science fiction.", p.Analysis)
	assert.Equal(t, []string{"space", "books"}, p.NewsTopics)
	assert.Equal(t, answers, p.Answers, "analysis must not drop answers")
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestProfileStore_NotFound(t *testing.T) {
	ps := NewProfileStore(testDB(t))

	_, err := ps.GetProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	analysis, err := ps.Analysis(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, analysis)
}

// --- Note Store tests ---

func TestNoteStore_SaveAndList(t *testing.T) {
	ctx := context.Background()
	ns := NewNoteStore(testDB(t))

	for _, c := range []string{"likes tea", "has a dog named Rex"} {
		_, err := ns.Save(ctx, Note{UserID: "u", ConversationID: "c", Content: c})
		require.NoError(t, err)
	}
	_, err := ns.Save(ctx, Note{UserID: "u", ConversationID: "other", Content: "elsewhere"})
	require.NoError(t, err)

	notes, err := ns.List(ctx, "u", "c", 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "likes tea", notes[0].Content)
	assert.Equal(t, "has a dog named Rex", notes[1].Content)
}

func TestNoteStore_Search(t *testing.T) {
	ctx := context.Background()
	ns := NewNoteStore(testDB(t))

	_, err := ns.Save(ctx, Note{UserID: "u", ConversationID: "c", Content: "Go is a statically typed compiled language."})
	require.NoError(t, err)
	_, err = ns.Save(ctx, Note{UserID: "u", ConversationID: "c", Content: "User prefers dark mode."})
	require.NoError(t, err)
	_, err = ns.Save(ctx, Note{UserID: "someone-else", ConversationID: "c", Content: "compiled elsewhere"})
	require.NoError(t, err)

	results, err := ns.Search(ctx, "u", "compiled", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "Go")
}

func TestNoteStore_SearchEscapesSyntax(t *testing.T) {
	ctx := context.Background()
	ns := NewNoteStore(testDB(t))

	_, err := ns.Save(ctx, Note{UserID: "u", ConversationID: "c", Content: "dark mode please"})
	require.NoError(t, err)

	results, err := ns.Search(ctx, "u", `dark" OR NEAR(`, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = ns.Search(ctx, "u", "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNoteStore_DeleteByConversation(t *testing.T) {
	ctx := context.Background()
	ns := NewNoteStore(testDB(t))

	_, err := ns.Save(ctx, Note{UserID: "u", ConversationID: "c", Content: "temporary fact"})
	require.NoError(t, err)
	require.NoError(t, ns.DeleteByConversation(ctx, "u", "c"))

	notes, err := ns.List(ctx, "u", "c", 0)
	require.NoError(t, err)
	assert.Empty(t, notes)

	results, err := ns.Search(ctx, "u", "temporary", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"go" OR "compiled"`, ftsQuery("go compiled"))
	assert.Equal(t, `"dark" OR "OR" OR "NEAR("`, ftsQuery(`dark" OR NEAR(`))
	assert.Equal(t, "", ftsQuery(`  "" `))
}
