package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create messages",
		SQL: `
			CREATE TABLE messages (
				seq             INTEGER PRIMARY KEY AUTOINCREMENT,
				id              TEXT NOT NULL UNIQUE,
				conversation_id TEXT NOT NULL,
				user_id         TEXT NOT NULL,
				author          TEXT NOT NULL,
				content         TEXT NOT NULL,
				image_url       TEXT,
				created_at      TEXT NOT NULL
			);

			CREATE INDEX idx_messages_conversation ON messages (user_id, conversation_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "create user keys",
		SQL: `
			CREATE TABLE user_keys (
				user_id      TEXT PRIMARY KEY,
				provider_key TEXT NOT NULL,
				search_key   TEXT NOT NULL DEFAULT '',
				updated_at   TEXT NOT NULL
			);
		`,
	},
	{
		Version: 3,
		Name:    "create profiles",
		SQL: `
			CREATE TABLE profiles (
				user_id     TEXT PRIMARY KEY,
				analysis    TEXT NOT NULL DEFAULT '',
				news_topics TEXT NOT NULL DEFAULT '[]',
				answers     TEXT NOT NULL DEFAULT '[]',
				updated_at  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 4,
		Name:    "create notes with FTS5",
		SQL: `
			CREATE TABLE notes (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				content         TEXT NOT NULL,
				created_at      TEXT NOT NULL
			);

			CREATE INDEX idx_notes_conversation ON notes (user_id, conversation_id);

			CREATE VIRTUAL TABLE notes_fts USING fts5(
				content,
				content='notes',
				content_rowid='rowid'
			);

			CREATE TRIGGER notes_ai AFTER INSERT ON notes BEGIN
				INSERT INTO notes_fts(rowid, content) VALUES (new.rowid, new.content);
			END;

			CREATE TRIGGER notes_ad AFTER DELETE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			END;
		`,
	},
}
