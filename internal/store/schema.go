package store

// Base schema. Executed statement by statement; triggers and the FTS table
// carry embedded semicolons and live in their own constants below.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS groups (
	id INTEGER PRIMARY KEY,
	title TEXT,
	username TEXT,
	member_count INTEGER,
	added_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER NOT NULL,
	group_id INTEGER NOT NULL,
	sender_id INTEGER,
	sender_name TEXT,
	text TEXT,
	date TEXT NOT NULL,
	media_type TEXT,
	forward_from TEXT,
	reply_to_id INTEGER,
	PRIMARY KEY (id, group_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);

CREATE INDEX IF NOT EXISTS idx_messages_group_date ON messages(group_id, date);

CREATE TABLE IF NOT EXISTS links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	domain TEXT,
	group_id INTEGER,
	message_id INTEGER,
	sender_name TEXT,
	context TEXT,
	date TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_links_unique ON links(url, group_id, message_id);

CREATE INDEX IF NOT EXISTS idx_links_date ON links(date);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id INTEGER,
	period_start TEXT,
	period_end TEXT,
	message_count INTEGER DEFAULT 0,
	content TEXT,
	model TEXT,
	created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	description TEXT,
	applied_at TEXT
)
`

// External-content FTS index over messages. The content table holds the
// authoritative row; the index carries only tokens for text and sender_name.
const ftsCreateSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	text,
	sender_name,
	content='messages',
	content_rowid='rowid'
)`

const ftsInsertTrigger = `
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, text, sender_name)
	VALUES (new.rowid, new.text, new.sender_name);
END`

const ftsUpdateTrigger = `
CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages
WHEN new.text IS NOT old.text BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, text, sender_name)
	VALUES ('delete', old.rowid, old.text, old.sender_name);
	INSERT INTO messages_fts(rowid, text, sender_name)
	VALUES (new.rowid, new.text, new.sender_name);
END`

const ftsDeleteTrigger = `
CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, text, sender_name)
	VALUES ('delete', old.rowid, old.text, old.sender_name);
END`
