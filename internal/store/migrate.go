package store

import (
	"fmt"
	"log/slog"
)

type migration struct {
	version     int
	description string
	sql         string
}

// Ordered migration ledger. Append only; never renumber.
var migrations = []migration{
	{
		version:     1,
		description: "alerted_messages dedup table",
		sql: `CREATE TABLE IF NOT EXISTS alerted_messages (
			msg_key TEXT PRIMARY KEY,
			alerted_at TEXT NOT NULL
		)`,
	},
	{
		version:     2,
		description: "settings key-value table",
		sql: `CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT
		)`,
	},
	{
		version:     3,
		description: "tenants table for multi-account sessions",
		sql: `CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone TEXT UNIQUE NOT NULL,
			api_id INTEGER,
			api_hash TEXT,
			session_name TEXT NOT NULL,
			active INTEGER DEFAULT 1,
			added_at TEXT
		)`,
	},
	{
		version:     4,
		description: "summary_jobs async job registry",
		sql: `CREATE TABLE IF NOT EXISTS summary_jobs (
			id TEXT PRIMARY KEY,
			group_id INTEGER,
			hours INTEGER,
			mode TEXT,
			status TEXT NOT NULL,
			progress INTEGER DEFAULT 0,
			progress_text TEXT,
			result TEXT,
			error_msg TEXT,
			created_at TEXT,
			updated_at TEXT
		)`,
	},
}

// runMigrations applies every migration above the recorded version, in
// ascending order. A migration whose DDL target already exists (database
// predates the ledger) is recorded as applied.
func (s *Store) runMigrations() error {
	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := s.db.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
			m.version, m.description, isoNow(),
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		slog.Info("migration applied", "version", m.version, "description", m.description)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
