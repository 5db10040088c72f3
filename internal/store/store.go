package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the embedded SQLite database. A single connection is shared by
// all ingestion workers and the summarizer; database/sql serializes access
// and busy_timeout absorbs backfill bursts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path, applies the
// connection PRAGMAs, bootstraps the schema and runs pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer connection; WAL readers go through it as well.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}

	pragmas := []string{
		"PRAGMA busy_timeout=60000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-32000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA wal_autocheckpoint=1000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", p, err)
		}
	}

	if err := s.bootstrapSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initFTS(); err != nil {
		// FTS is optional at runtime: search falls back to LIKE.
		slog.Warn("fts5 init failed, search falls back to LIKE", "error", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connected (WAL mode)", "path", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// bootstrapSchema executes the base DDL statement by statement so that an
// "already exists" failure on one statement cannot poison the rest.
func (s *Store) bootstrapSchema() error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			// The links UNIQUE index fails when an older database carries
			// duplicates. Dedup keeping MIN(rowid), then retry once.
			if strings.Contains(stmt, "idx_links_unique") && isConstraintErr(err) {
				slog.Warn("links table has duplicates, deduplicating before unique index")
				if _, derr := s.db.Exec(`DELETE FROM links WHERE rowid NOT IN (
					SELECT MIN(rowid) FROM links GROUP BY url, group_id, message_id)`); derr != nil {
					return fmt.Errorf("dedup links: %w", derr)
				}
				if _, rerr := s.db.Exec(stmt); rerr != nil {
					return fmt.Errorf("recreate links unique index: %w", rerr)
				}
				slog.Info("links deduplicated, unique index created")
				continue
			}
			return fmt.Errorf("schema bootstrap: %w (sql: %.120s)", err, stmt)
		}
	}
	return nil
}

// initFTS creates the external-content FTS5 table and its sync triggers,
// then rebuilds the index if it is empty while messages exist (cold start
// on a pre-FTS database).
func (s *Store) initFTS() error {
	for _, stmt := range []string{ftsCreateSQL, ftsInsertTrigger, ftsUpdateTrigger, ftsDeleteTrigger} {
		if _, err := s.db.Exec(stmt); err != nil && !isAlreadyExists(err) {
			return err
		}
	}

	var ftsCount, msgCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages_fts").Scan(&ftsCount); err != nil {
		return err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE text IS NOT NULL").Scan(&msgCount); err != nil {
		return err
	}
	if ftsCount == 0 && msgCount > 0 {
		slog.Info("rebuilding fts index", "messages", msgCount)
		if _, err := s.db.Exec("INSERT INTO messages_fts(messages_fts) VALUES('rebuild')"); err != nil {
			return err
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}

// ISOTime formats t as the canonical ISO-8601 UTC second-precision string
// used for every persisted timestamp. All comparisons are lexicographic, so
// one format must be used everywhere.
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func isoTime(t time.Time) string { return ISOTime(t) }

// isoNow is isoTime(time.Now()).
func isoNow() string {
	return isoTime(time.Now())
}
