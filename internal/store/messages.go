package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// InsertMessage inserts a single live message and extracts its links within
// the same transaction. A redelivered id is ignored so the FTS index keeps
// exactly one entry per row; edits arrive through UpdateMessageText.
func (s *Store) InsertMessage(m *Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT OR IGNORE INTO messages
		(id, group_id, sender_id, sender_name, text, date, media_type, forward_from, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.SenderID, m.SenderName, m.Text, m.Date,
		m.MediaType, m.ForwardFrom, m.ReplyToID,
	)
	if err != nil {
		return fmt.Errorf("insert message %d/%d: %w", m.GroupID, m.ID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if err := insertLinksTx(tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertMessagesBatch inserts many messages in one transaction, ignoring
// rows already present. Used by history fetch and gap recovery; it must not
// clobber edits applied after the backfilled copy was captured. Returns the
// number of newly inserted rows.
func (s *Store) InsertMessagesBatch(msgs []*Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO messages
		(id, group_id, sender_id, sender_name, text, date, media_type, forward_from, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range msgs {
		res, err := stmt.Exec(m.ID, m.GroupID, m.SenderID, m.SenderName, m.Text,
			m.Date, m.MediaType, m.ForwardFrom, m.ReplyToID)
		if err != nil {
			return 0, fmt.Errorf("batch insert %d/%d: %w", m.GroupID, m.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
			if err := insertLinksTx(tx, m); err != nil {
				return 0, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

// UpdateMessageText applies an edit event. Returns true when the row
// actually changed; an identical re-edit matches nothing.
func (s *Store) UpdateMessageText(id, groupID int64, newText string, newMediaType *string) (bool, error) {
	res, err := s.db.Exec(`UPDATE messages
		SET text = ?, media_type = COALESCE(?, media_type)
		WHERE id = ? AND group_id = ? AND text IS NOT ?`,
		newText, newMediaType, id, groupID, newText)
	if err != nil {
		return false, fmt.Errorf("update message %d/%d: %w", groupID, id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMessages removes messages and their links. Explicit FTS delete ops
// are issued best-effort before the physical removal. Returns deleted count.
func (s *Store) DeleteMessages(ids []int64, groupID int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ph := placeholders(len(ids))
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	argsWithGroup := append(append([]any{}, args...), groupID)

	// Best effort: keep the index consistent even if the delete trigger is
	// missing on an old database. Errors here are swallowed.
	rows, err := s.db.Query(
		"SELECT rowid, text, sender_name FROM messages WHERE id IN ("+ph+") AND group_id = ?",
		argsWithGroup...)
	if err == nil {
		type ftsRow struct {
			rowid      int64
			text       sql.NullString
			senderName sql.NullString
		}
		var frs []ftsRow
		for rows.Next() {
			var fr ftsRow
			if rows.Scan(&fr.rowid, &fr.text, &fr.senderName) == nil {
				frs = append(frs, fr)
			}
		}
		rows.Close()
		for _, fr := range frs {
			if _, err := s.db.Exec(
				"INSERT INTO messages_fts(messages_fts, rowid, text, sender_name) VALUES ('delete', ?, ?, ?)",
				fr.rowid, fr.text, fr.senderName); err != nil {
				slog.Debug("fts delete op failed", "rowid", fr.rowid, "error", err)
			}
		}
	}

	if _, err := s.db.Exec(
		"DELETE FROM links WHERE message_id IN ("+ph+") AND group_id = ?",
		argsWithGroup...); err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}

	res, err := s.db.Exec(
		"DELETE FROM messages WHERE id IN ("+ph+") AND group_id = ?",
		argsWithGroup...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CleanupOldMessages deletes messages and links older than days, in 5000-row
// chunks with a short yield between chunks so live inserts are not starved.
func (s *Store) CleanupOldMessages(ctx context.Context, days int) (int, error) {
	cutoff := isoTime(time.Now().AddDate(0, 0, -days))

	if _, err := s.db.Exec("DELETE FROM links WHERE date < ?", cutoff); err != nil {
		return 0, fmt.Errorf("cleanup links: %w", err)
	}

	total := 0
	for {
		res, err := s.db.Exec(`DELETE FROM messages WHERE rowid IN (
			SELECT rowid FROM messages WHERE date < ? LIMIT 5000)`, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup messages: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < 5000 {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// GetMessagesSince returns messages in [since, until) ordered by date,
// optionally scoped to one group, joined with the group title.
func (s *Store) GetMessagesSince(since, until string, groupID *int64) ([]*Message, error) {
	q := `SELECT m.id, m.group_id, m.sender_id, m.sender_name, m.text, m.date,
		m.media_type, m.forward_from, m.reply_to_id, COALESCE(g.title, '')
		FROM messages m LEFT JOIN groups g ON g.id = m.group_id
		WHERE m.date >= ? AND m.date < ?`
	args := []any{since, until}
	if groupID != nil {
		q += " AND m.group_id = ?"
		args = append(args, *groupID)
	}
	q += " ORDER BY m.group_id, m.date"
	return s.queryMessages(q, args...)
}

// GetRecentMessages returns the latest n messages for a group in
// chronological order (queried newest-first, then reversed).
func (s *Store) GetRecentMessages(groupID int64, n int) ([]*Message, error) {
	msgs, err := s.queryMessages(`SELECT m.id, m.group_id, m.sender_id, m.sender_name,
		m.text, m.date, m.media_type, m.forward_from, m.reply_to_id, COALESCE(g.title, '')
		FROM messages m LEFT JOIN groups g ON g.id = m.group_id
		WHERE m.group_id = ? ORDER BY m.date DESC LIMIT ?`, groupID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetGroupMessages returns up to limit messages for a group within the last
// hours, chronological.
func (s *Store) GetGroupMessages(groupID int64, hours, limit int) ([]*Message, error) {
	since := isoTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	return s.queryMessages(`SELECT m.id, m.group_id, m.sender_id, m.sender_name,
		m.text, m.date, m.media_type, m.forward_from, m.reply_to_id, COALESCE(g.title, '')
		FROM messages m LEFT JOIN groups g ON g.id = m.group_id
		WHERE m.group_id = ? AND m.date >= ? ORDER BY m.date LIMIT ?`,
		groupID, since, limit)
}

// LatestMessageDate returns the most recent persisted message date, or ""
// when the store is empty.
func (s *Store) LatestMessageDate() (string, error) {
	var d sql.NullString
	if err := s.db.QueryRow("SELECT MAX(date) FROM messages").Scan(&d); err != nil {
		return "", err
	}
	return d.String, nil
}

// CountMessagesSince counts messages newer than since, optionally per group.
func (s *Store) CountMessagesSince(since string, groupID *int64) (int, error) {
	q := "SELECT COUNT(*) FROM messages WHERE date >= ?"
	args := []any{since}
	if groupID != nil {
		q += " AND group_id = ?"
		args = append(args, *groupID)
	}
	var n int
	err := s.db.QueryRow(q, args...).Scan(&n)
	return n, err
}

// GetDateRange returns the oldest and newest message dates.
func (s *Store) GetDateRange() (oldest, newest string, err error) {
	var lo, hi sql.NullString
	err = s.db.QueryRow("SELECT MIN(date), MAX(date) FROM messages").Scan(&lo, &hi)
	return lo.String, hi.String, err
}

// ExportRow is one line of a message export.
type ExportRow struct {
	Date       string
	GroupTitle string
	SenderName string
	Text       string
	MediaType  string
}

// ExportMessages returns a flat projection suitable for CSV export.
func (s *Store) ExportMessages(since, until string, groupID *int64, limit int) ([]ExportRow, error) {
	q := `SELECT m.date, COALESCE(g.title, ''), COALESCE(m.sender_name, ''),
		COALESCE(m.text, ''), COALESCE(m.media_type, '')
		FROM messages m LEFT JOIN groups g ON g.id = m.group_id
		WHERE m.date >= ? AND m.date < ?`
	args := []any{since, until}
	if groupID != nil {
		q += " AND m.group_id = ?"
		args = append(args, *groupID)
	}
	q += " ORDER BY m.date LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExportRow
	for rows.Next() {
		var r ExportRow
		if err := rows.Scan(&r.Date, &r.GroupTitle, &r.SenderName, &r.Text, &r.MediaType); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- helpers ---

func (s *Store) queryMessages(q string, args ...any) ([]*Message, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var senderName, groupTitle sql.NullString
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &senderName, &m.Text,
			&m.Date, &m.MediaType, &m.ForwardFrom, &m.ReplyToID, &groupTitle); err != nil {
			return nil, err
		}
		m.SenderName = senderName.String
		m.GroupTitle = groupTitle.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
