package store

import (
	"log/slog"
	"strings"
)

// SearchMessages runs a full-text search over message text and sender name,
// newest first. When the FTS index is unusable the query degrades to a LIKE
// scan over text.
func (s *Store) SearchMessages(keyword string, limit int) ([]*Message, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}

	msgs, err := s.queryMessages(`SELECT m.id, m.group_id, m.sender_id, m.sender_name,
		m.text, m.date, m.media_type, m.forward_from, m.reply_to_id, COALESCE(g.title, '')
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		LEFT JOIN groups g ON g.id = m.group_id
		WHERE messages_fts MATCH ?
		ORDER BY m.date DESC LIMIT ?`,
		ftsPhrase(keyword), limit)
	if err == nil {
		return msgs, nil
	}

	slog.Warn("fts search failed, falling back to LIKE", "error", err)
	return s.queryMessages(`SELECT m.id, m.group_id, m.sender_id, m.sender_name,
		m.text, m.date, m.media_type, m.forward_from, m.reply_to_id, COALESCE(g.title, '')
		FROM messages m
		LEFT JOIN groups g ON g.id = m.group_id
		WHERE m.text LIKE ?
		ORDER BY m.date DESC LIMIT ?`,
		"%"+keyword+"%", limit)
}

// ftsPhrase quotes the user keyword as a single FTS5 phrase so that query
// syntax characters in the input cannot change the query shape.
func ftsPhrase(kw string) string {
	return `"` + strings.ReplaceAll(kw, `"`, `""`) + `"`
}
