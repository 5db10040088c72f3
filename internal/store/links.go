package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs up to whitespace, common ASCII delimiters
// or CJK closing punctuation. The CJK class matters on mixed-script input:
// without it a URL pasted mid-sentence swallows the trailing punctuation.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]` + "，。！？、；：）》」』】" + `\x{200B}]+`)

// ExtractURLs returns all URLs found in text, in order of appearance.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	return urlPattern.FindAllString(text, -1)
}

// insertLinksTx extracts URLs from the message text and records each one,
// ignoring tuples already present.
func insertLinksTx(tx *sql.Tx, m *Message) error {
	text := m.TextOrEmpty()
	urls := ExtractURLs(text)
	if len(urls) == 0 {
		return nil
	}
	context := text
	if runes := []rune(text); len(runes) > 200 {
		context = string(runes[:200])
	}
	for _, u := range urls {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO links
			(url, domain, group_id, message_id, sender_name, context, date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u, domainOf(u), m.GroupID, m.ID, m.SenderName, context, m.Date,
		); err != nil {
			return fmt.Errorf("insert link %s: %w", u, err)
		}
	}
	return nil
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// AggregatedLink is a URL rolled up across repost occurrences.
type AggregatedLink struct {
	URL        string
	Domain     string
	TotalCount int
	GroupCount int
	FirstSeen  string
	LastSeen   string
}

// GetLinksAggregated rolls links up by URL, newest first, skipping blocked
// domains. The blocklist is passed as bound parameters.
func (s *Store) GetLinksAggregated(limit int, blockDomains []string) ([]AggregatedLink, error) {
	q := `SELECT url, COALESCE(domain, ''), COUNT(*) AS total_count,
		COUNT(DISTINCT group_id) AS group_count, MIN(date), MAX(date)
		FROM links`
	var args []any
	if len(blockDomains) > 0 {
		q += " WHERE domain NOT IN (" + placeholders(len(blockDomains)) + ")"
		for _, d := range blockDomains {
			args = append(args, strings.ToLower(d))
		}
	}
	q += " GROUP BY url ORDER BY MAX(date) DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AggregatedLink
	for rows.Next() {
		var l AggregatedLink
		if err := rows.Scan(&l.URL, &l.Domain, &l.TotalCount, &l.GroupCount, &l.FirstSeen, &l.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLinks returns raw link rows newest first, optionally scoped to a group
// and filtered by the domain blocklist.
func (s *Store) GetLinks(groupID *int64, limit int, blockDomains []string) ([]Link, error) {
	q := "SELECT id, url, COALESCE(domain, ''), group_id, message_id, COALESCE(sender_name, ''), COALESCE(context, ''), COALESCE(date, '') FROM links WHERE 1=1"
	var args []any
	if groupID != nil {
		q += " AND group_id = ?"
		args = append(args, *groupID)
	}
	if len(blockDomains) > 0 {
		q += " AND domain NOT IN (" + placeholders(len(blockDomains)) + ")"
		for _, d := range blockDomains {
			args = append(args, strings.ToLower(d))
		}
	}
	q += " ORDER BY date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.URL, &l.Domain, &l.GroupID, &l.MessageID, &l.SenderName, &l.Context, &l.Date); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
