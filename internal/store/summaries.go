package store

import (
	"fmt"
	"strings"
)

// SaveSummary persists a generated report. groupID nil records a cross-group
// summary.
func (s *Store) SaveSummary(groupID *int64, periodStart, periodEnd string, messageCount int, content, model string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO summaries
		(group_id, period_start, period_end, message_count, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		groupID, periodStart, periodEnd, messageCount, content, model, isoNow())
	if err != nil {
		return 0, fmt.Errorf("save summary: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// GetLatestSummaries returns the newest summaries, skipping failed ones
// (contents carrying the failure marker).
func (s *Store) GetLatestSummaries(limit int) ([]Summary, error) {
	rows, err := s.db.Query(`SELECT id, group_id, COALESCE(period_start, ''),
		COALESCE(period_end, ''), COALESCE(message_count, 0), COALESCE(content, ''),
		COALESCE(model, ''), COALESCE(created_at, '')
		FROM summaries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.GroupID, &sm.PeriodStart, &sm.PeriodEnd,
			&sm.MessageCount, &sm.Content, &sm.Model, &sm.CreatedAt); err != nil {
			return nil, err
		}
		if strings.HasPrefix(sm.Content, "❌") {
			continue
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
