package store

import (
	"time"
)

// Stats is the headline snapshot shown by the CLI and control bot.
type Stats struct {
	TotalMessages int
	TodayMessages int
	ActiveUsers   int
	TotalGroups   int
	TotalLinks    int
	Groups        []GroupStat
}

// GroupStat is one group's share of the snapshot.
type GroupStat struct {
	GroupID      int64
	Title        string
	MessageCount int
}

// GetStats aggregates the headline counters. Active users coalesce the
// nullable sender id onto sender name so anonymous channel posts count as
// one synthetic sender instead of zero.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{}
	todayStart := isoTime(startOfDayUTC(time.Now()))

	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&st.TotalMessages); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE date >= ?", todayStart).Scan(&st.TodayMessages); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT COALESCE(CAST(sender_id AS TEXT), sender_name))
		FROM messages WHERE date >= ?`, todayStart).Scan(&st.ActiveUsers); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM groups").Scan(&st.TotalGroups); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM links").Scan(&st.TotalLinks); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT m.group_id, COALESCE(g.title, ''), COUNT(*)
		FROM messages m LEFT JOIN groups g ON g.id = m.group_id
		GROUP BY m.group_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var gs GroupStat
		if err := rows.Scan(&gs.GroupID, &gs.Title, &gs.MessageCount); err != nil {
			return nil, err
		}
		st.Groups = append(st.Groups, gs)
	}
	return st, rows.Err()
}

// SenderStat is one sender's message count in a window.
type SenderStat struct {
	SenderID   *int64
	SenderName string
	Count      int
}

// TopSenders returns the most active senders in the last hours, optionally
// scoped to one group. Anonymous posts aggregate by sender name.
func (s *Store) TopSenders(groupID *int64, hours, limit int) ([]SenderStat, error) {
	since := isoTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	q := `SELECT sender_id, COALESCE(MAX(sender_name), ''), COUNT(*) AS cnt
		FROM messages WHERE date >= ?`
	args := []any{since}
	if groupID != nil {
		q += " AND group_id = ?"
		args = append(args, *groupID)
	}
	q += ` GROUP BY COALESCE(CAST(sender_id AS TEXT), sender_name)
		ORDER BY cnt DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SenderStat
	for rows.Next() {
		var ss SenderStat
		if err := rows.Scan(&ss.SenderID, &ss.SenderName, &ss.Count); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// ActivityHeatmap returns a 7x24 weekday-by-hour message count matrix
// (weekday 0 = Sunday, per SQLite strftime %w).
func (s *Store) ActivityHeatmap(days int) ([7][24]int, error) {
	var hm [7][24]int
	since := isoTime(time.Now().AddDate(0, 0, -days))
	rows, err := s.db.Query(`SELECT CAST(strftime('%w', date) AS INTEGER),
		CAST(strftime('%H', date) AS INTEGER), COUNT(*)
		FROM messages WHERE date >= ?
		GROUP BY 1, 2`, since)
	if err != nil {
		return hm, err
	}
	defer rows.Close()
	for rows.Next() {
		var wd, hr, n int
		if err := rows.Scan(&wd, &hr, &n); err != nil {
			return hm, err
		}
		if wd >= 0 && wd < 7 && hr >= 0 && hr < 24 {
			hm[wd][hr] = n
		}
	}
	return hm, rows.Err()
}

// DayComparison contrasts today's message volume with yesterday's.
type DayComparison struct {
	Today     int
	Yesterday int
}

// CompareTodayYesterday returns today's count against the same-length
// yesterday window.
func (s *Store) CompareTodayYesterday() (DayComparison, error) {
	var c DayComparison
	now := time.Now()
	todayStart := isoTime(startOfDayUTC(now))
	yesterdayStart := isoTime(startOfDayUTC(now).AddDate(0, 0, -1))

	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE date >= ?", todayStart).Scan(&c.Today); err != nil {
		return c, err
	}
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE date >= ? AND date < ?",
		yesterdayStart, todayStart).Scan(&c.Yesterday)
	return c, err
}

// TrendPoint is one hourly bucket of a trend series.
type TrendPoint struct {
	Hour  string
	Count int
}

// MessageTrends returns hourly message counts for the last hours, optionally
// per group. Buckets with no messages are absent.
func (s *Store) MessageTrends(groupID *int64, hours int) ([]TrendPoint, error) {
	since := isoTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	q := `SELECT strftime('%Y-%m-%dT%H:00', date) AS hour, COUNT(*)
		FROM messages WHERE date >= ?`
	args := []any{since}
	if groupID != nil {
		q += " AND group_id = ?"
		args = append(args, *groupID)
	}
	q += " GROUP BY hour ORDER BY hour"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrendPoint
	for rows.Next() {
		var tp TrendPoint
		if err := rows.Scan(&tp.Hour, &tp.Count); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

func startOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
