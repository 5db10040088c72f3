package store

import (
	"fmt"
	"time"
)

// MarkAlerted persists an alert dedup key at the current time.
func (s *Store) MarkAlerted(msgKey string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO alerted_messages (msg_key, alerted_at) VALUES (?, ?)",
		msgKey, isoNow())
	if err != nil {
		return fmt.Errorf("mark alerted %s: %w", msgKey, err)
	}
	return nil
}

// RecentAlertKeys returns keys alerted within the last hours, oldest first.
// Insertion order matters: the caller rebuilds a FIFO from this.
func (s *Store) RecentAlertKeys(hours int) ([]string, error) {
	since := isoTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	rows, err := s.db.Query(
		"SELECT msg_key FROM alerted_messages WHERE alerted_at >= ? ORDER BY alerted_at ASC",
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PruneAlertKeys deletes dedup keys older than hours. Returns pruned count.
func (s *Store) PruneAlertKeys(hours int) (int, error) {
	cutoff := isoTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	res, err := s.db.Exec("DELETE FROM alerted_messages WHERE alerted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune alert keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
