package store

import (
	"database/sql"
	"fmt"
)

// UpsertGroup inserts or refreshes a monitored group's metadata.
func (s *Store) UpsertGroup(id int64, title, username string, memberCount int) error {
	_, err := s.db.Exec(`INSERT INTO groups (id, title, username, member_count, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			username = excluded.username,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at`,
		id, title, username, memberCount, isoNow(), isoNow())
	if err != nil {
		return fmt.Errorf("upsert group %d: %w", id, err)
	}
	return nil
}

// GetGroups returns all known groups.
func (s *Store) GetGroups() ([]Group, error) {
	rows, err := s.db.Query(`SELECT id, COALESCE(title, ''), COALESCE(username, ''),
		COALESCE(member_count, 0), COALESCE(added_at, ''), COALESCE(updated_at, '')
		FROM groups ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Username, &g.MemberCount, &g.AddedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGroup returns one group or nil when unknown.
func (s *Store) GetGroup(id int64) (*Group, error) {
	var g Group
	err := s.db.QueryRow(`SELECT id, COALESCE(title, ''), COALESCE(username, ''),
		COALESCE(member_count, 0), COALESCE(added_at, ''), COALESCE(updated_at, '')
		FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Title, &g.Username, &g.MemberCount, &g.AddedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
