package store

import (
	"fmt"
)

// AddTenant registers a platform account with its own app credentials
// (zero/empty means the account uses the shared config pair). The phone is
// unique; re-adding an existing phone refreshes its session name and
// credentials and reactivates it.
func (s *Store) AddTenant(phone, sessionName string, apiID int, apiHash string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO tenants (phone, api_id, api_hash, session_name, active, added_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(phone) DO UPDATE SET
			api_id = excluded.api_id,
			api_hash = excluded.api_hash,
			session_name = excluded.session_name,
			active = 1`,
		phone, apiID, apiHash, sessionName, isoNow())
	if err != nil {
		return 0, fmt.Errorf("add tenant %s: %w", phone, err)
	}
	id, _ := res.LastInsertId()
	if id == 0 {
		// Upsert path: fetch the existing row id.
		_ = s.db.QueryRow("SELECT id FROM tenants WHERE phone = ?", phone).Scan(&id)
	}
	return id, nil
}

// GetTenants lists tenants, optionally only active ones.
func (s *Store) GetTenants(activeOnly bool) ([]Tenant, error) {
	q := `SELECT id, phone, COALESCE(api_id, 0), COALESCE(api_hash, ''),
		session_name, active, COALESCE(added_at, '') FROM tenants`
	if activeOnly {
		q += " WHERE active = 1"
	}
	q += " ORDER BY id"
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		var active int
		if err := rows.Scan(&t.ID, &t.Phone, &t.APIID, &t.APIHash, &t.SessionName, &active, &t.AddedAt); err != nil {
			return nil, err
		}
		t.Active = active != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTenantActive toggles a tenant's active flag.
func (s *Store) SetTenantActive(id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.Exec("UPDATE tenants SET active = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("set tenant %d active=%v: %w", id, active, err)
	}
	return nil
}
