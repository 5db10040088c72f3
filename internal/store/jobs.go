package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateSummaryJob registers a new job in running state with zero progress.
func (s *Store) CreateSummaryJob(id string, groupID *int64, hours int, mode string) error {
	now := isoNow()
	_, err := s.db.Exec(`INSERT INTO summary_jobs
		(id, group_id, hours, mode, status, progress, progress_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
		id, groupID, hours, mode, JobRunning, now, now)
	if err != nil {
		return fmt.Errorf("create summary job %s: %w", id, err)
	}
	return nil
}

// JobUpdate is a partial update: nil fields are left untouched.
type JobUpdate struct {
	Status       *string
	Progress     *int
	ProgressText *string
	Result       *string
	ErrorMsg     *string
}

// UpdateSummaryJob writes the provided fields and always advances
// updated_at.
func (s *Store) UpdateSummaryJob(id string, u JobUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{isoNow()}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *u.Progress)
	}
	if u.ProgressText != nil {
		sets = append(sets, "progress_text = ?")
		args = append(args, *u.ProgressText)
	}
	if u.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, *u.Result)
	}
	if u.ErrorMsg != nil {
		sets = append(sets, "error_msg = ?")
		args = append(args, *u.ErrorMsg)
	}
	args = append(args, id)
	_, err := s.db.Exec("UPDATE summary_jobs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update summary job %s: %w", id, err)
	}
	return nil
}

// GetSummaryJob returns the job or nil when unknown.
func (s *Store) GetSummaryJob(id string) (*SummaryJob, error) {
	var j SummaryJob
	var progressText, result, errorMsg sql.NullString
	err := s.db.QueryRow(`SELECT id, group_id, COALESCE(hours, 0), COALESCE(mode, ''),
		status, COALESCE(progress, 0), progress_text, result, error_msg,
		COALESCE(created_at, ''), COALESCE(updated_at, '')
		FROM summary_jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.GroupID, &j.Hours, &j.Mode, &j.Status, &j.Progress,
			&progressText, &result, &errorMsg, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.ProgressText = progressText.String
	j.Result = result.String
	j.ErrorMsg = errorMsg.String
	return &j, nil
}
