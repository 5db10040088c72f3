package summarize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

// Job modes.
const (
	ModeQuick    = "quick"
	ModePerGroup = "per_group"
)

// JobRunner executes summarizations asynchronously, writing progress and the
// terminal result through the persisted job registry. A running job is not
// cancellable; it reaches done or error on its own.
type JobRunner struct {
	st *store.Store
	s  *Summarizer
}

// NewJobRunner builds a runner.
func NewJobRunner(st *store.Store, s *Summarizer) *JobRunner {
	return &JobRunner{st: st, s: s}
}

// Start registers a job and launches it in the background, returning the job
// id immediately.
func (r *JobRunner) Start(groupID *int64, hours int, mode string) (string, error) {
	if mode != ModePerGroup {
		mode = ModeQuick
	}
	id := uuid.NewString()
	if err := r.st.CreateSummaryJob(id, groupID, hours, mode); err != nil {
		return "", err
	}
	go r.run(id, groupID, hours, mode)
	slog.Info("summary job started", "job", id, "mode", mode, "hours", hours)
	return id, nil
}

func (r *JobRunner) run(id string, groupID *int64, hours int, mode string) {
	ctx := context.Background()

	progress := func(stage string, current, total int) {
		pct := current * 100 / total
		if pct > 100 {
			pct = 100
		}
		if err := r.st.UpdateSummaryJob(id, store.JobUpdate{Progress: &pct, ProgressText: &stage}); err != nil {
			slog.Warn("job progress write failed", "job", id, "error", err)
		}
	}

	var result string
	if mode == ModePerGroup {
		result = r.s.SummarizeAllGroups(ctx, hours, true, progress)
	} else {
		result = r.s.Summarize(ctx, Options{Hours: hours, GroupID: groupID, Save: true, Progress: progress})
	}

	full := 100
	if strings.HasPrefix(result, failPrefix) {
		status := store.JobError
		if err := r.st.UpdateSummaryJob(id, store.JobUpdate{Status: &status, ErrorMsg: &result}); err != nil {
			slog.Error("job error write failed", "job", id, "error", err)
		}
		return
	}
	status := store.JobDone
	if err := r.st.UpdateSummaryJob(id, store.JobUpdate{Status: &status, Progress: &full, Result: &result}); err != nil {
		slog.Error("job result write failed", "job", id, "error", err)
	}
}
