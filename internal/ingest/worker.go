// Package ingest hosts one long-lived worker per tenant session: live event
// streaming, reconnect with backoff, gap recovery after downtime, and the
// retention sweepers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tgmon/internal/platform"
	"github.com/nextlevelbuilder/tgmon/internal/store"
)

// Worker states.
const (
	StateInit         = "init"
	StateConnecting   = "connecting"
	StateResolving    = "resolving"
	StateCatchingUp   = "catching_up"
	StateLive         = "live"
	StateReconnecting = "reconnecting"
	StateStopped      = "stopped"
)

const (
	backoffInitial = 5 * time.Second
	backoffMax     = 300 * time.Second
	gapThreshold   = 30 * time.Second
	sweepInterval  = 24 * time.Hour

	alertPersistHours = 48
)

// Alerter is invoked inline for every live message.
type Alerter interface {
	HandleMessage(m *store.Message, groupName string)
}

// Config tunes one worker.
type Config struct {
	TenantID      int64
	Name          string
	Groups        []platform.GroupRef
	RetentionDays int
}

// Worker supervises one platform session.
type Worker struct {
	cfg     Config
	st      *store.Store
	sess    platform.Session
	alerter Alerter

	// batchMu serializes gap-recovery batch inserts across all workers so
	// backfill bursts cannot starve the live stream.
	batchMu *sync.Mutex

	mu        sync.Mutex
	state     string
	monitored map[int64]string // marked group id -> title
	lastSeen  string           // max observed message date

	sweepOnce   sync.Once
	sweeperDone chan struct{} // closed when the sweeper goroutine exits
}

// New builds a worker. batchMu is shared by every worker on the same store.
func New(cfg Config, st *store.Store, sess platform.Session, alerter Alerter, batchMu *sync.Mutex) *Worker {
	if batchMu == nil {
		batchMu = &sync.Mutex{}
	}
	w := &Worker{
		cfg:         cfg,
		st:          st,
		sess:        sess,
		alerter:     alerter,
		batchMu:     batchMu,
		state:       StateInit,
		monitored:   make(map[int64]string),
		sweeperDone: make(chan struct{}),
	}
	sess.SetHandlers(platform.Handlers{
		OnNewMessage:     w.onNewMessage,
		OnEditMessage:    w.onEditMessage,
		OnDeleteMessages: w.onDeleteMessages,
	})
	return w
}

// Run drives the connect/live/reconnect loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	// Sweepers are tied to the worker lifetime, not to any one connection;
	// they keep running across reconnects.
	w.sweepOnce.Do(func() { go w.runSweepers(ctx) })

	backoff := backoffInitial
	for {
		w.setState(StateConnecting)
		err := w.sess.Run(ctx, func(ctx context.Context) error {
			backoff = backoffInitial
			if err := w.goLive(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		})

		if ctx.Err() != nil {
			w.setState(StateStopped)
			return nil
		}

		wait := backoff
		var rl *platform.RateLimitError
		if errors.As(err, &rl) {
			// The platform told us exactly how long to wait; do not stack
			// our own backoff on top.
			wait = rl.Wait
			slog.Warn("rate limited", "tenant", w.cfg.Name, "wait", wait)
		} else {
			slog.Warn("session dropped, reconnecting",
				"tenant", w.cfg.Name, "wait", wait, "error", err)
			backoff = backoff * 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}

		w.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			return nil
		case <-time.After(wait):
		}
	}
}

// goLive resolves the monitored set, recovers any gap and switches to live
// streaming.
func (w *Worker) goLive(ctx context.Context) error {
	w.setState(StateResolving)
	if err := w.resolveGroups(ctx); err != nil {
		return err
	}

	w.setState(StateCatchingUp)
	if err := w.catchUp(ctx); err != nil {
		return err
	}

	w.setState(StateLive)
	slog.Info("worker live", "tenant", w.cfg.Name, "groups", len(w.snapshotMonitored()))
	return nil
}

// resolveGroups maps each configured reference to a canonical group and
// upserts its metadata. One failing group is skipped, not fatal.
func (w *Worker) resolveGroups(ctx context.Context) error {
	resolved := make(map[int64]string)
	for _, ref := range w.cfg.Groups {
		info, err := w.sess.Resolve(ctx, ref)
		if err != nil {
			slog.Warn("group resolution failed, skipping",
				"tenant", w.cfg.Name, "id", ref.ID, "username", ref.Username, "error", err)
			continue
		}
		if err := w.st.UpsertGroup(info.ID, info.Title, info.Username, info.MemberCount); err != nil {
			slog.Error("group upsert failed", "group", info.ID, "error", err)
			continue
		}
		resolved[info.ID] = info.Title
	}
	if len(resolved) == 0 {
		return fmt.Errorf("no groups resolved for tenant %s", w.cfg.Name)
	}

	w.mu.Lock()
	w.monitored = resolved
	w.mu.Unlock()
	return nil
}

// catchUp backfills messages missed while disconnected. Skipped when the
// store is empty or fresh (within 30 s of now). Per-group recovery runs
// concurrently; the shared mutex serializes the batch inserts.
func (w *Worker) catchUp(ctx context.Context) error {
	last, err := w.st.LatestMessageDate()
	if err != nil {
		return fmt.Errorf("read latest message date: %w", err)
	}
	if last == "" {
		return nil
	}
	if lastT, err := time.Parse("2006-01-02T15:04:05Z", last); err == nil {
		if time.Since(lastT) < gapThreshold {
			return nil
		}
	}

	slog.Info("recovering gap", "tenant", w.cfg.Name, "since", last)

	g, ctx := errgroup.WithContext(ctx)
	for gid, title := range w.snapshotMonitored() {
		gid, title := gid, title
		g.Go(func() error {
			msgs, err := w.sess.History(ctx, gid, 0, last)
			if err != nil {
				return fmt.Errorf("history for %d: %w", gid, err)
			}
			if len(msgs) == 0 {
				return nil
			}
			rows := make([]*store.Message, len(msgs))
			for i, m := range msgs {
				rows[i] = toStoreMessage(m)
			}
			w.batchMu.Lock()
			n, err := w.st.InsertMessagesBatch(rows)
			w.batchMu.Unlock()
			if err != nil {
				return fmt.Errorf("batch insert for %d: %w", gid, err)
			}
			w.observeDate(msgs[len(msgs)-1].Date)
			slog.Info("gap recovered", "group", title, "fetched", len(msgs), "inserted", n)
			return nil
		})
	}
	return g.Wait()
}

// FetchHistory bulk-imports up to limit recent messages per configured
// group. Used by the history command for initial backfill.
func (w *Worker) FetchHistory(ctx context.Context, limit int) (int, error) {
	if err := w.resolveGroups(ctx); err != nil {
		return 0, err
	}
	total := 0
	for gid, title := range w.snapshotMonitored() {
		msgs, err := w.sess.History(ctx, gid, limit, "")
		if err != nil {
			slog.Warn("history fetch failed", "group", title, "error", err)
			continue
		}
		rows := make([]*store.Message, len(msgs))
		for i, m := range msgs {
			rows[i] = toStoreMessage(m)
		}
		w.batchMu.Lock()
		n, err := w.st.InsertMessagesBatch(rows)
		w.batchMu.Unlock()
		if err != nil {
			return total, err
		}
		slog.Info("history imported", "group", title, "fetched", len(msgs), "inserted", n)
		total += n
	}
	return total, nil
}

// --- live handlers ---

func (w *Worker) onNewMessage(pm *platform.Message) {
	title, ok := w.groupTitle(pm.GroupID)
	if !ok {
		return
	}
	m := toStoreMessage(pm)
	if err := w.st.InsertMessage(m); err != nil {
		slog.Error("message insert failed", "group", pm.GroupID, "id", pm.ID, "error", err)
		return
	}
	w.observeDate(m.Date)
	if w.alerter != nil {
		w.alerter.HandleMessage(m, title)
	}
}

func (w *Worker) onEditMessage(groupID, id int64, newText string, newMediaType *string) {
	if _, ok := w.groupTitle(groupID); !ok {
		return
	}
	changed, err := w.st.UpdateMessageText(id, groupID, newText, newMediaType)
	if err != nil {
		slog.Error("edit apply failed", "group", groupID, "id", id, "error", err)
		return
	}
	if changed {
		slog.Debug("message edited", "group", groupID, "id", id)
	}
}

// onDeleteMessages handles both scoped (channel) and unscoped (classic chat)
// delete events. Unscoped deletes are tried against every monitored group.
func (w *Worker) onDeleteMessages(groupID int64, ids []int64, scoped bool) {
	if scoped {
		if _, ok := w.groupTitle(groupID); !ok {
			return
		}
		n, err := w.st.DeleteMessages(ids, groupID)
		if err != nil {
			slog.Error("delete apply failed", "group", groupID, "error", err)
			return
		}
		if n > 0 {
			slog.Info("messages deleted", "group", groupID, "count", n)
		}
		return
	}
	for gid := range w.snapshotMonitored() {
		n, err := w.st.DeleteMessages(ids, gid)
		if err != nil {
			slog.Error("unscoped delete failed", "group", gid, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("messages deleted", "group", gid, "count", n)
			return
		}
	}
}

// --- sweepers ---

// runSweepers runs the daily retention sweep and the alert-key prune until
// ctx is canceled. Launched once per worker lifetime.
func (w *Worker) runSweepers(ctx context.Context) {
	defer close(w.sweeperDone)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	days, err := w.st.GetIntSetting("retention_days", w.cfg.RetentionDays)
	if err != nil {
		slog.Warn("retention setting read failed", "error", err)
	}
	if days > 0 {
		n, err := w.st.CleanupOldMessages(ctx, days)
		if err != nil {
			slog.Error("retention sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("retention sweep", "deleted", n, "days", days)
		}
	}
	if n, err := w.st.PruneAlertKeys(alertPersistHours); err != nil {
		slog.Error("alert key prune failed", "error", err)
	} else if n > 0 {
		slog.Info("alert keys pruned", "count", n)
	}
}

// --- state ---

// Status is a point-in-time snapshot of the worker.
type Status struct {
	TenantID int64
	Name     string
	State    string
	Groups   int
	LastSeen string
}

// Status reports the worker snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		TenantID: w.cfg.TenantID,
		Name:     w.cfg.Name,
		State:    w.state,
		Groups:   len(w.monitored),
		LastSeen: w.lastSeen,
	}
}

func (w *Worker) setState(s string) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) groupTitle(id int64) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.monitored[id]
	return t, ok
}

func (w *Worker) snapshotMonitored() map[int64]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int64]string, len(w.monitored))
	for k, v := range w.monitored {
		out[k] = v
	}
	return out
}

// observeDate advances the last-seen watermark, never backward.
func (w *Worker) observeDate(date string) {
	w.mu.Lock()
	if date > w.lastSeen {
		w.lastSeen = date
	}
	w.mu.Unlock()
}

func toStoreMessage(m *platform.Message) *store.Message {
	return &store.Message{
		ID:          m.ID,
		GroupID:     m.GroupID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Text:        m.Text,
		Date:        m.Date,
		MediaType:   m.MediaType,
		ForwardFrom: m.ForwardFrom,
		ReplyToID:   m.ReplyToID,
	}
}
