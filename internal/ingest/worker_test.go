package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tgmon/internal/platform"
	"github.com/nextlevelbuilder/tgmon/internal/store"
)

type fakeSession struct {
	mu       sync.Mutex
	handlers platform.Handlers
	groups   []*platform.GroupInfo
	history  map[int64][]*platform.Message
}

func (f *fakeSession) SetHandlers(h platform.Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeSession) Handlers() platform.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

func (f *fakeSession) Run(ctx context.Context, ready func(ctx context.Context) error) error {
	if err := ready(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSession) Resolve(_ context.Context, ref platform.GroupRef) (*platform.GroupInfo, error) {
	for _, g := range f.groups {
		if g.ID == ref.ID || (ref.Username != "" && g.Username == ref.Username) {
			return g, nil
		}
	}
	return nil, &platform.RateLimitError{Wait: time.Second}
}

func (f *fakeSession) History(_ context.Context, groupID int64, limit int, stopAt string) ([]*platform.Message, error) {
	var out []*platform.Message
	for _, m := range f.history[groupID] {
		if stopAt != "" && m.Date <= stopAt {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func iso(t time.Time) string { return platform.ISOTime(t) }

func pmsg(id, groupID int64, text string, date time.Time) *platform.Message {
	sid := int64(7)
	return &platform.Message{
		ID: id, GroupID: groupID, SenderID: &sid,
		SenderName: "bob", Text: &text, Date: iso(date),
	}
}

// startLive runs the worker until it reports live state.
func startLive(t *testing.T, w *Worker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w.Status().State == StateLive {
			return cancel
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	t.Fatal("worker never reached live state")
	return nil
}

// flakySession goes live, then drops the connection a configured number of
// times before staying up.
type flakySession struct {
	fakeSession
	dropMu sync.Mutex
	drops  int
	runs   int
}

func (f *flakySession) Run(ctx context.Context, ready func(ctx context.Context) error) error {
	f.dropMu.Lock()
	n := f.runs
	f.runs++
	f.dropMu.Unlock()
	if err := ready(ctx); err != nil {
		return err
	}
	if n < f.drops {
		return &platform.RateLimitError{Wait: 10 * time.Millisecond}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *flakySession) runCount() int {
	f.dropMu.Lock()
	defer f.dropMu.Unlock()
	return f.runs
}

func TestSweepersSurviveReconnect(t *testing.T) {
	st := newTestStore(t)
	sess := &flakySession{drops: 1}
	sess.groups = []*platform.GroupInfo{{ID: -500, Title: "G"}}
	w := New(Config{Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	// Wait until the worker is live on its second connection.
	deadline := time.Now().Add(5 * time.Second)
	for sess.runCount() < 2 || w.Status().State != StateLive {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("worker never re-established: runs=%d state=%s",
				sess.runCount(), w.Status().State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The sweeper goroutine is bound to the worker lifetime and must not
	// die with the dropped connection.
	select {
	case <-w.sweeperDone:
		cancel()
		t.Fatal("sweeper exited on connection drop")
	default:
	}

	cancel()
	select {
	case <-w.sweeperDone:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop on shutdown")
	}
}

func TestGapRecoveryNoDuplicates(t *testing.T) {
	st := newTestStore(t)
	base := time.Now().Add(-35 * time.Minute)

	// Already persisted up to T.
	lastSeen := pmsg(10, -500, "persisted", base)
	if err := st.InsertMessage(&store.Message{
		ID: 10, GroupID: -500, SenderName: "bob",
		Text: lastSeen.Text, Date: lastSeen.Date,
	}); err != nil {
		t.Fatal(err)
	}

	sess := &fakeSession{
		groups: []*platform.GroupInfo{{ID: -500, Title: "G"}},
		history: map[int64][]*platform.Message{
			-500: {
				pmsg(12, -500, "newer", base.Add(20*time.Minute)),
				pmsg(11, -500, "missed", base.Add(10*time.Minute)),
				pmsg(10, -500, "persisted", base), // boundary row, filtered by stopAt
			},
		},
	}

	w := New(Config{TenantID: 1, Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, nil, nil)
	cancel := startLive(t, w)
	defer cancel()

	msgs, err := st.GetRecentMessages(-500, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("rows = %d, want 3 (no duplicates)", len(msgs))
	}
	if w.Status().LastSeen == "" {
		t.Fatal("last seen watermark not advanced")
	}
}

func TestGapRecoverySkippedWhenFresh(t *testing.T) {
	st := newTestStore(t)
	if err := st.InsertMessage(&store.Message{
		ID: 1, GroupID: -500, SenderName: "bob",
		Date: iso(time.Now()),
	}); err != nil {
		t.Fatal(err)
	}

	sess := &fakeSession{
		groups: []*platform.GroupInfo{{ID: -500, Title: "G"}},
		history: map[int64][]*platform.Message{
			-500: {pmsg(99, -500, "should not appear", time.Now())},
		},
	}
	w := New(Config{Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, nil, nil)
	cancel := startLive(t, w)
	defer cancel()

	msgs, _ := st.GetRecentMessages(-500, 10)
	if len(msgs) != 1 {
		t.Fatalf("rows = %d, want 1 (fresh store skips recovery)", len(msgs))
	}
}

func TestLiveHandlers(t *testing.T) {
	st := newTestStore(t)
	sess := &fakeSession{groups: []*platform.GroupInfo{{ID: -500, Title: "G"}}}
	w := New(Config{Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, nil, nil)
	cancel := startLive(t, w)
	defer cancel()

	h := sess.Handlers()

	// Unmonitored group is dropped.
	h.OnNewMessage(pmsg(1, -999, "elsewhere", time.Now()))
	// Monitored group is stored.
	h.OnNewMessage(pmsg(2, -500, "hello", time.Now()))

	msgs, _ := st.GetRecentMessages(-500, 10)
	if len(msgs) != 1 || msgs[0].ID != 2 {
		t.Fatalf("live insert = %+v", msgs)
	}
	if other, _ := st.GetRecentMessages(-999, 10); len(other) != 0 {
		t.Fatal("unmonitored message was stored")
	}

	h.OnEditMessage(-500, 2, "hello world", nil)
	got, _ := st.SearchMessages("world", 10)
	if len(got) != 1 {
		t.Fatalf("edit not applied: %+v", got)
	}

	// Unscoped delete walks the monitored set.
	h.OnDeleteMessages(0, []int64{2}, false)
	if left, _ := st.GetRecentMessages(-500, 10); len(left) != 0 {
		t.Fatalf("unscoped delete missed: %+v", left)
	}
}

type recordingAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingAlerter) HandleMessage(m *store.Message, groupName string) {
	r.mu.Lock()
	r.calls = append(r.calls, groupName+":"+m.TextOrEmpty())
	r.mu.Unlock()
}

func TestAlerterInvokedWithGroupName(t *testing.T) {
	st := newTestStore(t)
	sess := &fakeSession{groups: []*platform.GroupInfo{{ID: -500, Title: "Ops Room"}}}
	al := &recordingAlerter{}
	w := New(Config{Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, al, nil)
	cancel := startLive(t, w)
	defer cancel()

	sess.Handlers().OnNewMessage(pmsg(5, -500, "urgent thing", time.Now()))

	al.mu.Lock()
	defer al.mu.Unlock()
	if len(al.calls) != 1 || al.calls[0] != "Ops Room:urgent thing" {
		t.Fatalf("alerter calls = %v", al.calls)
	}
}

func TestFetchHistory(t *testing.T) {
	st := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	sess := &fakeSession{
		groups: []*platform.GroupInfo{{ID: -500, Title: "G"}},
		history: map[int64][]*platform.Message{
			-500: {
				pmsg(3, -500, "c", base.Add(3*time.Minute)),
				pmsg(2, -500, "b", base.Add(2*time.Minute)),
				pmsg(1, -500, "a", base.Add(1*time.Minute)),
			},
		},
	}
	w := New(Config{Name: "t1", Groups: []platform.GroupRef{{ID: -500}}}, st, sess, nil, nil)

	n, err := w.FetchHistory(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
}
