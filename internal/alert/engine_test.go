package alert

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "alert.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type countingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingNotifier) Send(text string) error {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func msg(id, groupID int64, text string) *store.Message {
	return &store.Message{
		ID: id, GroupID: groupID, SenderName: "bob",
		Text: &text, Date: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func TestKeywordMatchAndFormat(t *testing.T) {
	st := newTestStore(t)
	n := &countingNotifier{}
	e := New(st, []string{"Urgent", "outage"}, true, n)

	e.HandleMessage(msg(1, -5, "URGENT: total outage in eu-west"), "Ops Room")
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
	text := n.texts[0]
	for _, want := range []string{"«urgent»", "«outage»", "Ops Room", "bob"} {
		if !strings.Contains(text, want) {
			t.Fatalf("notification %q missing %q", text, want)
		}
	}

	// No keyword, no notification.
	e.HandleMessage(msg(2, -5, "all quiet"), "Ops Room")
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want still 1", n.count())
	}
}

func TestDedupSameMessage(t *testing.T) {
	st := newTestStore(t)
	n := &countingNotifier{}
	e := New(st, []string{"urgent"}, true, n)

	for i := 0; i < 3; i++ {
		e.HandleMessage(msg(301, -5, "urgent! read this"), "G")
	}
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
}

func TestDedupBound(t *testing.T) {
	st := newTestStore(t)
	e := New(st, []string{"x"}, true, nil)

	total := dedupCapacity + 500
	for i := 0; i < total; i++ {
		e.remember(fmt.Sprintf("-5_%d", i))
	}
	if e.DedupSize() != dedupCapacity {
		t.Fatalf("dedup size = %d, want %d", e.DedupSize(), dedupCapacity)
	}
	// The most recent capacity keys are all present, the oldest are gone.
	if e.Seen("-5_0") || e.Seen(fmt.Sprintf("-5_%d", total-dedupCapacity-1)) {
		t.Fatal("evicted key still present")
	}
	for _, i := range []int{total - dedupCapacity, total - 1} {
		if !e.Seen(fmt.Sprintf("-5_%d", i)) {
			t.Fatalf("recent key -5_%d missing", i)
		}
	}
}

func TestDedupSurvivesRestart(t *testing.T) {
	st := newTestStore(t)
	n := &countingNotifier{}
	e := New(st, []string{"urgent"}, true, n)

	e.HandleMessage(msg(301, -5, "urgent! read this"), "G")
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}

	// Persistence is asynchronous; wait for the key to land.
	deadline := time.Now().Add(3 * time.Second)
	for {
		keys, err := st.RecentAlertKeys(rehydrateHours)
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("alert key never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Restart: a fresh engine rehydrates from the store.
	n2 := &countingNotifier{}
	e2 := New(st, []string{"urgent"}, true, n2)
	e2.HandleMessage(msg(301, -5, "urgent! read this"), "G")
	if n2.count() != 0 {
		t.Fatalf("notifications after restart = %d, want 0", n2.count())
	}
}

func TestRuntimeToggle(t *testing.T) {
	st := newTestStore(t)
	n := &countingNotifier{}
	e := New(st, []string{"urgent"}, true, n)

	if err := st.SetSetting("alerts_enabled", "off"); err != nil {
		t.Fatal(err)
	}
	e.HandleMessage(msg(1, -5, "urgent"), "G")
	if n.count() != 0 {
		t.Fatal("notification sent while alerts disabled")
	}

	if err := st.SetSetting("alerts_enabled", "on"); err != nil {
		t.Fatal(err)
	}
	e.HandleMessage(msg(2, -5, "urgent again"), "G")
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1 after re-enable", n.count())
	}
}

func TestBotNotifierWireFormat(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewBotNotifier("TOKEN", 777).WithAPIBase(srv.URL)
	if err := n.Send("hello"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if got["chat_id"].(float64) != 777 || got["text"] != "hello" || got["parse_mode"] != "Markdown" {
		t.Fatalf("payload = %v", got)
	}
}

func TestBotNotifierSwallowsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewBotNotifier("TOKEN", 777).WithAPIBase(srv.URL)
	if err := n.Send("hello"); err != nil {
		t.Fatalf("non-200 should be swallowed, got %v", err)
	}
}
