// Package alert matches live messages against configured keywords and
// pushes owner notifications, with FIFO-bounded deduplication that survives
// restarts.
package alert

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

const (
	dedupCapacity  = 2000
	rehydrateHours = 24
	clipRunes      = 300
)

var alertZone = time.FixedZone("UTC+8", 8*3600)

// Notifier delivers one alert text to the owner.
type Notifier interface {
	Send(text string) error
}

// Engine is the per-process alert state.
type Engine struct {
	st             *store.Store
	keywords       []string
	defaultEnabled bool
	notifier       Notifier

	mu   sync.Mutex
	fifo []string
	set  map[string]struct{}
}

// New builds an engine and rehydrates the dedup window from keys alerted in
// the last 24 h, in their original insertion order. The persisted horizon
// (48 h, pruned by the sweeper) stays wider so boundary keys survive a
// restart.
func New(st *store.Store, keywords []string, defaultEnabled bool, notifier Notifier) *Engine {
	e := &Engine{
		st:             st,
		defaultEnabled: defaultEnabled,
		notifier:       notifier,
		set:            make(map[string]struct{}),
	}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			e.keywords = append(e.keywords, strings.ToLower(k))
		}
	}

	keys, err := st.RecentAlertKeys(rehydrateHours)
	if err != nil {
		slog.Warn("alert key rehydrate failed", "error", err)
	}
	for _, k := range keys {
		e.remember(k)
	}
	if len(keys) > 0 {
		slog.Info("alert dedup rehydrated", "keys", len(keys))
	}
	return e
}

// HandleMessage checks one live message. The enabled toggle is read from
// settings on every call so operators can flip it at runtime.
func (e *Engine) HandleMessage(m *store.Message, groupName string) {
	if len(e.keywords) == 0 {
		return
	}
	enabled, err := e.st.GetBoolSetting("alerts_enabled", e.defaultEnabled)
	if err != nil {
		slog.Warn("alerts_enabled read failed", "error", err)
	}
	if !enabled {
		return
	}

	text := m.TextOrEmpty()
	if text == "" {
		return
	}
	matched := e.match(text)
	if len(matched) == 0 {
		return
	}

	key := fmt.Sprintf("%d_%d", m.GroupID, m.ID)
	if !e.remember(key) {
		return
	}
	// Best effort: dedup works from memory even if persistence fails.
	go func() {
		if err := e.st.MarkAlerted(key); err != nil {
			slog.Warn("alert key persist failed", "key", key, "error", err)
		}
	}()

	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(formatAlert(matched, groupName, m)); err != nil {
		slog.Warn("alert push failed", "key", key, "error", err)
	}
}

// match returns the keywords present in text, case-insensitive.
func (e *Engine) match(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, k := range e.keywords {
		if strings.Contains(lower, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

// remember adds key to the FIFO window. Returns false when the key was
// already present. At capacity the oldest key is evicted from both
// structures before the new one is appended.
func (e *Engine) remember(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.set[key]; ok {
		return false
	}
	if len(e.fifo) >= dedupCapacity {
		oldest := e.fifo[0]
		e.fifo = e.fifo[1:]
		delete(e.set, oldest)
	}
	e.fifo = append(e.fifo, key)
	e.set[key] = struct{}{}
	return true
}

// DedupSize reports the current dedup window size.
func (e *Engine) DedupSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.set)
}

// Seen reports whether key is in the dedup window.
func (e *Engine) Seen(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.set[key]
	return ok
}

// formatAlert renders the owner notification: matched keywords, group,
// sender, UTC+8 wall clock and the clipped body.
func formatAlert(matched []string, groupName string, m *store.Message) string {
	var kw strings.Builder
	for _, k := range matched {
		kw.WriteString("«" + k + "»")
	}

	when := m.Date
	if t, err := time.Parse("2006-01-02T15:04:05Z", m.Date); err == nil {
		when = t.In(alertZone).Format("15:04:05")
	}

	body := m.TextOrEmpty()
	if runes := []rune(body); len(runes) > clipRunes {
		body = string(runes[:clipRunes]) + "..."
	}

	return fmt.Sprintf("🔔 关键词提醒 %s\n群组: %s\n发送者: %s\n时间: %s\n\n%s",
		kw.String(), groupName, m.SenderName, when, body)
}
