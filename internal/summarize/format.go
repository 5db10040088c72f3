package summarize

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

const (
	longTextLimit = 500
	longTextKeep  = 250
	truncMarker   = "...[长文本已截断]..."
)

// formatMessages renders a message window for the LLM. A group header line
// is emitted whenever the group changes; each message becomes one line with
// timestamp, sender and decorations for media, forwards and replies.
func formatMessages(msgs []*store.Message) string {
	var b strings.Builder
	var lastGroup int64
	first := true

	for _, m := range msgs {
		if first || m.GroupID != lastGroup {
			title := m.GroupTitle
			if title == "" {
				title = fmt.Sprintf("群组 %d", m.GroupID)
			}
			if !first {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "===== %s =====\n", title)
			lastGroup = m.GroupID
			first = false
		}

		when := m.Date
		if t, err := time.Parse("2006-01-02T15:04:05Z", m.Date); err == nil {
			when = t.Format("2006-01-02 15:04:05")
		}

		fmt.Fprintf(&b, "[%s] %s: %s", when, m.SenderName, truncateLong(m.TextOrEmpty()))
		if m.MediaType != nil {
			fmt.Fprintf(&b, " [%s]", *m.MediaType)
		}
		if m.ForwardFrom != nil {
			fmt.Fprintf(&b, " [转发自 %s]", *m.ForwardFrom)
		}
		if m.ReplyToID != nil {
			fmt.Fprintf(&b, " [回复 #%d]", *m.ReplyToID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// truncateLong clips a single body to its head and tail around a marker.
func truncateLong(text string) string {
	runes := []rune(text)
	if len(runes) <= longTextLimit {
		return text
	}
	return string(runes[:longTextKeep]) + truncMarker + string(runes[len(runes)-longTextKeep:])
}
