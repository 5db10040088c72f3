package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// BotNotifier pushes alert texts to the owner chat through the platform bot
// API.
type BotNotifier struct {
	token   string
	chatID  int64
	apiBase string
	client  *http.Client
}

// NewBotNotifier builds a notifier for the given bot token and owner chat.
func NewBotNotifier(token string, chatID int64) *BotNotifier {
	return &BotNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase overrides the API endpoint. Used by tests.
func (n *BotNotifier) WithAPIBase(base string) *BotNotifier {
	n.apiBase = base
	return n
}

// Send posts one message. A non-200 response is logged and swallowed; only
// transport failures surface as errors.
func (n *BotNotifier) Send(text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("notification rejected", "status", resp.StatusCode, "body", string(body))
	}
	return nil
}
