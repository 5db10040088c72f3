package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	attemptTimeout = 60 * time.Second
	probeTimeout   = 8 * time.Second
	maxRetries     = 2
)

// LLMClient speaks the OpenAI-compatible chat-completions protocol through
// the credential slot pool.
type LLMClient struct {
	apiURL    string
	model     string
	maxTokens int
	pool      *KeyPool
	http      *http.Client
}

// NewLLMClient builds a client. keys follow config.AIConfig.EffectiveKeys
// semantics: an empty-string key means a local proxy needing no auth header.
func NewLLMClient(apiURL, model string, maxTokens int, keys []string, perKey int) *LLMClient {
	return &LLMClient{
		apiURL:    apiURL,
		model:     model,
		maxTokens: maxTokens,
		pool:      NewKeyPool(keys, perKey),
		http:      &http.Client{},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat runs one completion with up to two retries. Rate limits, server
// errors and transport failures release the slot, back off 2^attempt
// seconds and retry on a fresh slot (likely a different key); any other 4xx
// fails immediately with the server's message.
func (c *LLMClient) Chat(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		key, err := c.pool.Acquire(ctx)
		if err != nil {
			return "", err
		}
		content, retryable, err := c.attempt(ctx, key, system, user)
		c.pool.Release(key)

		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		slog.Warn("llm call failed, retrying", "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("llm call exhausted retries: %w", lastErr)
}

// attempt performs one HTTP exchange. The second return reports whether the
// failure is retryable (429, 5xx, transport).
func (c *LLMClient) attempt(ctx context.Context, key, system, user string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	msgs := []chatMessage{}
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", true, fmt.Errorf("llm status %d: %s", resp.StatusCode, clip(body, 200))
	default:
		return "", false, fmt.Errorf("llm status %d: %s", resp.StatusCode, clip(body, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", true, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", true, fmt.Errorf("llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// Health probes <base>/v1/models. 200 means reachable.
func (c *LLMClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	base := c.apiURL
	if i := strings.Index(base, "/v1/"); i >= 0 {
		base = base[:i]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return err
	}
	key, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Release(key)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe status %d", resp.StatusCode)
	}
	return nil
}

func clip(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}
