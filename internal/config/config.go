package config

// Config is the root configuration for the tgmon monitor.
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Groups        []GroupRef          `yaml:"groups"`
	Database      DatabaseConfig      `yaml:"database"`
	AI            AIConfig            `yaml:"ai"`
	Bot           BotConfig           `yaml:"bot"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Filtering     FilteringConfig     `yaml:"filtering"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	ScheduledPush ScheduledPushConfig `yaml:"scheduled_push"`
}

// TelegramConfig holds the MTProto user-session credentials.
type TelegramConfig struct {
	APIID       int    `yaml:"api_id"`
	APIHash     string `yaml:"api_hash"`
	Phone       string `yaml:"phone"`
	SessionName string `yaml:"session_name"`
	SessionDir  string `yaml:"session_dir"`
}

// GroupRef identifies a monitored group by numeric ID or public username.
type GroupRef struct {
	ID       int64  `yaml:"id,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// DatabaseConfig locates the embedded SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AIConfig configures the OpenAI-compatible summarization endpoint.
// Either APIKey (single) or APIKeys (rotating pool) may be set; empty both
// means a local proxy that needs no Authorization header.
type AIConfig struct {
	APIURL              string   `yaml:"api_url"`
	APIKey              string   `yaml:"api_key"`
	APIKeys             []string `yaml:"api_keys"`
	Model               string   `yaml:"model"`
	MaxTokens           int      `yaml:"max_tokens"`
	MaxConcurrentPerKey int      `yaml:"max_concurrent_per_key"`
	SummarySystemPrompt string   `yaml:"summary_system_prompt"`
}

// EffectiveKeys returns the deduplicated non-empty key list, or a single
// empty-string slot when no key is configured at all.
func (a AIConfig) EffectiveKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, k := range a.APIKeys {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		return keys
	}
	if a.APIKey != "" {
		return []string{a.APIKey}
	}
	return []string{""}
}

// BotConfig configures the outbound Bot API (alerts, control bot).
type BotConfig struct {
	Token   string `yaml:"token"`
	OwnerID int64  `yaml:"owner_id"`
}

// AlertsConfig configures keyword alerting. Enabled here is the file-level
// default; the alerts_enabled setting in the store overrides it at runtime.
type AlertsConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Keywords []string `yaml:"keywords"`
}

// FilteringConfig filters aggregated link listings.
type FilteringConfig struct {
	BlockDomains []string `yaml:"block_domains"`
}

// MonitoringConfig tunes retention.
type MonitoringConfig struct {
	KeepDays int `yaml:"keep_days"`
}

// ScheduledPushConfig configures the periodic owner digest.
type ScheduledPushConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Hours   int    `yaml:"hours"`
}
