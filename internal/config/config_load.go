package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			SessionName: "tgmon",
			SessionDir:  "sessions",
		},
		Database: DatabaseConfig{
			Path: "data/tgmon.db",
		},
		AI: AIConfig{
			APIURL:              "http://localhost:18789/v1/chat/completions",
			Model:               "gpt-4o",
			MaxTokens:           4096,
			MaxConcurrentPerKey: 3,
		},
		Monitoring: MonitoringConfig{
			KeepDays: 90,
		},
		ScheduledPush: ScheduledPushConfig{
			Cron:  "0 9 * * *",
			Hours: 24,
		},
	}
}

// Load reads config from a YAML file, then overlays .env and env vars.
// A missing file yields the defaults (env overrides still apply).
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load(".env")

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TG_API_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Telegram.APIID = id
		}
	}
	envStr("TG_API_HASH", &c.Telegram.APIHash)
	envStr("TG_PHONE", &c.Telegram.Phone)
	envStr("AI_API_KEY", &c.AI.APIKey)
	envStr("AI_API_URL", &c.AI.APIURL)
	envStr("BOT_TOKEN", &c.Bot.Token)

	// Owner ID is a secret-adjacent value; malformed env keeps the file value.
	if v := os.Getenv("BOT_OWNER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Bot.OwnerID = id
		}
	}

	// Rotating key pool: any AI_API_KEY_1..5 replaces the file key list.
	var numbered []string
	for i := 1; i <= 5; i++ {
		if v := os.Getenv("AI_API_KEY_" + strconv.Itoa(i)); v != "" {
			numbered = append(numbered, v)
		}
	}
	if len(numbered) > 0 {
		c.AI.APIKeys = numbered
	}
}

// Validate returns a list of fatal configuration problems.
func (c *Config) Validate() []string {
	var errs []string
	if c.Telegram.APIID == 0 {
		errs = append(errs, "missing telegram.api_id (get one at https://my.telegram.org)")
	}
	if c.Telegram.APIHash == "" {
		errs = append(errs, "missing telegram.api_hash")
	}
	if len(c.Groups) == 0 {
		errs = append(errs, "no monitored groups configured (groups list is empty)")
	}
	return errs
}

// SessionPath returns the session file path for a given session name.
func (c *Config) SessionPath(name string) string {
	if name == "" {
		name = c.Telegram.SessionName
	}
	return filepath.Join(c.Telegram.SessionDir, name+".session")
}
