package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "data/tgmon.db" {
		t.Errorf("default db path = %q", cfg.Database.Path)
	}
	if cfg.Monitoring.KeepDays != 90 {
		t.Errorf("default keep_days = %d", cfg.Monitoring.KeepDays)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
telegram:
  api_id: 12345
  api_hash: abc
  phone: "+8613800000000"
groups:
  - id: -1001234567890
  - username: golang
database:
  path: /tmp/test.db
monitoring:
  keep_days: 7
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.APIID != 12345 {
		t.Errorf("api_id = %d", cfg.Telegram.APIID)
	}
	if len(cfg.Groups) != 2 || cfg.Groups[0].ID != -1001234567890 || cfg.Groups[1].Username != "golang" {
		t.Errorf("groups = %+v", cfg.Groups)
	}
	if cfg.Monitoring.KeepDays != 7 {
		t.Errorf("keep_days = %d", cfg.Monitoring.KeepDays)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate: %v", errs)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
telegram:
  api_id: 1
  api_hash: fromfile
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TG_API_ID", "99")
	t.Setenv("TG_API_HASH", "fromenv")
	t.Setenv("BOT_OWNER_ID", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.APIID != 99 {
		t.Errorf("api_id = %d, want env override 99", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "fromenv" {
		t.Errorf("api_hash = %q", cfg.Telegram.APIHash)
	}
	if cfg.Bot.OwnerID != 42 {
		t.Errorf("owner_id = %d", cfg.Bot.OwnerID)
	}
}

func TestNumberedKeysReplaceFileList(t *testing.T) {
	t.Setenv("AI_API_KEY_1", "k1")
	t.Setenv("AI_API_KEY_2", "k2")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	keys := cfg.AI.EffectiveKeys()
	if len(keys) != 2 || keys[0] != "k1" || keys[1] != "k2" {
		t.Errorf("EffectiveKeys = %v", keys)
	}
}

func TestEffectiveKeys(t *testing.T) {
	tests := []struct {
		name string
		cfg  AIConfig
		want []string
	}{
		{"empty", AIConfig{}, []string{""}},
		{"single", AIConfig{APIKey: "a"}, []string{"a"}},
		{"pool wins", AIConfig{APIKey: "a", APIKeys: []string{"b", "c"}}, []string{"b", "c"}},
		{"dedup", AIConfig{APIKeys: []string{"b", "b", "", "c"}}, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.EffectiveKeys()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidateFlagsMissingCredentials(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate on defaults = %v, want 3 problems", errs)
	}
}

func TestSessionPath(t *testing.T) {
	cfg := Default()
	if got := cfg.SessionPath(""); got != filepath.Join("sessions", "tgmon.session") {
		t.Errorf("SessionPath(\"\") = %q", got)
	}
	if got := cfg.SessionPath("alt"); got != filepath.Join("sessions", "alt.session") {
		t.Errorf("SessionPath(alt) = %q", got)
	}
}
