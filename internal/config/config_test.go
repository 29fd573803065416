package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestInterFieldConstraintRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Burst.ActiveTimeThresholdMs = 1500 // >= burst_timeout_ms (1000)

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "active_time_threshold_ms") {
		t.Errorf("error should name the offending field, got: %v", err)
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Burst.TimeoutMs = 0
	cfg.Notifications.TimeHour = 25
	cfg.Dictionary.Mode = "maybe"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(verrs), verrs)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Burst.TimeoutMs != 1000 {
		t.Errorf("burst_timeout_ms = %d, want 1000", cfg.Burst.TimeoutMs)
	}
	if cfg.Sync.AutoSyncIntervalSec != 300 {
		t.Errorf("auto_sync_interval_sec = %d, want 300", cfg.Sync.AutoSyncIntervalSec)
	}
}

func TestLoadParsesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
version = 1

[burst]
burst_timeout_ms = 1500
max_realistic_wpm = 250

[dictionary]
enabled_languages = ["de"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Burst.TimeoutMs != 1500 {
		t.Errorf("burst_timeout_ms = %d, want 1500", cfg.Burst.TimeoutMs)
	}
	if cfg.Burst.MaxRealisticWPM != 250 {
		t.Errorf("max_realistic_wpm = %d, want 250", cfg.Burst.MaxRealisticWPM)
	}
	if len(cfg.Dictionary.EnabledLanguages) != 1 || cfg.Dictionary.EnabledLanguages[0] != "de" {
		t.Errorf("enabled_languages = %v, want [de]", cfg.Dictionary.EnabledLanguages)
	}
	// Untouched sections keep their defaults.
	if cfg.Words.BoundaryTimeoutMs != 1000 {
		t.Errorf("word_boundary_timeout_ms = %d, want default 1000", cfg.Words.BoundaryTimeoutMs)
	}
}

func TestSchemaRejectsUnknownKey(t *testing.T) {
	err := ValidateSchema([]byte(`
[burst]
burst_timout_ms = 1500
`))
	if err == nil {
		t.Fatal("misspelled key should fail schema validation")
	}
}

func TestSchemaRejectsWrongType(t *testing.T) {
	err := ValidateSchema([]byte(`
[burst]
burst_timeout_ms = "fast"
`))
	if err == nil {
		t.Fatal("string where integer belongs should fail schema validation")
	}
}

func TestSettingsSnapshotCoversEveryKey(t *testing.T) {
	snapshot := DefaultConfig().SettingsSnapshot()
	for _, key := range SettingsKeys() {
		if _, ok := snapshot[key]; !ok {
			t.Errorf("snapshot missing key %q", key)
		}
	}
}

func TestApplySettingRoundTrip(t *testing.T) {
	cfg := DefaultConfig()

	next, err := cfg.ApplySetting(KeyBurstTimeoutMs, "2000")
	if err != nil {
		t.Fatalf("ApplySetting: %v", err)
	}
	if next.Burst.TimeoutMs != 2000 {
		t.Errorf("burst timeout = %d, want 2000", next.Burst.TimeoutMs)
	}
	// Receiver untouched.
	if cfg.Burst.TimeoutMs != 1000 {
		t.Errorf("original mutated to %d", cfg.Burst.TimeoutMs)
	}

	value, ok := next.Setting(KeyBurstTimeoutMs)
	if !ok || value != "2000" {
		t.Errorf("Setting returned %q, %v", value, ok)
	}
}

func TestApplySettingRejectsConstraintViolation(t *testing.T) {
	cfg := DefaultConfig()

	// Lowering burst_timeout_ms below the active-time threshold breaks
	// the inter-field constraint; the previous config must survive.
	if _, err := cfg.ApplySetting(KeyBurstTimeoutMs, "400"); err == nil {
		t.Fatal("expected constraint violation")
	}
	if cfg.Burst.TimeoutMs != 1000 {
		t.Errorf("original config mutated")
	}
}

func TestApplySettingUnknownKey(t *testing.T) {
	if _, err := DefaultConfig().ApplySetting("no_such_setting", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestApplySettingParsesLists(t *testing.T) {
	next, err := DefaultConfig().ApplySetting(KeyEnabledLanguages, "en, de ,fr")
	if err != nil {
		t.Fatalf("ApplySetting: %v", err)
	}
	got := next.Dictionary.EnabledLanguages
	want := []string{"en", "de", "fr"}
	if len(got) != len(want) {
		t.Fatalf("languages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("languages[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
