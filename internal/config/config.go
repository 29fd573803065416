// Package config handles configuration loading and validation for
// realtypecoach.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the daemon configuration. Every field carries a typed,
// validated value; the flat settings keys understood by the settings
// table and the control protocol are mapped in settings.go.
type Config struct {
	Version int `toml:"version"`

	Burst         BurstConfig         `toml:"burst"`
	Words         WordsConfig         `toml:"words"`
	Dictionary    DictionaryConfig    `toml:"dictionary"`
	Storage       StorageConfig       `toml:"storage"`
	Sync          SyncConfig          `toml:"sync"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
	IPC           IPCConfig           `toml:"ipc"`
}

// BurstConfig controls the burst detector.
type BurstConfig struct {
	// TimeoutMs is the inter-press gap that closes a burst.
	TimeoutMs int64 `toml:"burst_timeout_ms"`

	// DurationCalculation is "total_time" or "active_time".
	DurationCalculation string `toml:"burst_duration_calculation"`

	// ActiveTimeThresholdMs caps the gaps summed by the active_time
	// duration method. Must be strictly less than TimeoutMs.
	ActiveTimeThresholdMs int64 `toml:"active_time_threshold_ms"`

	// HighScoreMinDurationMs is the duration a burst needs to qualify
	// for the high-score table.
	HighScoreMinDurationMs int64 `toml:"high_score_min_duration_ms"`

	// MinKeyCount and MinDurationMs gate which closing bursts are
	// persisted at all.
	MinKeyCount   int   `toml:"min_burst_key_count"`
	MinDurationMs int64 `toml:"min_burst_duration_ms"`

	// MaxRealisticWPM drops bursts typed faster than a human plausibly
	// types; such bursts are never persisted.
	MaxRealisticWPM int `toml:"max_realistic_wpm"`
}

// WordsConfig controls word segmentation.
type WordsConfig struct {
	// BoundaryTimeoutMs splits two letters into separate words when the
	// gap between them exceeds it.
	BoundaryTimeoutMs int64 `toml:"word_boundary_timeout_ms"`
}

// DictionaryConfig controls word validation.
type DictionaryConfig struct {
	// Mode is "validate" or "accept_all".
	Mode string `toml:"dictionary_mode"`

	// EnabledLanguages auto-resolves wordlist paths per language code.
	EnabledLanguages []string `toml:"enabled_languages"`

	// EnabledDictionaries lists explicit wordlist files, overriding
	// language auto-resolution when non-empty.
	EnabledDictionaries []string `toml:"enabled_dictionaries"`

	// AutoFallback switches to accept-all mode when no dictionary can
	// be loaded; with it off, no word is ever accepted.
	AutoFallback bool `toml:"auto_fallback"`

	// ExcludeNamesEnabled filters common first names (and their
	// genitives) out of the word statistics.
	ExcludeNamesEnabled bool `toml:"exclude_names_enabled"`

	// IgnoreFilePath points at the user's plain-text ignore list.
	IgnoreFilePath string `toml:"ignore_file_path"`
}

// StorageConfig controls the local database.
type StorageConfig struct {
	// DatabasePath is the encrypted local database file.
	DatabasePath string `toml:"database_path"`

	// DataRetentionDays prunes bursts, high scores and daily summaries
	// older than this many days; -1 keeps everything forever.
	DataRetentionDays int `toml:"data_retention_days"`
}

// SyncConfig controls the remote synchronizer.
type SyncConfig struct {
	AutoSyncEnabled     bool   `toml:"auto_sync_enabled"`
	AutoSyncIntervalSec int    `toml:"auto_sync_interval_sec"`
	PostgresSyncEnabled bool   `toml:"postgres_sync_enabled"`
	PostgresDSN         string `toml:"postgres_dsn"`
	UserID              string `toml:"user_id"`
	MachineName         string `toml:"machine_name"`
}

// NotificationsConfig controls the notifier.
type NotificationsConfig struct {
	// TimeHour is the local hour (0..23) at which the daily summary is
	// surfaced.
	TimeHour int `toml:"notification_time_hour"`

	WorstLetterEnabled     bool `toml:"worst_letter_notifications_enabled"`
	WorstLetterDebounceMin int  `toml:"worst_letter_notification_debounce_min"`
}

// LoggingConfig mirrors internal/logging.Config's file-facing knobs.
type LoggingConfig struct {
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	Output   string `toml:"output"`
	FilePath string `toml:"file_path"`
}

// TelemetryConfig controls the metrics/health HTTP listener.
type TelemetryConfig struct {
	// ListenAddr serves /metrics, /healthz and /readyz when non-empty.
	ListenAddr string `toml:"listen_addr"`
}

// IPCConfig controls the control-plane socket.
type IPCConfig struct {
	// SocketPath overrides the default Unix socket location.
	SocketPath string `toml:"socket_path"`
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path, or from the default location when
// path is empty. A missing file yields the defaults. A .env file next to
// the config file (development convenience for secrets-adjacent values
// like the Postgres DSN) is loaded into the process environment first,
// without replacing variables that are already set. The RTC_-prefixed
// variables, whether they came from the real environment or from .env,
// are then applied on top of the TOML values, so a .env entry wins over
// the TOML file on conflict.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	// Ignore a missing .env; it is optional in every deployment.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies RTC_-prefixed environment variables on top
// of the file-sourced configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RTC_DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("RTC_POSTGRES_DSN"); v != "" {
		c.Sync.PostgresDSN = v
	}
	if v := os.Getenv("RTC_USER_ID"); v != "" {
		c.Sync.UserID = v
	}
	if v := os.Getenv("RTC_MACHINE_NAME"); v != "" {
		c.Sync.MachineName = v
	}
	if v := os.Getenv("RTC_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RTC_IPC_SOCKET"); v != "" {
		c.IPC.SocketPath = v
	}
}

// EnsureDirectories creates all directories the daemon writes under.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.DatabasePath),
		filepath.Dir(c.Logging.FilePath),
	}
	if c.Dictionary.IgnoreFilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Dictionary.IgnoreFilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
