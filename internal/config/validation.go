package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field bound and the inter-field constraints. A
// config that fails validation is rejected whole; callers keep their
// previous values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateBurst(&c.Burst)...)
	errs = append(errs, validateWords(&c.Words)...)
	errs = append(errs, validateDictionary(&c.Dictionary)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateSync(&c.Sync)...)
	errs = append(errs, validateNotifications(&c.Notifications)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBurst(b *BurstConfig) ValidationErrors {
	var errs ValidationErrors
	if b.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{"burst.burst_timeout_ms", "must be > 0"})
	}
	if b.ActiveTimeThresholdMs <= 0 {
		errs = append(errs, ValidationError{"burst.active_time_threshold_ms", "must be > 0"})
	}
	if b.ActiveTimeThresholdMs >= b.TimeoutMs {
		errs = append(errs, ValidationError{
			Field:   "burst.active_time_threshold_ms",
			Message: fmt.Sprintf("must be less than burst_timeout_ms (%d >= %d)", b.ActiveTimeThresholdMs, b.TimeoutMs),
		})
	}
	if b.DurationCalculation != "total_time" && b.DurationCalculation != "active_time" {
		errs = append(errs, ValidationError{
			Field:   "burst.burst_duration_calculation",
			Message: fmt.Sprintf("must be %q or %q, got %q", "total_time", "active_time", b.DurationCalculation),
		})
	}
	if b.HighScoreMinDurationMs <= 0 {
		errs = append(errs, ValidationError{"burst.high_score_min_duration_ms", "must be > 0"})
	}
	if b.MinKeyCount < 1 {
		errs = append(errs, ValidationError{"burst.min_burst_key_count", "must be >= 1"})
	}
	if b.MinDurationMs <= 0 {
		errs = append(errs, ValidationError{"burst.min_burst_duration_ms", "must be > 0"})
	}
	if b.MaxRealisticWPM <= 0 {
		errs = append(errs, ValidationError{"burst.max_realistic_wpm", "must be > 0"})
	}
	return errs
}

func validateWords(w *WordsConfig) ValidationErrors {
	var errs ValidationErrors
	if w.BoundaryTimeoutMs <= 0 {
		errs = append(errs, ValidationError{"words.word_boundary_timeout_ms", "must be > 0"})
	}
	return errs
}

func validateDictionary(d *DictionaryConfig) ValidationErrors {
	var errs ValidationErrors
	if d.Mode != "validate" && d.Mode != "accept_all" {
		errs = append(errs, ValidationError{
			Field:   "dictionary.dictionary_mode",
			Message: fmt.Sprintf("must be %q or %q, got %q", "validate", "accept_all", d.Mode),
		})
	}
	for _, lang := range d.EnabledLanguages {
		if strings.TrimSpace(lang) == "" {
			errs = append(errs, ValidationError{"dictionary.enabled_languages", "contains an empty language code"})
			break
		}
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	if s.DatabasePath == "" {
		errs = append(errs, ValidationError{"storage.database_path", "is required"})
	}
	if s.DataRetentionDays < -1 {
		errs = append(errs, ValidationError{"storage.data_retention_days", "must be >= -1"})
	}
	return errs
}

func validateSync(s *SyncConfig) ValidationErrors {
	var errs ValidationErrors
	if s.AutoSyncIntervalSec <= 0 {
		errs = append(errs, ValidationError{"sync.auto_sync_interval_sec", "must be > 0"})
	}
	if s.PostgresSyncEnabled {
		if s.PostgresDSN == "" {
			errs = append(errs, ValidationError{"sync.postgres_dsn", "required when postgres_sync_enabled is true"})
		}
		if s.UserID == "" {
			errs = append(errs, ValidationError{"sync.user_id", "required when postgres_sync_enabled is true"})
		}
	}
	return errs
}

func validateNotifications(n *NotificationsConfig) ValidationErrors {
	var errs ValidationErrors
	if n.TimeHour < 0 || n.TimeHour > 23 {
		errs = append(errs, ValidationError{"notifications.notification_time_hour", "must be in 0..23"})
	}
	if n.WorstLetterDebounceMin < 1 {
		errs = append(errs, ValidationError{"notifications.worst_letter_notification_debounce_min", "must be >= 1"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch l.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", fmt.Sprintf("unknown level %q", l.Level)})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"logging.format", fmt.Sprintf("unknown format %q", l.Format)})
	}
	return errs
}
