package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Flat settings keys, shared by the settings table, the control
// protocol, and remote sync.
const (
	KeyBurstTimeoutMs           = "burst_timeout_ms"
	KeyBurstDurationCalculation = "burst_duration_calculation"
	KeyActiveTimeThresholdMs    = "active_time_threshold_ms"
	KeyHighScoreMinDurationMs   = "high_score_min_duration_ms"
	KeyMinBurstKeyCount         = "min_burst_key_count"
	KeyMinBurstDurationMs       = "min_burst_duration_ms"
	KeyWordBoundaryTimeoutMs    = "word_boundary_timeout_ms"
	KeyMaxRealisticWPM          = "max_realistic_wpm"
	KeyDataRetentionDays        = "data_retention_days"
	KeyDictionaryMode           = "dictionary_mode"
	KeyEnabledLanguages         = "enabled_languages"
	KeyEnabledDictionaries      = "enabled_dictionaries"
	KeyExcludeNamesEnabled      = "exclude_names_enabled"
	KeyAutoSyncEnabled          = "auto_sync_enabled"
	KeyAutoSyncIntervalSec      = "auto_sync_interval_sec"
	KeyPostgresSyncEnabled      = "postgres_sync_enabled"
	KeyNotificationTimeHour     = "notification_time_hour"
	KeyWorstLetterNotifyEnabled = "worst_letter_notifications_enabled"
	KeyWorstLetterDebounceMin   = "worst_letter_notification_debounce_min"
)

// SettingsKeys returns every recognized flat settings key.
func SettingsKeys() []string {
	return []string{
		KeyBurstTimeoutMs,
		KeyBurstDurationCalculation,
		KeyActiveTimeThresholdMs,
		KeyHighScoreMinDurationMs,
		KeyMinBurstKeyCount,
		KeyMinBurstDurationMs,
		KeyWordBoundaryTimeoutMs,
		KeyMaxRealisticWPM,
		KeyDataRetentionDays,
		KeyDictionaryMode,
		KeyEnabledLanguages,
		KeyEnabledDictionaries,
		KeyExcludeNamesEnabled,
		KeyAutoSyncEnabled,
		KeyAutoSyncIntervalSec,
		KeyPostgresSyncEnabled,
		KeyNotificationTimeHour,
		KeyWorstLetterNotifyEnabled,
		KeyWorstLetterDebounceMin,
	}
}

// Setting returns the current value of a flat settings key.
func (c *Config) Setting(key string) (string, bool) {
	switch key {
	case KeyBurstTimeoutMs:
		return strconv.FormatInt(c.Burst.TimeoutMs, 10), true
	case KeyBurstDurationCalculation:
		return c.Burst.DurationCalculation, true
	case KeyActiveTimeThresholdMs:
		return strconv.FormatInt(c.Burst.ActiveTimeThresholdMs, 10), true
	case KeyHighScoreMinDurationMs:
		return strconv.FormatInt(c.Burst.HighScoreMinDurationMs, 10), true
	case KeyMinBurstKeyCount:
		return strconv.Itoa(c.Burst.MinKeyCount), true
	case KeyMinBurstDurationMs:
		return strconv.FormatInt(c.Burst.MinDurationMs, 10), true
	case KeyWordBoundaryTimeoutMs:
		return strconv.FormatInt(c.Words.BoundaryTimeoutMs, 10), true
	case KeyMaxRealisticWPM:
		return strconv.Itoa(c.Burst.MaxRealisticWPM), true
	case KeyDataRetentionDays:
		return strconv.Itoa(c.Storage.DataRetentionDays), true
	case KeyDictionaryMode:
		return c.Dictionary.Mode, true
	case KeyEnabledLanguages:
		return strings.Join(c.Dictionary.EnabledLanguages, ","), true
	case KeyEnabledDictionaries:
		return strings.Join(c.Dictionary.EnabledDictionaries, ","), true
	case KeyExcludeNamesEnabled:
		return strconv.FormatBool(c.Dictionary.ExcludeNamesEnabled), true
	case KeyAutoSyncEnabled:
		return strconv.FormatBool(c.Sync.AutoSyncEnabled), true
	case KeyAutoSyncIntervalSec:
		return strconv.Itoa(c.Sync.AutoSyncIntervalSec), true
	case KeyPostgresSyncEnabled:
		return strconv.FormatBool(c.Sync.PostgresSyncEnabled), true
	case KeyNotificationTimeHour:
		return strconv.Itoa(c.Notifications.TimeHour), true
	case KeyWorstLetterNotifyEnabled:
		return strconv.FormatBool(c.Notifications.WorstLetterEnabled), true
	case KeyWorstLetterDebounceMin:
		return strconv.Itoa(c.Notifications.WorstLetterDebounceMin), true
	}
	return "", false
}

// SettingsSnapshot returns all flat settings as a key -> value map.
func (c *Config) SettingsSnapshot() map[string]string {
	out := make(map[string]string, len(SettingsKeys()))
	for _, key := range SettingsKeys() {
		if v, ok := c.Setting(key); ok {
			out[key] = v
		}
	}
	return out
}

// ApplySetting parses value for key and applies it to a copy of the
// config, returning the updated copy only if the whole config still
// validates. The receiver is never mutated, so a rejected update keeps
// the previous values by construction.
func (c *Config) ApplySetting(key, value string) (*Config, error) {
	next := *c
	next.Dictionary.EnabledLanguages = append([]string(nil), c.Dictionary.EnabledLanguages...)
	next.Dictionary.EnabledDictionaries = append([]string(nil), c.Dictionary.EnabledDictionaries...)

	var err error
	switch key {
	case KeyBurstTimeoutMs:
		next.Burst.TimeoutMs, err = parseInt64(key, value)
	case KeyBurstDurationCalculation:
		next.Burst.DurationCalculation = value
	case KeyActiveTimeThresholdMs:
		next.Burst.ActiveTimeThresholdMs, err = parseInt64(key, value)
	case KeyHighScoreMinDurationMs:
		next.Burst.HighScoreMinDurationMs, err = parseInt64(key, value)
	case KeyMinBurstKeyCount:
		next.Burst.MinKeyCount, err = parseInt(key, value)
	case KeyMinBurstDurationMs:
		next.Burst.MinDurationMs, err = parseInt64(key, value)
	case KeyWordBoundaryTimeoutMs:
		next.Words.BoundaryTimeoutMs, err = parseInt64(key, value)
	case KeyMaxRealisticWPM:
		next.Burst.MaxRealisticWPM, err = parseInt(key, value)
	case KeyDataRetentionDays:
		next.Storage.DataRetentionDays, err = parseInt(key, value)
	case KeyDictionaryMode:
		next.Dictionary.Mode = value
	case KeyEnabledLanguages:
		next.Dictionary.EnabledLanguages = splitCSV(value)
	case KeyEnabledDictionaries:
		next.Dictionary.EnabledDictionaries = splitCSV(value)
	case KeyExcludeNamesEnabled:
		next.Dictionary.ExcludeNamesEnabled, err = parseBool(key, value)
	case KeyAutoSyncEnabled:
		next.Sync.AutoSyncEnabled, err = parseBool(key, value)
	case KeyAutoSyncIntervalSec:
		next.Sync.AutoSyncIntervalSec, err = parseInt(key, value)
	case KeyPostgresSyncEnabled:
		next.Sync.PostgresSyncEnabled, err = parseBool(key, value)
	case KeyNotificationTimeHour:
		next.Notifications.TimeHour, err = parseInt(key, value)
	case KeyWorstLetterNotifyEnabled:
		next.Notifications.WorstLetterEnabled, err = parseBool(key, value)
	case KeyWorstLetterDebounceMin:
		next.Notifications.WorstLetterDebounceMin, err = parseInt(key, value)
	default:
		return nil, fmt.Errorf("config: unknown setting %q", key)
	}
	if err != nil {
		return nil, err
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

func parseInt64(key, value string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: not an integer: %q", key, value)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := parseInt64(key, value)
	return int(v), err
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("config: %s: not a boolean: %q", key, value)
	}
	return v, nil
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
