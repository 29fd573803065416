package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/realtypecoach/
//   - Linux:   ~/.local/share/realtypecoach/
//   - Windows: %APPDATA%\realtypecoach\
//
// Falls back to ~/.realtypecoach if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "realtypecoach")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "realtypecoach")
		}
		return fallbackDataDir()
	case "linux":
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "realtypecoach")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "share", "realtypecoach")
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDataDir()
	case "windows":
		return PlatformDataDir()
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, "realtypecoach")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "realtypecoach")
	default:
		return fallbackDataDir()
	}
}

// PlatformStateDir returns the platform-specific state directory, used
// for logs and the PID lockfile.
func PlatformStateDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "realtypecoach")
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "realtypecoach")
		}
		return fallbackDataDir()
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, "realtypecoach")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "realtypecoach")
	}
}

// PlatformRuntimeDir returns the directory for sockets and lockfiles.
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
			return filepath.Join(rt, "realtypecoach")
		}
	}
	return PlatformStateDir()
}

func fallbackDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".realtypecoach")
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	dataDir := PlatformDataDir()
	stateDir := PlatformStateDir()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	return &Config{
		Version: Version,
		Burst: BurstConfig{
			TimeoutMs:              1000,
			DurationCalculation:    "total_time",
			ActiveTimeThresholdMs:  500,
			HighScoreMinDurationMs: 10000,
			MinKeyCount:            10,
			MinDurationMs:          5000,
			MaxRealisticWPM:        300,
		},
		Words: WordsConfig{
			BoundaryTimeoutMs: 1000,
		},
		Dictionary: DictionaryConfig{
			Mode:             "validate",
			EnabledLanguages: []string{"en", "de"},
			AutoFallback:     true,
			IgnoreFilePath:   filepath.Join(dataDir, "ignored_words.txt"),
		},
		Storage: StorageConfig{
			DatabasePath:      filepath.Join(dataDir, "realtypecoach.db"),
			DataRetentionDays: -1,
		},
		Sync: SyncConfig{
			AutoSyncIntervalSec: 300,
			MachineName:         hostname,
		},
		Notifications: NotificationsConfig{
			TimeHour:               18,
			WorstLetterDebounceMin: 5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "file",
			FilePath: filepath.Join(stateDir, "realtypecoach.log"),
		},
		IPC: IPCConfig{
			SocketPath: filepath.Join(PlatformRuntimeDir(), "realtypecoachd.sock"),
		},
	}
}
