package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader handles configuration loading, watching, and hot-reloading.
// When a change fails validation the previous config is kept and the
// error is logged; callbacks only ever observe valid configs.
type Loader struct {
	path string
	log  *slog.Logger

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a loader for the config file at path (the default
// location when empty).
func NewLoader(path string, logger *slog.Logger) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, log: logger.With("component", "config")}
}

// Load reads, validates and stores the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the current configuration snapshot.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Replace installs cfg as the current configuration and notifies the
// registered callbacks. Used by the control plane's set_setting path,
// which validates before calling.
func (l *Loader) Replace(cfg *Config) {
	l.mu.Lock()
	l.config = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// OnChange registers a callback invoked with each newly validated
// configuration.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching the configuration file for changes.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace config files
	// with rename+create, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch directory: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.watchLoop(watcher)
	return nil
}

// Stop halts the file watcher.
func (l *Loader) Stop() {
	l.mu.Lock()
	watcher := l.watcher
	done := l.done
	l.watcher = nil
	l.done = nil
	l.mu.Unlock()

	if watcher != nil {
		watcher.Close()
		<-done
	}
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher) {
	defer close(l.done)

	// Editors fire several events per save; coalesce them.
	var reloadTimer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			l.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn("config watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	cfg, err := Load(l.path)
	if err != nil {
		l.log.Error("config reload rejected, keeping previous values", "error", err)
		return
	}

	l.log.Info("configuration reloaded", "path", l.path)
	l.Replace(cfg)
}
