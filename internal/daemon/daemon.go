// Package daemon wires the realtypecoach pipeline together and owns its
// lifecycle: device reader into bounded queue, single consumer over the
// burst detector, word segmenter and aggregator, background jobs for
// sync and retention, and the control socket for the shells.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/analyzer"
	"github.com/Dronakurl/realtypecoach/internal/burst"
	"github.com/Dronakurl/realtypecoach/internal/config"
	"github.com/Dronakurl/realtypecoach/internal/device"
	"github.com/Dronakurl/realtypecoach/internal/dictionary"
	"github.com/Dronakurl/realtypecoach/internal/eventqueue"
	"github.com/Dronakurl/realtypecoach/internal/health"
	"github.com/Dronakurl/realtypecoach/internal/ipc"
	"github.com/Dronakurl/realtypecoach/internal/jobs"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/metrics"
	"github.com/Dronakurl/realtypecoach/internal/notifier"
	"github.com/Dronakurl/realtypecoach/internal/secretstore"
	"github.com/Dronakurl/realtypecoach/internal/stats"
	"github.com/Dronakurl/realtypecoach/internal/store"
	syncpkg "github.com/Dronakurl/realtypecoach/internal/sync"
	"github.com/Dronakurl/realtypecoach/internal/wordseg"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// Daemon owns every long-lived component.
type Daemon struct {
	cfgLoader *config.Loader
	cfg       atomic.Pointer[config.Config]
	log       *slog.Logger

	queue     *eventqueue.Queue
	source    *device.Source
	layout    *keycodes.Detector
	localDB   *store.SQLite
	remoteDB  *store.Postgres
	dict      *dictionary.Dictionary
	detector  *burst.Detector
	segmenter *wordseg.Segmenter
	agg       *stats.Aggregator
	analyzer  *analyzer.Analyzer
	notifier  *notifier.Notifier
	syncer    *syncpkg.Synchronizer
	pool      *jobs.Pool
	scheduler *jobs.Scheduler
	ipcServer *ipc.Server
	metrics   *metrics.Metrics
	checker   *health.Checker

	httpServer *http.Server

	startTime      time.Time
	eventsConsumed atomic.Uint64
	lastSyncAtMs   atomic.Int64
	lastSyncError  atomic.Pointer[string]

	dictStop chan struct{}
	wg       sync.WaitGroup
}

// New assembles a Daemon from a loaded configuration. Nothing starts
// running until Run.
func New(loader *config.Loader, logger *slog.Logger) (*Daemon, error) {
	cfg := loader.Config()
	if cfg == nil {
		return nil, fmt.Errorf("daemon: loader has no configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfgLoader: loader,
		log:       logger.With("component", "daemon"),
		metrics:   metrics.New(),
		checker:   health.NewChecker(),
		startTime: time.Now(),
	}
	d.cfg.Store(cfg)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	// Master key from the OS secret store; without it there is no way
	// to open the encrypted database, so this failure is fatal.
	secrets, err := secretstore.Open()
	if err != nil {
		return nil, err
	}
	masterKey, err := secrets.GetOrCreateMasterKey()
	if err != nil {
		return nil, err
	}

	d.localDB, err = store.OpenSQLiteWithRecovery(cfg.Storage.DatabasePath, masterKey, logger)
	if err != nil {
		return nil, err
	}

	d.dict = dictionary.New(dictionary.Config{
		EnabledDictionaryPaths: cfg.Dictionary.EnabledDictionaries,
		EnabledLanguages:       cfg.Dictionary.EnabledLanguages,
		AcceptAllMode:          cfg.Dictionary.Mode == "accept_all",
		AutoFallback:           cfg.Dictionary.AutoFallback,
		ExcludeNamesEnabled:    cfg.Dictionary.ExcludeNamesEnabled,
	}, cfg.Dictionary.IgnoreFilePath, d.localDB, logger)

	d.layout = keycodes.NewDetector()

	d.queue = eventqueue.New(eventqueue.DefaultCapacity, func(totalDrops uint64) {
		d.log.Warn("event queue overflow", "total_drops", totalDrops)
	})

	d.source, err = device.New(d.queue, d.layout.Current)
	if err != nil {
		d.localDB.Close()
		return nil, err
	}
	d.source.SetLogger(logger)

	d.detector, err = burst.NewDetector(burstConfig(cfg))
	if err != nil {
		d.localDB.Close()
		return nil, err
	}
	d.detector.OnNegativeDuration = func(gapMs int64) {
		d.log.Warn("out-of-order press timestamps clamped", "gap_ms", gapMs)
	}

	d.segmenter = wordseg.New(wordseg.Config{
		WordBoundaryTimeoutMs: cfg.Words.BoundaryTimeoutMs,
	}, d.dict, "")

	d.agg = stats.New(d.localDB, statsConfig(cfg), logger)
	d.analyzer = analyzer.New(d.localDB)

	d.pool = jobs.NewPool(logger)
	d.scheduler, err = jobs.NewScheduler(d.pool, logger)
	if err != nil {
		d.localDB.Close()
		return nil, err
	}

	handler := newHandler(d)
	d.ipcServer = ipc.NewServer(ipc.DefaultServerConfig(cfg.IPC.SocketPath), handler, logger)

	d.notifier = notifier.New(&ipcSink{server: d.ipcServer}, d.analyzer, d.localDB, notifier.Config{
		DailySummaryHour:   cfg.Notifications.TimeHour,
		WorstLetterEnabled: cfg.Notifications.WorstLetterEnabled,
	}, logger)

	if cfg.Sync.PostgresSyncEnabled {
		d.remoteDB, err = store.OpenPostgres(cfg.Sync.PostgresDSN, cfg.Sync.UserID)
		if err != nil {
			// The remote being down must not stop local capture; sync
			// retries on its schedule.
			d.log.Warn("remote store unavailable at startup", "error", err)
		} else {
			d.buildSyncer(cfg)
		}
	}

	d.registerHealthChecks(cfg)
	return d, nil
}

func (d *Daemon) buildSyncer(cfg *config.Config) {
	names := func() []string {
		return dictionary.CommonNames(cfg.Dictionary.EnabledLanguages)
	}
	d.syncer = syncpkg.New(d.localDB, d.remoteDB, cfg.Sync.MachineName, names, d.log)
}

func burstConfig(cfg *config.Config) burst.Config {
	return burst.Config{
		BurstTimeoutMs:         cfg.Burst.TimeoutMs,
		HighScoreMinDurationMs: cfg.Burst.HighScoreMinDurationMs,
		DurationMethod:         burst.DurationMethod(cfg.Burst.DurationCalculation),
		ActiveTimeThresholdMs:  cfg.Burst.ActiveTimeThresholdMs,
		MinKeyCount:            cfg.Burst.MinKeyCount,
		MinDurationMs:          cfg.Burst.MinDurationMs,
	}
}

func statsConfig(cfg *config.Config) stats.Config {
	return stats.Config{
		MaxRealisticWPM:          float64(cfg.Burst.MaxRealisticWPM),
		WorstLetterMinPresses:    20,
		WorstLetterDebounceMs:    int64(cfg.Notifications.WorstLetterDebounceMin) * 60 * 1000,
		WorstLetterNotifyEnabled: cfg.Notifications.WorstLetterEnabled,
	}
}

func (d *Daemon) registerHealthChecks(cfg *config.Config) {
	d.checker.RegisterFunc("storage", true, health.DatabaseCheck(func(ctx context.Context) error {
		return d.localDB.DB().PingContext(ctx)
	}))
	d.checker.RegisterFunc("queue", false, health.QueueCheck(d.queue.Len, d.queue.Cap(), d.queue.Drops))
	d.checker.RegisterFunc("devices", true, health.DeviceCheck(d.source.DevicePaths))
	d.checker.RegisterFunc("sync", false, health.SyncCheck(
		func() bool { return d.currentConfig().Sync.AutoSyncEnabled && d.syncer != nil },
		func() time.Time {
			ms := d.lastSyncAtMs.Load()
			if ms == 0 {
				return time.Time{}
			}
			return time.UnixMilli(ms)
		},
		func() time.Duration {
			return time.Duration(d.currentConfig().Sync.AutoSyncIntervalSec) * time.Second
		},
	))
}

func (d *Daemon) currentConfig() *config.Config {
	return d.cfg.Load()
}

// Run starts every component and blocks until ctx is canceled, then
// shuts down in order: silence the source first, drain the consumer,
// stop the jobs, flush and close storage last.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.currentConfig()

	pidPath := filepath.Join(config.PlatformRuntimeDir(), "realtypecoachd.pid")
	if err := AcquirePIDLock(pidPath); err != nil {
		return err
	}
	defer ReleasePIDLock(pidPath)

	if err := d.ipcServer.Start(); err != nil {
		return err
	}

	d.layout.OnChange(func(old, new keycodes.Layout) {
		d.log.Info("keyboard layout changed", "from", string(old), "to", string(new))
	})
	d.layout.Start()

	d.dictStop = make(chan struct{})
	if err := d.dict.Watch(d.dictStop); err != nil {
		d.log.Warn("ignore-file watcher unavailable", "error", err)
	}

	d.cfgLoader.OnChange(d.applyConfig)
	if err := d.cfgLoader.Watch(); err != nil {
		d.log.Warn("config watcher unavailable", "error", err)
	}

	if err := d.scheduleJobs(cfg); err != nil {
		return err
	}
	d.scheduler.Start()

	if cfg.Telemetry.ListenAddr != "" {
		d.startTelemetry(cfg.Telemetry.ListenAddr)
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.consumeLoop(consumerCtx)
	}()

	d.source.Start()
	d.checker.SetReady(true)
	d.log.Info("daemon running", "version", Version, "devices", d.source.DevicePaths())

	<-ctx.Done()
	d.log.Info("shutting down")
	d.checker.SetReady(false)

	// 1. Silence the source.
	d.source.Stop()
	// 2. Let the consumer drain what is queued, then stop it.
	deadline := time.Now().Add(2 * time.Second)
	for d.queue.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancelConsumer()
	d.waitWithTimeout(5 * time.Second)
	// 3. Stop scheduled jobs and the control socket.
	d.scheduler.Stop()
	d.pool.Stop()
	d.cfgLoader.Stop()
	close(d.dictStop)
	d.layout.Stop()
	d.ipcServer.Stop()
	if d.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		d.httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	// 4. Close storage last.
	if d.remoteDB != nil {
		d.remoteDB.Close()
	}
	if err := d.localDB.Close(); err != nil {
		return fmt.Errorf("daemon: close local store: %w", err)
	}
	return nil
}

// waitWithTimeout joins the consumer with a bounded wait; a wedged
// consumer is abandoned rather than hanging shutdown forever.
func (d *Daemon) waitWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.log.Error("consumer did not stop in time, abandoning")
	}
}

func (d *Daemon) scheduleJobs(cfg *config.Config) error {
	if cfg.Sync.AutoSyncEnabled && d.syncer != nil {
		interval := time.Duration(cfg.Sync.AutoSyncIntervalSec) * time.Second
		if err := d.scheduler.Every(interval, "auto-sync", d.runSync); err != nil {
			return err
		}
	}

	if err := d.scheduler.DailyAt(3, "retention", d.runRetention); err != nil {
		return err
	}

	if err := d.scheduler.DailyAt(cfg.Notifications.TimeHour, "daily-summary", func(ctx context.Context) {
		if err := d.notifier.RunDailySummary(time.Now()); err != nil {
			d.log.Warn("daily summary failed", "error", err)
		}
	}); err != nil {
		return err
	}
	return nil
}

func (d *Daemon) runSync(ctx context.Context) {
	if d.syncer == nil {
		return
	}
	start := time.Now()
	entry, err := d.syncer.Sync(ctx)
	d.metrics.RecordSync(time.Since(start), entry.Pushed, entry.Pulled, err)
	d.lastSyncAtMs.Store(entry.Timestamp)
	if err != nil {
		text := err.Error()
		d.lastSyncError.Store(&text)
		d.metrics.RecordError("sync")
	} else {
		empty := ""
		d.lastSyncError.Store(&empty)
	}

	if ev, evErr := ipc.NewEvent(ipc.EventSyncResult, entry.Timestamp, entry); evErr == nil {
		d.ipcServer.Broadcast(ev)
	}
}

func (d *Daemon) runRetention(ctx context.Context) {
	days := d.currentConfig().Storage.DataRetentionDays
	if days < 0 {
		return
	}
	if err := d.localDB.ApplyRetention(days, time.Now().UnixMilli()); err != nil {
		d.log.Error("retention sweep failed", "error", err)
		d.metrics.RecordError("retention")
	}
}

// applyConfig stores a validated configuration snapshot and pushes it
// into the notifier and the dictionary. The burst detector, word
// segmenter and aggregator keep the settings they were built with; the
// consumer reads only the burst timeout from the snapshot, for its
// idle-burst check.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.cfg.Store(cfg)

	d.notifier.SetConfig(notifier.Config{
		DailySummaryHour:   cfg.Notifications.TimeHour,
		WorstLetterEnabled: cfg.Notifications.WorstLetterEnabled,
	})
	d.dict.UpdateExcludeNames(cfg.Dictionary.ExcludeNamesEnabled, cfg.Dictionary.EnabledLanguages)
	d.log.Info("configuration applied")
}

func (d *Daemon) startTelemetry(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.Handle("/healthz", d.checker.LivenessHandler())
	mux.Handle("/readyz", d.checker.ReadinessHandler())
	mux.Handle("/health", d.checker.HealthHandler())

	d.httpServer = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error("telemetry listener failed", "error", err)
		}
	}()
}

// ipcSink publishes notifications onto the control socket's event
// stream.
type ipcSink struct {
	server *ipc.Server
}

func (s *ipcSink) Notify(n notifier.Notification) {
	ev, err := ipc.NewEvent(ipc.EventType(n.Kind), time.Now().UnixMilli(), map[string]any{
		"title":   n.Title,
		"body":    n.Body,
		"details": n.Details,
	})
	if err != nil {
		return
	}
	s.server.Broadcast(ev)
}
