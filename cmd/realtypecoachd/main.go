// realtypecoachd is the typing telemetry daemon: it observes key
// presses, groups them into bursts, maintains per-key, per-digraph and
// per-word statistics in an encrypted local store, and optionally
// reconciles them with a shared remote store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dronakurl/realtypecoach/internal/config"
	"github.com/Dronakurl/realtypecoach/internal/daemon"
	"github.com/Dronakurl/realtypecoach/internal/device"
	"github.com/Dronakurl/realtypecoach/internal/logging"
	"github.com/Dronakurl/realtypecoach/internal/secretstore"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var (
	configPath  = flag.String("config", "", "path to config file")
	showVersion = flag.Bool("version", false, "show version information")
	foreground  = flag.Bool("stderr", false, "log to stderr instead of the log file")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("realtypecoachd %s (built %s, commit %s)\n", Version, BuildTime, Commit)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "realtypecoachd: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	loader := config.NewLoader(*configPath, slog.Default())
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	daemon.Version = Version
	d, err := daemon.New(loader, logger.Logger)
	if err != nil {
		return err
	}

	audit := logging.DefaultAuditLogger()
	audit.LogStartup(context.Background(), Version, nil)
	defer audit.LogShutdown(context.Background(), "signal")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Output = cfg.Logging.Output
	logCfg.FilePath = cfg.Logging.FilePath
	logCfg.Component = "realtypecoachd"
	if cfg.Logging.Format == "json" {
		logCfg.Format = logging.FormatJSON
	}
	if *foreground {
		logCfg.Output = "stderr"
	}
	return logging.New(logCfg)
}

// exitCode maps the fail-fast startup failures to distinct codes so
// service managers can tell a permission problem from a missing
// keyring.
func exitCode(err error) int {
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		return 2
	case errors.Is(err, device.ErrNoInputDevices):
		return 3
	case errors.Is(err, secretstore.ErrKeyringUnavailable):
		return 4
	default:
		return 1
	}
}
