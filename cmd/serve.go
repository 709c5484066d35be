package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/soundtap/tapd/internal/api"
	"github.com/soundtap/tapd/internal/audio"
	"github.com/soundtap/tapd/internal/config"
	"github.com/soundtap/tapd/internal/log"
	"github.com/soundtap/tapd/internal/observability"
	"github.com/soundtap/tapd/internal/recording"
)

const traceFlushTimeout = 10 * time.Second

var simulateFlag bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audio tap daemon",
	Long: `Starts the tapd daemon in the foreground.

The daemon holds an exclusive instance lock, binds the configured address
(loopback by default) and serves the control API until SIGINT or SIGTERM.
SIGHUP, or editing the config file, reloads the configuration and
restarts the listener with the new snapshot; in-flight requests on the
old listener finish first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&simulateFlag, "simulate", false,
		"use the simulated capture engine")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	manager, err := config.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("preparing config: %w", err)
	}
	cfg, err := manager.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	// Exactly one daemon may drive the tap capability. The lock lives in
	// the config dir and releases automatically if the process dies.
	lock := flock.New(filepath.Join(manager.Dir(), "tapd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return errors.New("another tapd instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, cfg.TraceEndpoint, AppVersion, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), traceFlushTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	logger.Info("starting tapd",
		"version", AppVersion,
		"config", manager.Path())

	reload := watchConfig(ctx, manager, logger)

	// One server per configuration snapshot. A reload tears the listener
	// down and brings up a fresh one; a bind failure ends the daemon.
	for {
		srv := buildServer(cfg, logger)
		if err := srv.Start(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return srv.Stop()
		case next := <-reload:
			logger.Info("configuration changed, restarting listener")
			if err := srv.Stop(); err != nil {
				logger.Warn("listener stop failed", "error", err)
			}
			cfg = next
		}
	}
}

// watchConfig funnels both reload triggers, the config-file watcher and
// SIGHUP, into one coalescing channel of fresh snapshots.
func watchConfig(ctx context.Context, manager *config.Manager, logger *slog.Logger) <-chan *config.Config {
	reload := make(chan *config.Config, 1)
	offer := func(next *config.Config) {
		select {
		case reload <- next:
		default:
		}
	}

	if err := manager.Watch(ctx, offer); err != nil {
		logger.Warn("config file watch unavailable", "error", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := manager.Load()
				if err != nil {
					logger.Error("config reload failed, keeping previous", "error", err)
					continue
				}
				offer(next)
			}
		}
	}()

	return reload
}

// buildServer assembles the engine, recording service and API server for
// one config snapshot.
func buildServer(cfg *config.Config, logger *slog.Logger) *api.Server {
	engine := audio.NewSimEngine(cfg.OutputDirectory)
	if simulateFlag || cfg.SimulateEngine {
		logger.Info("simulated capture engine enabled", "output_dir", cfg.OutputDirectory)
	} else {
		// The native capture collaborator ships separately. Captures still
		// work end to end, they just contain generated audio.
		logger.Warn("no native capture engine on this platform, using simulation",
			"output_dir", cfg.OutputDirectory)
	}

	svc := recording.NewService(engine, logger)
	return api.NewServer(cfg, svc, logger)
}
