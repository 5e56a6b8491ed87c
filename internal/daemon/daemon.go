// Package daemon runs the long-lived lockin process: it owns the platform
// backend, the orchestrator, the reconciler, the IPC server and the metrics
// listener.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/lockin/internal/actionlog"
	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/ipc"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/metrics"
	"github.com/1broseidon/lockin/internal/orchestrator"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/preset"
	"github.com/1broseidon/lockin/internal/registry"
	"github.com/1broseidon/lockin/internal/resolve"
)

// ErrUnknownPreset is returned by LoadPreset for names not in the config.
var ErrUnknownPreset = errors.New("unknown preset")

// Options configures a Daemon.
type Options struct {
	// SocketPath overrides the IPC socket location.
	SocketPath string
	// Starter overrides process creation. Defaults to a launcher built from
	// the launcher config section.
	Starter orchestrator.Starter
	Logger  *slog.Logger
}

// Daemon serves orchestrator operations over IPC.
type Daemon struct {
	*orchestrator.Orchestrator

	cfgMu sync.RWMutex
	cfg   *config.Config

	finder     preset.Resolver
	metrics    *metrics.Metrics
	actions    *actionlog.Log
	logger     *slog.Logger
	socketPath string
}

// New wires the daemon components from cfg. backend is owned by the caller.
func New(cfg *config.Config, backend platform.Backend, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l, err := launcher.New(launcher.Options{
		SearchDirs:      cfg.Launcher.SearchDirs,
		ConsolePrograms: cfg.Launcher.ConsolePrograms,
		TerminalCommand: cfg.Launcher.TerminalCommand,
		SettleDelay:     cfg.Launcher.SettleDelay,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launcher: %w", err)
	}
	starter := opts.Starter
	if starter == nil {
		starter = orchestrator.FromLauncher(l)
	}

	actions, err := actionlog.New(actionlog.Config{
		Enabled:   cfg.Logging.ActionLog,
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open action log: %w", err)
	}

	m := metrics.New()
	orch := orchestrator.New(backend, starter, orchestrator.Options{
		Resolve: resolve.Config{
			PollInterval:  cfg.Resolution.PollInterval,
			Timeout:       cfg.Resolution.Timeout,
			RecencyWindow: cfg.Resolution.RecencyWindow,
			TitleFallback: cfg.Resolution.TitleFallback,
		},
		Desktop: desktop.Options{
			Disabled:       !cfg.Desktop.Enabled,
			SwitchOnCreate: cfg.Desktop.SwitchOnCreate,
			TeardownGrace:  cfg.Desktop.TeardownGrace,
			SwitchSettle:   cfg.Desktop.SwitchSettle,
		},
		CloseGrace: cfg.Close.Grace,
		KillGrace:  cfg.Close.KillGrace,
		ExitGrace:  cfg.Daemon.ExitGrace,
		Logger:     logger,
		Metrics:    m,
		Actions:    actions,
	})

	return &Daemon{
		Orchestrator: orch,
		cfg:          cfg,
		finder:       l,
		metrics:      m,
		actions:      actions,
		logger:       logger,
		socketPath:   opts.SocketPath,
	}, nil
}

// Config returns the current configuration.
func (d *Daemon) Config() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// UpdatePresets replaces the preset table with the one from cfg. Timing and
// desktop settings take effect on the next daemon start.
func (d *Daemon) UpdatePresets(cfg *config.Config) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	next := *d.cfg
	next.Presets = cfg.Presets
	d.cfg = &next
}

// LoadPreset launches every application of the named preset.
func (d *Daemon) LoadPreset(ctx context.Context, name string) ([]registry.App, error) {
	p, ok := d.Config().Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	plan, err := preset.Expand(name, p, d.finder)
	if err != nil {
		return nil, err
	}

	apps, err := d.LaunchAll(ctx, plan.Requests, plan.Profiles)
	d.actions.Record(actionlog.ActionLoadPreset, "",
		zap.String("preset", name), zap.Int("apps", len(apps)), zap.Int("requested", len(plan.Requests)), zap.Error(err))
	d.logger.Info("preset loaded", "preset", name, "apps", len(apps), "requested", len(plan.Requests))
	return apps, err
}

// Run serves IPC and runs the reconciler until ctx is cancelled, then shuts
// down. With daemon.teardown_on_exit the task desktop is torn down on exit.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	srv, err := ipc.NewServer(d, ipc.ServerOptions{SocketPath: d.socketPath, Logger: d.logger})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	reconciler := NewReconciler(ReconcilerConfig{
		Interval: cfg.Daemon.PruneInterval,
		Logger:   d.logger,
	}, d.Orchestrator)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(runCtx)
	}()

	if cfg.Metrics.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.metrics.Serve(runCtx, cfg.Metrics.Listen, d.logger); err != nil {
				d.logger.Error("metrics endpoint unavailable", "error", err)
			}
		}()
	}

	d.logger.Info("lockin daemon started", "socket", srv.SocketPath())
	<-ctx.Done()
	d.logger.Info("shutting down lockin daemon")

	cancel()
	srv.Stop()
	wg.Wait()
	d.shutdown(cfg)
	return nil
}

func (d *Daemon) shutdown(cfg *config.Config) {
	defer func() {
		if err := d.actions.Close(); err != nil {
			d.logger.Warn("failed to close action log", "error", err)
		}
	}()

	if !cfg.Daemon.TeardownOnExit || d.Snapshot().Session == nil {
		d.Shutdown()
		return
	}

	budget := cfg.Close.Grace + cfg.Close.KillGrace + 2*cfg.Desktop.TeardownGrace + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	report, err := d.CompleteTask(ctx)
	if err != nil {
		d.logger.Warn("task desktop teardown incomplete", "error", err, "remaining", report.Remaining)
		return
	}
	d.logger.Info("task desktop torn down", "closed", report.Closed, "terminated", report.Terminated)
}
