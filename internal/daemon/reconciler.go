package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/lockin/internal/orchestrator"
)

// Pruner reconciles tracked state with the OS.
type Pruner interface {
	Prune() orchestrator.PruneReport
}

// ReconcilerConfig configures a Reconciler. Interval defaults to 5s.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler prunes stale windows and exited apps on a fixed interval.
type Reconciler struct {
	interval time.Duration
	pruner   Pruner
	logger   *slog.Logger
}

func NewReconciler(cfg ReconcilerConfig, pruner Pruner) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		pruner:   pruner,
		logger:   logger,
	}
}

// Run prunes on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("pruning started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("pruning stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

func (r *Reconciler) reconcile() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("prune panicked", "panic", p)
		}
	}()

	report := r.pruner.Prune()
	switch {
	case len(report.Removed) > 0:
		r.logger.Info("exited applications removed", "apps", report.Removed,
			"dropped_windows", report.Dropped, "adopted_windows", report.Adopted)
	case report.Dropped > 0 || report.Adopted > 0:
		r.logger.Debug("window tracking corrected",
			"dropped_windows", report.Dropped, "adopted_windows", report.Adopted)
	}
}

// ReconcileNow runs one prune pass synchronously.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
