// Package metrics exposes daemon counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Launch metrics
	Launches    *prometheus.CounterVec
	Resolutions *prometheus.CounterVec
	ResolveTime prometheus.Histogram

	// Orchestration metrics
	BulkOperations *prometheus.CounterVec
	BulkWindows    *prometheus.CounterVec
	FocusFailures  prometheus.Counter

	// Registry metrics
	TrackedApps    prometheus.Gauge
	TrackedWindows prometheus.Gauge

	// Desktop metrics
	Degraded  prometheus.Gauge
	Teardowns *prometheus.CounterVec
}

// New creates a Metrics backed by a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockin_launches_total",
				Help: "Launch requests by outcome",
			},
			[]string{"result"},
		),
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockin_resolutions_total",
				Help: "Finished launch resolutions by final state",
			},
			[]string{"state", "retargeted"},
		),
		ResolveTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lockin_resolution_duration_seconds",
				Help:    "Time from process start to a terminal resolution state",
				Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 8, 13, 21},
			},
		),

		BulkOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockin_bulk_operations_total",
				Help: "Bulk window operations by kind",
			},
			[]string{"operation"},
		),
		BulkWindows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockin_bulk_windows_total",
				Help: "Windows affected by bulk operations",
			},
			[]string{"operation"},
		),
		FocusFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lockin_focus_failures_total",
				Help: "Focus requests with no valid window",
			},
		),

		TrackedApps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockin_tracked_apps",
				Help: "Applications in the registry",
			},
		),
		TrackedWindows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockin_tracked_windows",
				Help: "Windows attributed to registered applications",
			},
		),

		Degraded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockin_session_degraded",
				Help: "1 while the task session runs without a virtual desktop",
			},
		),
		Teardowns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockin_teardowns_total",
				Help: "Task teardowns by outcome",
			},
			[]string{"result"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LaunchStarted counts a launch whose process started.
func (m *Metrics) LaunchStarted() {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues("started").Inc()
}

// LaunchFailed counts a rejected launch.
func (m *Metrics) LaunchFailed() {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues("failed").Inc()
}

// ObserveResolution records a finished resolution.
func (m *Metrics) ObserveResolution(state string, retargeted bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(state, fmt.Sprint(retargeted)).Inc()
	m.ResolveTime.Observe(elapsed.Seconds())
}

// BulkOperation records a bulk operation and the windows it touched.
func (m *Metrics) BulkOperation(op string, windows int) {
	if m == nil {
		return
	}
	m.BulkOperations.WithLabelValues(op).Inc()
	m.BulkWindows.WithLabelValues(op).Add(float64(windows))
}

// FocusFailed counts a failed focus request.
func (m *Metrics) FocusFailed() {
	if m == nil {
		return
	}
	m.FocusFailures.Inc()
}

// SetTracked updates the registry gauges.
func (m *Metrics) SetTracked(apps, windows int) {
	if m == nil {
		return
	}
	m.TrackedApps.Set(float64(apps))
	m.TrackedWindows.Set(float64(windows))
}

// SetDegraded updates the isolation gauge.
func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
	} else {
		m.Degraded.Set(0)
	}
}

// Teardown counts a task teardown.
func (m *Metrics) Teardown(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Teardowns.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
