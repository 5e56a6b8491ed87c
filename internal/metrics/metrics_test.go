package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.LaunchStarted()
	m.LaunchStarted()
	m.LaunchFailed()
	m.ObserveResolution("resolved", true, 300*time.Millisecond)
	m.BulkOperation("minimize_all", 5)
	m.BulkOperation("minimize_all", 2)
	m.FocusFailed()
	m.SetTracked(3, 4)
	m.SetDegraded(true)
	m.Teardown(nil)
	m.Teardown(errors.New("stuck"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Launches.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Launches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("resolved", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BulkOperations.WithLabelValues("minimize_all")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.BulkWindows.WithLabelValues("minimize_all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FocusFailures))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TrackedWindows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Teardowns.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LaunchStarted()
		m.LaunchFailed()
		m.ObserveResolution("unresolved", false, time.Second)
		m.BulkOperation("close_all", 1)
		m.FocusFailed()
		m.SetTracked(1, 1)
		m.SetDegraded(false)
		m.Teardown(nil)
	})
}

func TestHandlerExposesPrivateRegistry(t *testing.T) {
	m := New()
	m.LaunchStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `lockin_launches_total{result="started"} 1`), body)
	assert.NotContains(t, body, "go_goroutines", "default process collectors are not registered")
}
