package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricRunsTotal        = "packfang_runs_total"
	metricRunDuration      = "packfang_run_duration_seconds"
	metricErrorsTotal      = "packfang_errors_total"
	metricObjectsProcessed = "packfang_objects_processed_total"

	labelOp     = "op"
	labelStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s: verifying a small pack is
// sub-second while counting a large history can run minutes.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Metrics holds the prometheus instruments of one CLI process.
type Metrics struct {
	registry         *prometheus.Registry
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	objectsProcessed *prometheus.CounterVec
}

// NewMetrics creates the instrument set on its own registry, so repeated
// construction never trips duplicate-collector registration.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricRunsTotal,
			Help: "Total number of completed runs.",
		}, []string{labelOp, labelStatus}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricRunDuration,
			Help:    "Run duration in seconds.",
			Buckets: durationBucketBoundaries,
		}, []string{labelOp}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricErrorsTotal,
			Help: "Total number of failed runs.",
		}, []string{labelOp}),
		objectsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricObjectsProcessed,
			Help: "Total number of objects processed.",
		}, []string{labelOp}),
	}

	m.registry.MustRegister(m.runsTotal, m.runDuration, m.errorsTotal, m.objectsProcessed)

	return m
}

// Handler returns the /metrics scrape endpoint for this instrument set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records one completed run with its operation, duration and
// outcome.
func (m *Metrics) RecordRun(op string, duration time.Duration, runErr error) {
	status := statusOK
	if runErr != nil {
		status = statusError

		m.errorsTotal.WithLabelValues(op).Inc()
	}

	m.runsTotal.WithLabelValues(op, status).Inc()
	m.runDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObjectsCounter returns the processed-objects counter for one operation,
// suitable for mirroring progress into.
func (m *Metrics) ObjectsCounter(op string) prometheus.Counter {
	return m.objectsProcessed.WithLabelValues(op)
}
