package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps Prometheus collectors for the agent's sync
// loop, task runs, and request queue.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	syncCyclesTotal *prometheus.CounterVec

	taskRunsTotal    *prometheus.CounterVec
	taskRunDuration  *prometheus.HistogramVec

	requestsTotal *prometheus.CounterVec

	uptime prometheus.GaugeFunc
}

// Default histogram buckets for task-run duration, in milliseconds.
var defaultBuckets = []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000, 900000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		syncCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_cycles_total",
				Help:      "Total sync-loop iterations by outcome",
			},
			[]string{"outcome"},
		),

		taskRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Total task runs by kind, result code, and abort status",
			},
			[]string{"kind", "result", "aborted"},
		),

		taskRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_run_duration_milliseconds",
				Help:      "Duration of a task run in milliseconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total outbound coordinator requests by outcome",
			},
			[]string{"outcome"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the agent process started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.syncCyclesTotal,
		pm.taskRunsTotal,
		pm.taskRunDuration,
		pm.requestsTotal,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusSyncCycle records one sync-loop iteration.
func RecordPrometheusSyncCycle(ok bool) {
	if promMetrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	promMetrics.syncCyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordPrometheusTaskRun records one task run's outcome and duration.
func RecordPrometheusTaskRun(kind, resultCode string, durationMs int64, aborted bool) {
	if promMetrics == nil {
		return
	}
	abortedLabel := "false"
	if aborted {
		abortedLabel = "true"
	}
	promMetrics.taskRunsTotal.WithLabelValues(kind, resultCode, abortedLabel).Inc()
	promMetrics.taskRunDuration.WithLabelValues(kind).Observe(float64(durationMs))
}

// RecordPrometheusRequestEnqueued records a request queue submission.
func RecordPrometheusRequestEnqueued() {
	if promMetrics == nil {
		return
	}
	promMetrics.requestsTotal.WithLabelValues("enqueued").Inc()
}

// RecordPrometheusRequestRetry records a transient request failure.
func RecordPrometheusRequestRetry() {
	if promMetrics == nil {
		return
	}
	promMetrics.requestsTotal.WithLabelValues("retried").Inc()
}

// RecordPrometheusRequestFailure records a permanent request failure.
func RecordPrometheusRequestFailure() {
	if promMetrics == nil {
		return
	}
	promMetrics.requestsTotal.WithLabelValues("failed").Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry, for custom
// collectors registered by the caller.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
