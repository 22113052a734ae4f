// Package metrics collects and exposes task-runner observability data.
//
// Two metric stores coexist: an in-process atomic-counter Metrics
// struct for a lightweight JSON status endpoint, and a Prometheus
// registry (prometheus.go) for scraping by external monitoring.
//
// # Invariants
//
//   - TaskRunsStarted >= TaskRunsOK + TaskRunsWarning + TaskRunsError.
//   - SyncCyclesTotal == SyncCyclesOK + SyncCyclesFailed.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics collects process-wide counters for the agent's sync loop,
// task runs, and request queue.
type Metrics struct {
	SyncCyclesTotal  atomic.Int64
	SyncCyclesOK     atomic.Int64
	SyncCyclesFailed atomic.Int64

	TaskRunsStarted atomic.Int64
	TaskRunsOK      atomic.Int64
	TaskRunsWarning atomic.Int64
	TaskRunsError   atomic.Int64
	TaskRunsAborted atomic.Int64

	RequestsEnqueued atomic.Int64
	RequestsRetried  atomic.Int64
	RequestsFailed   atomic.Int64

	startTime time.Time
}

var global = &Metrics{startTime: time.Now()}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordSyncCycle records one completed sync-loop iteration.
func (m *Metrics) RecordSyncCycle(ok bool) {
	m.SyncCyclesTotal.Add(1)
	if ok {
		m.SyncCyclesOK.Add(1)
	} else {
		m.SyncCyclesFailed.Add(1)
	}
	RecordPrometheusSyncCycle(ok)
}

// RecordTaskRun records one task run's outcome.
func (m *Metrics) RecordTaskRun(kind, resultCode string, durationMs int64, aborted bool) {
	m.TaskRunsStarted.Add(1)
	switch resultCode {
	case "ok":
		m.TaskRunsOK.Add(1)
	case "warning":
		m.TaskRunsWarning.Add(1)
	case "error":
		m.TaskRunsError.Add(1)
	}
	if aborted {
		m.TaskRunsAborted.Add(1)
	}
	RecordPrometheusTaskRun(kind, resultCode, durationMs, aborted)
}

// RecordRequestEnqueued records a request queue submission.
func (m *Metrics) RecordRequestEnqueued() {
	m.RequestsEnqueued.Add(1)
	RecordPrometheusRequestEnqueued()
}

// RecordRequestRetry records a transient failure that the request queue
// retries.
func (m *Metrics) RecordRequestRetry() {
	m.RequestsRetried.Add(1)
	RecordPrometheusRequestRetry()
}

// RecordRequestFailure records a request the queue gave up on
// permanently.
func (m *Metrics) RecordRequestFailure() {
	m.RequestsFailed.Add(1)
	RecordPrometheusRequestFailure()
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"sync": map[string]interface{}{
			"total":  m.SyncCyclesTotal.Load(),
			"ok":     m.SyncCyclesOK.Load(),
			"failed": m.SyncCyclesFailed.Load(),
		},
		"task_runs": map[string]interface{}{
			"started": m.TaskRunsStarted.Load(),
			"ok":      m.TaskRunsOK.Load(),
			"warning": m.TaskRunsWarning.Load(),
			"error":   m.TaskRunsError.Load(),
			"aborted": m.TaskRunsAborted.Load(),
		},
		"requests": map[string]interface{}{
			"enqueued": m.RequestsEnqueued.Load(),
			"retried":  m.RequestsRetried.Load(),
			"failed":   m.RequestsFailed.Load(),
		},
	}
}

// JSONHandler returns an HTTP handler that exposes the snapshot as JSON.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}
