package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mpsync"

// SyncJobMetrics records outcomes of synchronization jobs.
type SyncJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewSyncJobMetrics registers the job metrics on the provided registerer.
func NewSyncJobMetrics(reg prometheus.Registerer) *SyncJobMetrics {
	if reg == nil {
		return &SyncJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of sync jobs in seconds.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Successful sync job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Failed sync job executions by error code.",
	}, []string{"job", "code"})
	reg.MustRegister(duration, success, failure)
	return &SyncJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (m *SyncJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (m *SyncJobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job and error code.
func (m *SyncJobMetrics) IncFailure(job, code string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job), normalizeLabel(code)).Inc()
}

// ReconcileMetrics counts rows written by reconciliation.
type ReconcileMetrics struct {
	created *prometheus.CounterVec
	updated *prometheus.CounterVec
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_created_total",
		Help:      "Rows created by reconciliation.",
	}, []string{"table"})
	updated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_updated_total",
		Help:      "Rows updated by reconciliation.",
	}, []string{"table"})
	reg.MustRegister(created, updated)
	return &ReconcileMetrics{created: created, updated: updated}
}

// ObserveReconcile adds one run's counts.
func (m *ReconcileMetrics) ObserveReconcile(table string, created, updated int) {
	if m == nil || m.created == nil {
		return
	}
	table = normalizeLabel(table)
	m.created.WithLabelValues(table).Add(float64(created))
	m.updated.WithLabelValues(table).Add(float64(updated))
}

// LockMetrics counts acquisitions that timed out on a held lock.
type LockMetrics struct {
	contention *prometheus.CounterVec
}

func NewLockMetrics(reg prometheus.Registerer) *LockMetrics {
	if reg == nil {
		return &LockMetrics{}
	}
	contention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_contention_total",
		Help:      "Lock acquisitions that found the lock held.",
	}, []string{"lock"})
	reg.MustRegister(contention)
	return &LockMetrics{contention: contention}
}

// IncContention records a contended acquisition. Per-credential locks share
// one label so the series count stays bounded.
func (m *LockMetrics) IncContention(name string) {
	if m == nil || m.contention == nil {
		return
	}
	m.contention.WithLabelValues(lockKind(name)).Inc()
}

// DispatchMetrics counts tasks published and consumed.
type DispatchMetrics struct {
	enqueued *prometheus.CounterVec
	consumed *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_enqueued_total",
		Help:      "Sync tasks published.",
	}, []string{"job"})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_consumed_total",
		Help:      "Sync tasks received by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(enqueued, consumed)
	return &DispatchMetrics{enqueued: enqueued, consumed: consumed}
}

func (m *DispatchMetrics) IncEnqueued(job string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *DispatchMetrics) IncConsumed(job, outcome string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

func lockKind(name string) string {
	if kind, _, ok := strings.Cut(name, ":"); ok {
		return normalizeLabel(kind)
	}
	return normalizeLabel(name)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
