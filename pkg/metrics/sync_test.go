package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSyncJobMetrics(reg)
	job := "update_orders"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job, "RATE_LIMITED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "mpsync_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "mpsync_job_failure_total", "code", "RATE_LIMITED"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "mpsync_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestReconcileMetricsAccumulateByTable(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewReconcileMetrics(reg)
	metrics.ObserveReconcile("transactions", 3, 1)
	metrics.ObserveReconcile("transactions", 2, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "mpsync_rows_created_total", "table", "transactions"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 5 {
		t.Fatalf("expected created=5, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "mpsync_rows_updated_total", "table", "transactions"); err != nil {
		t.Fatalf("fetch updated: %v", err)
	} else if got != 1 {
		t.Fatalf("expected updated=1, got %f", got)
	}
}

func TestLockMetricsGroupCredentialLocks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLockMetrics(reg)
	metrics.IncContention("credential:12")
	metrics.IncContention("credential:40")
	metrics.IncContention("cron")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "mpsync_lock_contention_total", "lock", "credential"); err != nil {
		t.Fatalf("fetch contention: %v", err)
	} else if got != 2 {
		t.Fatalf("expected contention=2, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewSyncJobMetrics(nil).IncFailure("job", "")
	NewReconcileMetrics(nil).ObserveReconcile("t", 1, 1)
	NewLockMetrics(nil).IncContention("x")
	NewDispatchMetrics(nil).IncEnqueued("job")
	var nilMetrics *SyncJobMetrics
	nilMetrics.IncSuccess("job")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
