package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEvaluationIncrementsDecisionCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordEvaluation("deny", 0.01)

	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("deny")); got != 1 {
		t.Fatalf("EvaluationsTotal = %v, want 1", got)
	}
}

func TestRecordCacheResultSplitsHitsAndMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCacheResult("local", true)
	m.RecordCacheResult("local", false)
	m.RecordCacheResult("local", false)

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("local")); got != 1 {
		t.Fatalf("CacheHitsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("local")); got != 2 {
		t.Fatalf("CacheMissesTotal = %v, want 2", got)
	}
}

func TestRecordAuditWriteTracksErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAuditWrite(nil)
	m.RecordAuditWrite(errors.New("boom"))

	if got := testutil.ToFloat64(m.AuditWritesTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("AuditWritesTotal{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuditWriteErrors); got != 1 {
		t.Fatalf("AuditWriteErrors = %v, want 1", got)
	}
}

func TestNilMetricsIsANoop(t *testing.T) {
	var m *Metrics
	m.RecordEvaluation("allow", 0.001)
	m.RecordCacheResult("local", true)
	m.RecordAuditWrite(nil)
	m.SetActivePolicies(3)
}
