// Package metrics exposes the Prometheus metrics the decision API and
// engine record against, grounded on the teacher's HTTP transport metrics
// but rebuilt around the policy-decision surface: evaluations, cache
// tiers, and audit writes rather than proxied MCP requests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the engine/decision API record
// against. Pass the same instance to every component that needs it.
type Metrics struct {
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration   prometheus.Histogram
	EvaluationsInFlight  prometheus.Gauge
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	AuditWritesTotal     *prometheus.CounterVec
	AuditWriteErrors     prometheus.Counter
	ActivePolicies       prometheus.Gauge
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policy_engine",
				Name:      "evaluations_total",
				Help:      "Total policy evaluations by final decision",
			},
			[]string{"decision"}, // allow/deny/modify/warn
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "policy_engine",
				Name:      "evaluation_duration_seconds",
				Help:      "Evaluation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		EvaluationsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "policy_engine",
				Name:      "evaluations_in_flight",
				Help:      "Evaluations currently being processed",
			},
		),
		CacheHitsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policy_engine",
				Name:      "cache_hits_total",
				Help:      "Evaluation cache hits by tier",
			},
			[]string{"tier"}, // caller-chosen name; DecisionAPI records "evaluation"
		),
		CacheMissesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policy_engine",
				Name:      "cache_misses_total",
				Help:      "Evaluation cache misses by tier",
			},
			[]string{"tier"},
		),
		AuditWritesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policy_engine",
				Name:      "audit_writes_total",
				Help:      "Audit records written, by outcome",
			},
			[]string{"outcome"}, // ok/error
		),
		AuditWriteErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "policy_engine",
				Name:      "audit_write_errors_total",
				Help:      "Audit writes that failed after the evaluation reply was sent",
			},
		),
		ActivePolicies: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "policy_engine",
				Name:      "active_policies",
				Help:      "Number of policies currently in the engine's active view",
			},
		),
	}
}

// RecordEvaluation records one completed evaluation's decision and latency.
func (m *Metrics) RecordEvaluation(decision string, seconds float64) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(decision).Inc()
	m.EvaluationDuration.Observe(seconds)
}

// RecordCacheResult records a cache lookup outcome for the given tier.
func (m *Metrics) RecordCacheResult(tier string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(tier).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(tier).Inc()
}

// SetActivePolicies reports the current size of the engine's active-policy
// view.
func (m *Metrics) SetActivePolicies(n int) {
	if m == nil {
		return
	}
	m.ActivePolicies.Set(float64(n))
}

// RecordAuditWrite records the outcome of an audit log write.
func (m *Metrics) RecordAuditWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AuditWritesTotal.WithLabelValues("error").Inc()
		m.AuditWriteErrors.Inc()
		return
	}
	m.AuditWritesTotal.WithLabelValues("ok").Inc()
}
