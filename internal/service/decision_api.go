package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/ctxkey"
	"github.com/sentinelpdp/policy-engine/internal/domain/audit"
	domaincache "github.com/sentinelpdp/policy-engine/internal/domain/cache"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
	"github.com/sentinelpdp/policy-engine/internal/metrics"
	"github.com/sentinelpdp/policy-engine/internal/telemetry"
	cacheadapter "github.com/sentinelpdp/policy-engine/internal/adapter/outbound/cache"
)

// loggerFromContext returns the request-scoped logger stashed by Evaluate,
// falling back to fallback when ctx carries none (e.g. BatchEvaluate
// sub-calls or calls from outside this package).
func loggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

// maxBatchSize bounds BatchEvaluate (spec 4.8 "design limit: 100").
const maxBatchSize = 100

// DecisionAPI is the only surface the engine exposes upstream (C9): input
// shaping, cache fingerprinting/eligibility, and writing the audit log
// unless the request is a dry run.
type DecisionAPI struct {
	engine policy.Engine
	cache  domaincache.Cache
	audit  audit.Store
	logger *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewDecisionAPI wires an engine, cache, and audit store into the request
// surface. cache may be nil (treated as always-miss); audit may be nil (no
// writes attempted).
func NewDecisionAPI(engine policy.Engine, cache domaincache.Cache, auditStore audit.Store, logger *slog.Logger) *DecisionAPI {
	return &DecisionAPI{engine: engine, cache: cache, audit: auditStore, logger: logger}
}

// WithMetrics attaches a metrics recorder; nil is a valid no-op recorder.
func (d *DecisionAPI) WithMetrics(m *metrics.Metrics) *DecisionAPI {
	d.metrics = m
	return d
}

// WithTracer attaches a tracer used to span each Evaluate call; nil leaves
// tracing disabled.
func (d *DecisionAPI) WithTracer(tracer trace.Tracer) *DecisionAPI {
	d.tracer = tracer
	return d
}

// Evaluate runs a single request through cache lookup, engine evaluation on
// miss, a cache write on success, and an audit write unless DryRun.
func (d *DecisionAPI) Evaluate(ctx context.Context, req policy.EvaluationRequest) (result policy.EvaluationResult, err error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, d.logger.With("request_id", req.RequestID))

	if d.tracer != nil {
		var span trace.Span
		ctx, span = telemetry.StartEvaluationSpan(ctx, d.tracer, req.RequestID)
		defer span.End()
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}()
	}

	eligible := req.UseCache && !req.Trace && !req.DryRun && d.cache != nil
	var cacheKey string
	if eligible {
		cacheKey = cacheadapter.EvaluationKey(req.Context, req.Policies)
		if cached, ok, getErr := d.cache.Get(ctx, cacheKey); getErr == nil && ok {
			var cachedResult policy.EvaluationResult
			if unmarshalErr := json.Unmarshal(cached, &cachedResult); unmarshalErr == nil {
				cachedResult.Cached = true
				d.metrics.RecordCacheResult("evaluation", true)
				return cachedResult, nil
			}
		}
		d.metrics.RecordCacheResult("evaluation", false)
	}

	start := time.Now()
	if req.DryRun {
		result, err = d.engine.Simulate(ctx, req)
	} else {
		result, err = d.engine.Evaluate(ctx, req)
	}
	if err != nil {
		return policy.EvaluationResult{}, err
	}
	d.metrics.RecordEvaluation(string(result.Decision), time.Since(start).Seconds())

	if eligible {
		if encoded, marshalErr := json.Marshal(result); marshalErr == nil {
			if setErr := d.cache.Set(ctx, cacheKey, encoded, 0); setErr != nil {
				loggerFromContext(ctx, d.logger).Warn("cache write failed", "error", setErr)
			}
		}
	}

	if !req.DryRun {
		d.writeAudit(ctx, req, result)
	}

	return result, nil
}

// writeAudit logs the evaluation. Per spec 4.7 "writes must not block the
// evaluation reply path longer than necessary", the write is fired in its
// own goroutine with a fresh background context and a 5s timeout; the
// caller's context values and cancellation are not carried over.
func (d *DecisionAPI) writeAudit(ctx context.Context, req policy.EvaluationRequest, result policy.EvaluationResult) {
	if d.audit == nil {
		return
	}
	logger := loggerFromContext(ctx, d.logger)
	rec := audit.Record{
		RequestID:        req.RequestID,
		PolicyIDs:        req.Policies,
		MatchedPolicyIDs: result.MatchedPolicies,
		MatchedRuleIDs:   result.MatchedRules,
		Decision:         result.Decision,
		Allowed:          result.Allowed,
		Reason:           result.Reason,
		Context:          req.Context,
		Modifications:    result.Modifications,
		EvaluationTimeMs: result.EvaluationTimeMs,
		Trace:            result.Trace,
		Cached:           result.Cached,
		UserID:           req.UserID,
		TeamID:           req.TeamID,
		ProjectID:        req.ProjectID,
	}
	go func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := d.audit.Log(auditCtx, rec)
		d.metrics.RecordAuditWrite(err)
		if err != nil {
			logger.Error("audit write failed", "error", err)
		}
	}()
}

// BatchEvaluate evaluates each request independently and concurrently.
// Results are positional (out[i] corresponds to reqs[i]); requests within a
// batch are not required to share results with one another.
func (d *DecisionAPI) BatchEvaluate(ctx context.Context, reqs []policy.EvaluationRequest) ([]policy.EvaluationResult, error) {
	if len(reqs) > maxBatchSize {
		return nil, apperr.New(apperr.KindValidation, "batch size exceeds maximum of 100")
	}

	results := make([]policy.EvaluationResult, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req policy.EvaluationRequest) {
			defer wg.Done()
			result, err := d.Evaluate(ctx, req)
			results[i] = result
			errs[i] = err
		}(i, req)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// FindEvaluationByRequestID delegates to C8.
func (d *DecisionAPI) FindEvaluationByRequestID(ctx context.Context, requestID string) (audit.Record, error) {
	return d.audit.FindByRequestID(ctx, requestID)
}

// FindEvaluations delegates to C8.
func (d *DecisionAPI) FindEvaluations(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	return d.audit.Find(ctx, filter)
}

// EvaluationStats delegates to C8.
func (d *DecisionAPI) EvaluationStats(ctx context.Context, start, end *time.Time) (audit.Stats, error) {
	return d.audit.GetStats(ctx, start, end)
}
