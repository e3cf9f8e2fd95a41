package audit

import (
	"context"
	"time"

	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// Filter narrows Find's results (spec 4.7 "find(filters)").
type Filter struct {
	PolicyIDs []string // array-overlaps semantics
	Decision  *policy.Decision
	Allowed   *bool
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Stats is the aggregate returned by GetStats.
type Stats struct {
	Total               int64
	ByDecision          map[policy.Decision]int64
	AvgEvaluationTimeMs float64
	CacheHitRate        float64
}

// Store is the append-only audit log port (C8). Writes must not block the
// evaluation reply path longer than necessary — the caller may
// fire-and-forget Log.
type Store interface {
	Log(ctx context.Context, rec Record) (Record, error)
	FindByRequestID(ctx context.Context, requestID string) (Record, error)
	Find(ctx context.Context, filter Filter) ([]Record, error)
	FindByPolicyID(ctx context.Context, policyID string, limit, offset int) ([]Record, error)
	GetStats(ctx context.Context, start, end *time.Time) (Stats, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}
