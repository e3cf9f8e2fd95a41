package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/audit"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// AuditStore is a process-local, bounded ring-buffer implementation of the
// audit log port (C8), grounded on the teacher's
// internal/adapter/outbound/memory/audit_store.go.
type AuditStore struct {
	mu       sync.Mutex
	capacity int
	records  []audit.Record
}

const defaultAuditCapacity = 100000

// NewAuditStore returns an empty store bounded to capacity records (0 uses
// the default).
func NewAuditStore(capacity int) *AuditStore {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &AuditStore{capacity: capacity}
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Log(_ context.Context, rec audit.Record) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Context = audit.RedactSensitiveContext(rec.Context)

	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		s.records = s.records[len(s.records)-s.capacity:]
	}
	return rec, nil
}

func (s *AuditStore) FindByRequestID(_ context.Context, requestID string) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].RequestID == requestID {
			return s.records[i], nil
		}
	}
	return audit.Record{}, apperr.New(apperr.KindNotFound, "audit record not found for request: "+requestID)
}

func (s *AuditStore) Find(_ context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audit.Record
	for _, r := range s.records {
		if !matchesFilter(r, filter) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(r audit.Record, filter audit.Filter) bool {
	if len(filter.PolicyIDs) > 0 && !overlaps(r.PolicyIDs, filter.PolicyIDs) {
		return false
	}
	if filter.Decision != nil && r.Decision != *filter.Decision {
		return false
	}
	if filter.Allowed != nil && r.Allowed != *filter.Allowed {
		return false
	}
	if filter.StartDate != nil && r.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && r.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	for _, id := range a {
		if set[id] {
			return true
		}
	}
	return false
}

func (s *AuditStore) FindByPolicyID(_ context.Context, policyID string, limit, offset int) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audit.Record
	for _, r := range s.records {
		for _, id := range r.MatchedPolicyIDs {
			if id == policyID {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *AuditStore) GetStats(_ context.Context, start, end *time.Time) (audit.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := audit.Stats{ByDecision: make(map[policy.Decision]int64)}
	var totalTimeMs float64
	var cacheHits int64

	for _, r := range s.records {
		if start != nil && r.CreatedAt.Before(*start) {
			continue
		}
		if end != nil && r.CreatedAt.After(*end) {
			continue
		}
		stats.Total++
		stats.ByDecision[r.Decision]++
		totalTimeMs += r.EvaluationTimeMs
		if r.Cached {
			cacheHits++
		}
	}

	if stats.Total > 0 {
		stats.AvgEvaluationTimeMs = totalTimeMs / float64(stats.Total)
		stats.CacheHitRate = float64(cacheHits) / float64(stats.Total)
	}
	return stats, nil
}

func (s *AuditStore) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var kept []audit.Record
	var deleted int64
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}
