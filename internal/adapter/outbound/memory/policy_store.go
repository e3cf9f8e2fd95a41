// Package memory provides in-process implementations of the policy store
// (C7) and audit log (C8) ports, grounded on the teacher's
// internal/adapter/outbound/memory package.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// PolicyStore is a process-local policy.Store, useful for tests and for
// single-node deployments that don't need durability across restarts.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[string]policy.Policy
}

// NewPolicyStore returns an empty store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[string]policy.Policy)}
}

var _ policy.Store = (*PolicyStore)(nil)

func (s *PolicyStore) Create(_ context.Context, p policy.Policy, actor string) (policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Metadata.ID == "" {
		p.Metadata.ID = uuid.NewString()
	}
	for _, existing := range s.policies {
		if existing.Metadata.Namespace == p.Metadata.Namespace &&
			existing.Metadata.Name == p.Metadata.Name &&
			existing.Metadata.Version == p.Metadata.Version {
			return policy.Policy{}, apperr.New(apperr.KindConflict, "policy with same namespace/name/version already exists")
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.CreatedBy = actor
	s.policies[p.Metadata.ID] = copyPolicy(p)
	return copyPolicy(p), nil
}

func (s *PolicyStore) FindByID(_ context.Context, id string) (policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return policy.Policy{}, apperr.New(apperr.KindNotFound, "policy not found: "+id)
	}
	return copyPolicy(p), nil
}

func (s *PolicyStore) FindActive(_ context.Context) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []policy.Policy
	for _, p := range s.policies {
		if p.Status == policy.StatusActive {
			out = append(out, copyPolicy(p))
		}
	}
	sortByPriorityThenCreation(out)
	return out, nil
}

func (s *PolicyStore) FindByNamespace(_ context.Context, namespace string, filter policy.ListFilter) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []policy.Policy
	for _, p := range s.policies {
		if p.Metadata.Namespace != namespace {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, copyPolicy(p))
	}
	sortByPriorityThenCreation(out)

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *PolicyStore) Update(_ context.Context, id string, patch policy.Update) (policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok {
		return policy.Policy{}, apperr.New(apperr.KindNotFound, "policy not found: "+id)
	}

	if patch.Metadata.Name != nil {
		p.Metadata.Name = *patch.Metadata.Name
	}
	if patch.Metadata.Description != nil {
		p.Metadata.Description = *patch.Metadata.Description
	}
	if patch.Metadata.Tags != nil {
		p.Metadata.Tags = patch.Metadata.Tags
	}
	if patch.Metadata.Priority != nil {
		p.Metadata.Priority = *patch.Metadata.Priority
	}
	if patch.RulesProvided {
		p.Rules = patch.Rules
	}
	if patch.StatusProvided {
		p.Status = patch.Status
	}

	s.policies[id] = copyPolicy(p)
	return copyPolicy(p), nil
}

func (s *PolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return apperr.New(apperr.KindNotFound, "policy not found: "+id)
	}
	delete(s.policies, id)
	return nil
}

func sortByPriorityThenCreation(policies []policy.Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Metadata.Priority != policies[j].Metadata.Priority {
			return policies[i].Metadata.Priority > policies[j].Metadata.Priority
		}
		return policies[i].CreatedAt.After(policies[j].CreatedAt)
	})
}

// copyPolicy deep-copies the mutable subtrees (Tags, Rules) so callers
// can't mutate store-internal state through a returned value.
func copyPolicy(p policy.Policy) policy.Policy {
	out := p
	if p.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string(nil), p.Metadata.Tags...)
	}
	if p.Rules != nil {
		out.Rules = append([]policy.Rule(nil), p.Rules...)
	}
	return out
}
