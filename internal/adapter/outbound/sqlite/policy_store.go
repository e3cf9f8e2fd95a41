package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// PolicyStore is the durable policy.Store (C7), backed by the `policies`
// table of spec section 6's normative schema.
type PolicyStore struct {
	db *sql.DB
}

// NewPolicyStore wraps an already-opened database (see Open).
func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

var _ policy.Store = (*PolicyStore)(nil)

func (s *PolicyStore) Create(ctx context.Context, p policy.Policy, actor string) (policy.Policy, error) {
	if p.Metadata.ID == "" {
		p.Metadata.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.CreatedBy = actor

	tags, err := json.Marshal(nonNilTags(p.Metadata.Tags))
	if err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "marshal tags", err)
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "marshal rules", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, description, version, namespace, tags, priority, status, rules, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Metadata.ID, p.Metadata.Name, p.Metadata.Description, p.Metadata.Version, p.Metadata.Namespace,
		string(tags), p.Metadata.Priority, string(p.Status), string(rules), p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return policy.Policy{}, apperr.Wrap(apperr.KindConflict, "policy with same namespace/name/version already exists", err)
		}
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "insert policy", err)
	}
	return p, nil
}

func (s *PolicyStore) FindByID(ctx context.Context, id string) (policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, version, namespace, tags, priority, status, rules, created_by, created_at, updated_at
		FROM policies WHERE id = ?`, id)
	return scanPolicy(row)
}

func (s *PolicyStore) FindActive(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, version, namespace, tags, priority, status, rules, created_by, created_at, updated_at
		FROM policies WHERE status = 'active'
		ORDER BY priority DESC, created_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "query active policies", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (s *PolicyStore) FindByNamespace(ctx context.Context, namespace string, filter policy.ListFilter) ([]policy.Policy, error) {
	query := `
		SELECT id, name, description, version, namespace, tags, priority, status, rules, created_by, created_at, updated_at
		FROM policies WHERE namespace = ?`
	args := []any{namespace}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY priority DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "query policies by namespace", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (s *PolicyStore) Update(ctx context.Context, id string, patch policy.Update) (policy.Policy, error) {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return policy.Policy{}, err
	}

	if patch.Metadata.Name != nil {
		existing.Metadata.Name = *patch.Metadata.Name
	}
	if patch.Metadata.Description != nil {
		existing.Metadata.Description = *patch.Metadata.Description
	}
	if patch.Metadata.Tags != nil {
		existing.Metadata.Tags = patch.Metadata.Tags
	}
	if patch.Metadata.Priority != nil {
		existing.Metadata.Priority = *patch.Metadata.Priority
	}
	if patch.RulesProvided {
		existing.Rules = patch.Rules
	}
	if patch.StatusProvided {
		existing.Status = patch.Status
	}
	existing.UpdatedAt = time.Now().UTC()

	tags, err := json.Marshal(nonNilTags(existing.Metadata.Tags))
	if err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "marshal tags", err)
	}
	rules, err := json.Marshal(existing.Rules)
	if err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "marshal rules", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE policies SET name=?, description=?, tags=?, priority=?, status=?, rules=?, updated_at=?
		WHERE id=?`,
		existing.Metadata.Name, existing.Metadata.Description, string(tags), existing.Metadata.Priority,
		string(existing.Status), string(rules), existing.UpdatedAt, id,
	)
	if err != nil {
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "update policy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.Policy{}, apperr.New(apperr.KindNotFound, "policy not found: "+id)
	}
	return existing, nil
}

func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "delete policy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "policy not found: "+id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (policy.Policy, error) {
	var p policy.Policy
	var tags, rules, status, description, createdBy sql.NullString

	err := row.Scan(&p.Metadata.ID, &p.Metadata.Name, &description, &p.Metadata.Version, &p.Metadata.Namespace,
		&tags, &p.Metadata.Priority, &status, &rules, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Policy{}, apperr.New(apperr.KindNotFound, "policy not found")
		}
		return policy.Policy{}, apperr.Wrap(apperr.KindStore, "scan policy", err)
	}

	p.Metadata.Description = description.String
	p.CreatedBy = createdBy.String
	p.Status = policy.Status(status.String)

	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &p.Metadata.Tags); err != nil {
			return policy.Policy{}, apperr.Wrap(apperr.KindStore, "unmarshal tags", err)
		}
	}
	if rules.Valid {
		if err := json.Unmarshal([]byte(rules.String), &p.Rules); err != nil {
			return policy.Policy{}, apperr.Wrap(apperr.KindStore, "unmarshal rules", err)
		}
	}
	return p, nil
}

func scanPolicies(rows *sql.Rows) ([]policy.Policy, error) {
	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "iterate policies", err)
	}
	return out, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
