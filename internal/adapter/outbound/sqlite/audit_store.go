package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpdp/policy-engine/internal/apperr"
	"github.com/sentinelpdp/policy-engine/internal/domain/audit"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
)

// AuditStore is the durable audit.Store (C8), backed by the
// `policy_evaluations` table of spec section 6's normative schema.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Log(ctx context.Context, rec audit.Record) (audit.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Context = audit.RedactSensitiveContext(rec.Context)

	policyIDs, _ := json.Marshal(nonNilStrings(rec.PolicyIDs))
	matchedPolicyIDs, _ := json.Marshal(nonNilStrings(rec.MatchedPolicyIDs))
	matchedRuleIDs, _ := json.Marshal(nonNilStrings(rec.MatchedRuleIDs))
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return audit.Record{}, apperr.Wrap(apperr.KindStore, "marshal audit context", err)
	}
	modsJSON, _ := json.Marshal(nonNilMap(rec.Modifications))
	traceJSON, _ := json.Marshal(rec.Trace)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_evaluations
			(id, request_id, policy_ids, matched_policy_ids, matched_rule_ids, decision, allowed, reason,
			 context, modifications, evaluation_time_ms, trace, cached, created_at, user_id, team_id, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, string(policyIDs), string(matchedPolicyIDs), string(matchedRuleIDs),
		string(rec.Decision), boolToInt(rec.Allowed), rec.Reason, string(ctxJSON), string(modsJSON),
		rec.EvaluationTimeMs, string(traceJSON), boolToInt(rec.Cached), rec.CreatedAt,
		rec.UserID, rec.TeamID, rec.ProjectID,
	)
	if err != nil {
		return audit.Record{}, apperr.Wrap(apperr.KindStore, "insert audit record", err)
	}
	return rec, nil
}

func (s *AuditStore) FindByRequestID(ctx context.Context, requestID string) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE request_id = ? ORDER BY created_at DESC LIMIT 1`, requestID)
	rec, err := scanAuditRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, apperr.New(apperr.KindNotFound, "audit record not found for request: "+requestID)
	}
	return rec, err
}

func (s *AuditStore) Find(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any

	if filter.Decision != nil {
		query += " AND decision = ?"
		args = append(args, string(*filter.Decision))
	}
	if filter.Allowed != nil {
		query += " AND allowed = ?"
		args = append(args, boolToInt(*filter.Allowed))
	}
	if filter.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND created_at <= ?"
		args = append(args, *filter.EndDate)
	}
	query += " ORDER BY created_at DESC"
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
		return nil, apperr.Wrap(apperr.KindStore, "query audit records", err)
	}
	defer rows.Close()

	out, err := scanAuditRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(filter.PolicyIDs) > 0 {
		out = filterByPolicyOverlap(out, filter.PolicyIDs)
	}
	return out, nil
}

func (s *AuditStore) FindByPolicyID(ctx context.Context, policyID string, limit, offset int) ([]audit.Record, error) {
	query := selectColumns + " WHERE matched_policy_ids LIKE ? ORDER BY created_at DESC"
	args := []any{"%\"" + policyID + "\"%"}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "query audit records by policy", err)
	}
	defer rows.Close()
	return scanAuditRecords(rows)
}

func (s *AuditStore) GetStats(ctx context.Context, start, end *time.Time) (audit.Stats, error) {
	query := `SELECT decision, evaluation_time_ms, cached FROM policy_evaluations WHERE 1=1`
	var args []any
	if start != nil {
		query += " AND created_at >= ?"
		args = append(args, *start)
	}
	if end != nil {
		query += " AND created_at <= ?"
		args = append(args, *end)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Stats{}, apperr.Wrap(apperr.KindStore, "query audit stats", err)
	}
	defer rows.Close()

	stats := audit.Stats{ByDecision: make(map[policy.Decision]int64)}
	var totalTimeMs float64
	var cacheHits int64
	for rows.Next() {
		var decision string
		var evalMs float64
		var cached int
		if err := rows.Scan(&decision, &evalMs, &cached); err != nil {
			return audit.Stats{}, apperr.Wrap(apperr.KindStore, "scan audit stats row", err)
		}
		stats.Total++
		stats.ByDecision[policy.Decision(decision)]++
		totalTimeMs += evalMs
		if cached != 0 {
			cacheHits++
		}
	}
	if err := rows.Err(); err != nil {
		return audit.Stats{}, apperr.Wrap(apperr.KindStore, "iterate audit stats", err)
	}
	if stats.Total > 0 {
		stats.AvgEvaluationTimeMs = totalTimeMs / float64(stats.Total)
		stats.CacheHitRate = float64(cacheHits) / float64(stats.Total)
	}
	return stats, nil
}

func (s *AuditStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM policy_evaluations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "delete old audit records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "rows affected", err)
	}
	return n, nil
}

const selectColumns = `
	SELECT id, request_id, policy_ids, matched_policy_ids, matched_rule_ids, decision, allowed, reason,
	       context, modifications, evaluation_time_ms, trace, cached, created_at, user_id, team_id, project_id
	FROM policy_evaluations`

func scanAuditRecord(row rowScanner) (audit.Record, error) {
	var rec audit.Record
	var policyIDs, matchedPolicyIDs, matchedRuleIDs, ctxJSON, modsJSON, traceJSON string
	var reason, userID, teamID, projectID sql.NullString
	var allowed, cached int
	var decision string

	err := row.Scan(&rec.ID, &rec.RequestID, &policyIDs, &matchedPolicyIDs, &matchedRuleIDs, &decision,
		&allowed, &reason, &ctxJSON, &modsJSON, &rec.EvaluationTimeMs, &traceJSON, &cached, &rec.CreatedAt,
		&userID, &teamID, &projectID)
	if err != nil {
		return audit.Record{}, err
	}

	rec.Decision = policy.Decision(decision)
	rec.Allowed = allowed != 0
	rec.Cached = cached != 0
	rec.Reason = reason.String
	rec.UserID, rec.TeamID, rec.ProjectID = userID.String, teamID.String, projectID.String

	_ = json.Unmarshal([]byte(policyIDs), &rec.PolicyIDs)
	_ = json.Unmarshal([]byte(matchedPolicyIDs), &rec.MatchedPolicyIDs)
	_ = json.Unmarshal([]byte(matchedRuleIDs), &rec.MatchedRuleIDs)
	_ = json.Unmarshal([]byte(ctxJSON), &rec.Context)
	_ = json.Unmarshal([]byte(modsJSON), &rec.Modifications)
	if traceJSON != "" {
		_ = json.Unmarshal([]byte(traceJSON), &rec.Trace)
	}
	return rec, nil
}

func scanAuditRecords(rows *sql.Rows) ([]audit.Record, error) {
	var out []audit.Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, "scan audit record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "iterate audit records", err)
	}
	return out, nil
}

func filterByPolicyOverlap(records []audit.Record, policyIDs []string) []audit.Record {
	want := make(map[string]bool, len(policyIDs))
	for _, id := range policyIDs {
		want[id] = true
	}
	var out []audit.Record
	for _, r := range records {
		for _, id := range r.PolicyIDs {
			if want[id] {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilMap(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
