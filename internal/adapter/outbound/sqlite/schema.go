// Package sqlite provides the durable policy store (C7) and audit log (C8)
// implementations, backed by modernc.org/sqlite (pure Go, no cgo) against
// the normative schema in spec section 6. SQLite has no native array/jsonb
// types, so tags/rules/context/trace are stored as JSON text columns. The
// array queries are answered by LIKE matching on those text columns or by
// filtering in Go after the query; there are no inverted indices.
package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	version TEXT NOT NULL,
	namespace TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	priority INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('active','draft','deprecated')),
	rules TEXT NOT NULL DEFAULT '[]',
	created_by TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(namespace, name, version)
);
CREATE INDEX IF NOT EXISTS idx_policies_namespace ON policies(namespace);
CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(status);
CREATE INDEX IF NOT EXISTS idx_policies_priority ON policies(priority DESC);
CREATE INDEX IF NOT EXISTS idx_policies_created_at ON policies(created_at DESC);

CREATE TABLE IF NOT EXISTS policy_evaluations (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	policy_ids TEXT NOT NULL DEFAULT '[]',
	matched_policy_ids TEXT NOT NULL DEFAULT '[]',
	matched_rule_ids TEXT NOT NULL DEFAULT '[]',
	decision TEXT NOT NULL CHECK(decision IN ('allow','deny','warn','modify')),
	allowed INTEGER NOT NULL,
	reason TEXT,
	context TEXT NOT NULL DEFAULT '{}',
	modifications TEXT NOT NULL DEFAULT '{}',
	evaluation_time_ms REAL NOT NULL DEFAULT 0,
	trace TEXT,
	cached INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	user_id TEXT,
	team_id TEXT,
	project_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_evaluations_request_id ON policy_evaluations(request_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON policy_evaluations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON policy_evaluations(decision);
CREATE INDEX IF NOT EXISTS idx_evaluations_user_id ON policy_evaluations(user_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_team_id ON policy_evaluations(team_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_project_id ON policy_evaluations(project_id);
`
