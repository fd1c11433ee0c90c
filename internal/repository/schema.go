package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.
// Timestamps are stored as unix nanoseconds so range scans and the
// first/last-seen comparisons behave the same on both engines.
// Amounts are NUMERIC on PostgreSQL and TEXT on SQLite, where NUMERIC
// values degrade to 64-bit floats. The %[1]s verb is the amount type.

import "fmt"

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    from_party TEXT NOT NULL,
    to_party TEXT NOT NULL,
    amount %[1]s NOT NULL,
    currency TEXT NOT NULL DEFAULT '',
    occurred_at BIGINT NOT NULL,
    created_at BIGINT NOT NULL,
    origin_country TEXT NOT NULL DEFAULT '',
    dest_country TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_party, occurred_at);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_party, occurred_at);
`

// Scorecards are append-only: a re-analysis inserts a new row.
const schemaScorecards = `
CREATE TABLE IF NOT EXISTS scorecards (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    policy_score INTEGER NOT NULL,
    advisory_score DOUBLE PRECISION NOT NULL,
    final_score INTEGER NOT NULL,
    strategy TEXT NOT NULL,
    tier TEXT NOT NULL,
    mandatory_flags TEXT NOT NULL,
    triggered_rules TEXT NOT NULL,
    due_by BIGINT,
    rationale TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scorecards_tx ON scorecards(transaction_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scorecards_tier ON scorecards(tier);
`

const schemaGraph = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    party_id TEXT PRIMARY KEY,
    total_volume %[1]s NOT NULL,
    transaction_count BIGINT NOT NULL,
    first_seen BIGINT NOT NULL,
    last_seen BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_edges (
    from_party TEXT NOT NULL,
    to_party TEXT NOT NULL,
    total_amount %[1]s NOT NULL,
    transaction_count BIGINT NOT NULL,
    first_transaction BIGINT NOT NULL,
    last_transaction BIGINT NOT NULL,
    PRIMARY KEY (from_party, to_party)
);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS party_profiles (
    party_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    occupation TEXT NOT NULL DEFAULT '',
    income_bracket TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    pep INTEGER NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL
);
`

const schemaRuleDefinitions = `
CREATE TABLE IF NOT EXISTS rule_definitions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    weight INTEGER NOT NULL,
    severity TEXT NOT NULL,
    mandatory INTEGER NOT NULL DEFAULT 0,
    time_critical INTEGER NOT NULL DEFAULT 0,
    indicator TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
`

// AllSchemas returns all schema statements for driver in order.
func AllSchemas(driver string) []string {
	amount := "TEXT"
	if driver == "postgres" {
		amount = "NUMERIC"
	}
	return []string{
		fmt.Sprintf(schemaTransactions, amount),
		schemaScorecards,
		fmt.Sprintf(schemaGraph, amount),
		schemaProfiles,
		schemaRuleDefinitions,
	}
}
