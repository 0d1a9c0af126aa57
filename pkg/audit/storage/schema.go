package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the execution record tables.
const Schema = `
CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,

    rule_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    rule_version INTEGER NOT NULL,

    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    tenant_id TEXT,

    triggered BOOLEAN NOT NULL,
    conditions_passed BOOLEAN NOT NULL,
    actions_executed BOOLEAN NOT NULL,
    action_count INTEGER NOT NULL,

    error TEXT,

    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL,

    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_executions_rule_id ON executions(rule_id);
CREATE INDEX IF NOT EXISTS idx_executions_entity ON executions(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);

CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER PRIMARY KEY
);
`
