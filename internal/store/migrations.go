package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "facts: active fact store with decay metadata",
		SQL: `
CREATE TABLE facts (
    id              TEXT PRIMARY KEY,
    text            TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT 'general',
    scope           TEXT NOT NULL DEFAULT 'local',
    model           TEXT,
    embedding       TEXT,
    source_context  TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    last_accessed   INTEGER,
    access_count    INTEGER NOT NULL DEFAULT 0,
    recall_count    INTEGER NOT NULL DEFAULT 0,
    relevance       REAL NOT NULL DEFAULT 1.0,
    promoted_to     TEXT
);

CREATE INDEX idx_facts_category      ON facts(category);
CREATE INDEX idx_facts_scope         ON facts(scope);
CREATE INDEX idx_facts_model         ON facts(model);
CREATE INDEX idx_facts_relevance     ON facts(relevance DESC);
CREATE INDEX idx_facts_last_accessed ON facts(last_accessed);
`,
	},
	{
		Version:     2,
		Description: "cold_facts: archive for demoted facts",
		SQL: `
CREATE TABLE cold_facts (
    id              TEXT PRIMARY KEY,
    text            TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT 'general',
    scope           TEXT NOT NULL DEFAULT 'local',
    model           TEXT,
    embedding       TEXT,
    source_context  TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    last_accessed   INTEGER,
    access_count    INTEGER NOT NULL DEFAULT 0,
    recall_count    INTEGER NOT NULL DEFAULT 0,
    relevance       REAL NOT NULL DEFAULT 1.0,
    promoted_to     TEXT,
    archived_at     INTEGER NOT NULL,
    archive_reason  TEXT NOT NULL
);

CREATE INDEX idx_cold_facts_archived ON cold_facts(archived_at);
`,
	},
	{
		Version:     3,
		Description: "proposals: rule proposal lifecycle",
		SQL: `
CREATE TABLE proposals (
    id              TEXT PRIMARY KEY,
    rule            TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT 'pattern',
    rationale       TEXT,
    source_context  TEXT,
    status          TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
    votes           TEXT NOT NULL DEFAULT '[]',
    synced          INTEGER NOT NULL DEFAULT 0,
    remote_id       TEXT,
    created_at      INTEGER NOT NULL,
    decided_at      INTEGER
);

CREATE INDEX idx_proposals_status ON proposals(status);
CREATE INDEX idx_proposals_synced ON proposals(synced, status);
`,
	},
	{
		Version:     4,
		Description: "prd_chunks: typed requirement document fragments",
		SQL: `
CREATE TABLE prd_chunks (
    id          TEXT PRIMARY KEY,
    prd_id      TEXT NOT NULL,
    section     TEXT NOT NULL,
    content     TEXT NOT NULL,
    chunk_type  TEXT NOT NULL CHECK (chunk_type IN ('constraint', 'criteria', 'goal', 'technical', 'description', 'list')),
    embedding   TEXT,
    file_name   TEXT,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_prd_chunks_prd ON prd_chunks(prd_id);
`,
	},
	{
		Version:     5,
		Description: "sync_state: key/value coordination with the sync collaborator",
		SQL: `
CREATE TABLE sync_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     6,
		Description: "memory_metrics: append-only health snapshots",
		SQL: `
CREATE TABLE memory_metrics (
    id             INTEGER PRIMARY KEY,
    timestamp      INTEGER NOT NULL,
    total_facts    INTEGER NOT NULL,
    cold_facts     INTEGER NOT NULL,
    entropy_score  REAL NOT NULL,
    avg_relevance  REAL NOT NULL,
    never_accessed INTEGER NOT NULL,
    action_taken   TEXT NOT NULL
);

CREATE INDEX idx_metrics_timestamp ON memory_metrics(timestamp DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
