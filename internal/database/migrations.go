package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    title TEXT NOT NULL,
    author TEXT,
    upvote_count INTEGER DEFAULT 0,
    comment_count INTEGER DEFAULT 0,
    discovered_at TEXT NOT NULL,
    age_hours_at_discovery REAL DEFAULT 0,
    virality_score REAL DEFAULT 0,
    raw_content_ref TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scripts (
    candidate_id TEXT PRIMARY KEY REFERENCES candidates(id),
    tone TEXT NOT NULL,
    pacing TEXT NOT NULL,
    cta TEXT,
    caption_style TEXT NOT NULL,
    length_seconds REAL DEFAULT 30,
    script_ref TEXT NOT NULL,
    script_json TEXT NOT NULL,
    generated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS flagged (
    candidate_id TEXT PRIMARY KEY REFERENCES candidates(id),
    reasons TEXT NOT NULL,
    flagged_at TEXT NOT NULL,
    quarantined_content_ref TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_score ON candidates(virality_score);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "explicit moderation status and run audit",
		Up: func(tx *sql.Tx) error {
			for _, col := range []struct{ name, ddl string }{
				{"moderation_status", `ALTER TABLE candidates ADD COLUMN moderation_status TEXT NOT NULL DEFAULT 'unreviewed'
					CHECK(moderation_status IN ('unreviewed', 'passed', 'flagged'))`},
				{"moderated_at", `ALTER TABLE candidates ADD COLUMN moderated_at TEXT`},
			} {
				exists, err := hasColumn(tx, "candidates", col.name)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				if _, err := tx.Exec(col.ddl); err != nil {
					return err
				}
			}

			_, err := tx.Exec(`
UPDATE candidates SET moderation_status = 'flagged'
WHERE id IN (SELECT candidate_id FROM flagged);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    steps TEXT,
    error_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_candidates_moderation ON candidates(moderation_status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`)
			return err
		},
	},
}

// hasColumn reports whether table already carries the named column.
func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
