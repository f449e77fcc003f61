package database

import (
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
)

// InsertRun records the start of a pipeline run.
func (db *DB) InsertRun(id, startedAt string) error {
	_, err := db.exec(sq.Insert("runs").Columns("id", "started_at").Values(id, startedAt))
	return err
}

// FinishRun stores the step outcomes of a completed run.
func (db *DB) FinishRun(id, finishedAt string, steps []RunStep) error {
	data, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	errCount := 0
	for _, s := range steps {
		if s.Error != "" {
			errCount++
		}
	}
	_, err = db.exec(sq.Update("runs").
		Set("finished_at", finishedAt).
		Set("steps", string(data)).
		Set("error_count", errCount).
		Where(sq.Eq{"id": id}))
	return err
}

// RecentRuns returns the latest runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	b := sq.Select("id", "started_at", "finished_at", "steps", "error_count").
		From("runs").OrderBy("started_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := db.query(b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var steps sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &steps, &r.ErrorCount); err != nil {
			return nil, err
		}
		if steps.Valid {
			if err := json.Unmarshal([]byte(steps.String), &r.Steps); err != nil {
				r.Steps = nil
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
