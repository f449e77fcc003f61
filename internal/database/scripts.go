package database

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

var scriptColumns = []string{
	"candidate_id", "tone", "pacing", "cta", "caption_style", "length_seconds",
	"script_ref", "script_json", "generated_at",
}

// UpsertScript inserts or replaces the script row for a candidate.
func (db *DB) UpsertScript(s ScriptRecord) error {
	_, err := db.exec(sq.Insert("scripts").Options("OR REPLACE").
		Columns(scriptColumns...).
		Values(s.CandidateID, s.Tone, s.Pacing, s.CTA, s.CaptionStyle, s.LengthSeconds,
			s.ScriptRef, s.ScriptJSON, s.GeneratedAt))
	return err
}

// GetScript returns the script row for a candidate, or nil.
func (db *DB) GetScript(candidateID string) (*ScriptRecord, error) {
	row, err := db.queryRow(sq.Select(scriptColumns...).From("scripts").Where(sq.Eq{"candidate_id": candidateID}))
	if err != nil {
		return nil, err
	}
	s, err := scanScript(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListScripts returns every stored script, newest first.
func (db *DB) ListScripts() ([]ScriptRecord, error) {
	rows, err := db.query(sq.Select(scriptColumns...).From("scripts").OrderBy("generated_at DESC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScriptRecord
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanScript(row rowScanner) (*ScriptRecord, error) {
	var s ScriptRecord
	var cta sql.NullString
	if err := row.Scan(&s.CandidateID, &s.Tone, &s.Pacing, &cta, &s.CaptionStyle,
		&s.LengthSeconds, &s.ScriptRef, &s.ScriptJSON, &s.GeneratedAt); err != nil {
		return nil, err
	}
	s.CTA = cta.String
	return &s, nil
}
