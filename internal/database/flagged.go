package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// UpsertFlag inserts or replaces the flag record for a candidate.
func (db *DB) UpsertFlag(f Flag) error {
	reasons := f.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	_, err = db.exec(sq.Insert("flagged").Options("OR REPLACE").
		Columns("candidate_id", "reasons", "flagged_at", "quarantined_content_ref").
		Values(f.CandidateID, string(data), f.FlaggedAt, f.QuarantinedContentRef))
	return err
}

// GetFlag returns the flag record for a candidate, or nil.
func (db *DB) GetFlag(candidateID string) (*Flag, error) {
	row, err := db.queryRow(sq.Select("candidate_id", "reasons", "flagged_at", "quarantined_content_ref").
		From("flagged").Where(sq.Eq{"candidate_id": candidateID}))
	if err != nil {
		return nil, err
	}
	f, err := scanFlag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// ListFlags returns open flag records, most recent first.
func (db *DB) ListFlags() ([]Flag, error) {
	rows, err := db.query(sq.Select("candidate_id", "reasons", "flagged_at", "quarantined_content_ref").
		From("flagged").OrderBy("flagged_at DESC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// DeleteFlag removes a flag record. It reports whether a row was deleted.
func (db *DB) DeleteFlag(candidateID string) (bool, error) {
	res, err := db.exec(sq.Delete("flagged").Where(sq.Eq{"candidate_id": candidateID}))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanFlag(row rowScanner) (*Flag, error) {
	var f Flag
	var reasons string
	if err := row.Scan(&f.CandidateID, &reasons, &f.FlaggedAt, &f.QuarantinedContentRef); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasons), &f.Reasons); err != nil {
		return nil, fmt.Errorf("decoding reasons for %s: %w", f.CandidateID, err)
	}
	return &f, nil
}
