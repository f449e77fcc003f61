package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var candidateColumns = []string{
	"id", "source", "title", "author", "upvote_count", "comment_count",
	"discovered_at", "age_hours_at_discovery", "virality_score", "raw_content_ref",
	"moderation_status", "moderated_at",
}

// InsertCandidateIfAbsent inserts a candidate. It returns false when the id
// is already known; existing rows are never overwritten.
func (db *DB) InsertCandidateIfAbsent(c Candidate) (bool, error) {
	status := c.ModerationStatus
	if status == "" {
		status = StatusUnreviewed
	}
	res, err := db.exec(sq.Insert("candidates").
		Columns(candidateColumns...).
		Values(c.ID, c.Source, c.Title, c.Author, c.UpvoteCount, c.CommentCount,
			c.DiscoveredAt, c.AgeHoursAtDiscovery, c.ViralityScore, c.RawContentRef,
			status, c.ModeratedAt).
		Suffix("ON CONFLICT(id) DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("inserting candidate %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HasCandidate reports whether a candidate with this id exists.
func (db *DB) HasCandidate(id string) (bool, error) {
	row, err := db.queryRow(sq.Select("COUNT(*)").From("candidates").Where(sq.Eq{"id": id}))
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCandidate returns a single candidate, or nil if it does not exist.
func (db *DB) GetCandidate(id string) (*Candidate, error) {
	row, err := db.queryRow(sq.Select(candidateColumns...).From("candidates").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateScore sets the virality score of one candidate.
func (db *DB) UpdateScore(id string, score float64) error {
	_, err := db.exec(sq.Update("candidates").Set("virality_score", score).Where(sq.Eq{"id": id}))
	return err
}

// ListCandidates returns every candidate in discovery order.
func (db *DB) ListCandidates() ([]Candidate, error) {
	rows, err := db.query(sq.Select(candidateColumns...).From("candidates").OrderBy("discovered_at", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// TopCandidates returns the highest-scoring candidates first.
func (db *DB) TopCandidates(limit int) ([]Candidate, error) {
	b := sq.Select(candidateColumns...).From("candidates").OrderBy("virality_score DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := db.query(b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// SetModerationStatus records a moderation outcome for a candidate.
func (db *DB) SetModerationStatus(id, status string) error {
	switch status {
	case StatusUnreviewed, StatusPassed, StatusFlagged:
	default:
		return fmt.Errorf("unknown moderation status %q", status)
	}
	var at any
	if status != StatusUnreviewed {
		at = Timestamp(time.Now())
	}
	res, err := db.exec(sq.Update("candidates").
		Set("moderation_status", status).
		Set("moderated_at", at).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %s not found", id)
	}
	return nil
}

// GetModerationStatus returns the stored moderation status, or "" when the
// candidate is unknown.
func (db *DB) GetModerationStatus(id string) (string, error) {
	row, err := db.queryRow(sq.Select("moderation_status").From("candidates").Where(sq.Eq{"id": id}))
	if err != nil {
		return "", err
	}
	var status string
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return status, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*Candidate, error) {
	var c Candidate
	var author sql.NullString
	if err := row.Scan(&c.ID, &c.Source, &c.Title, &author, &c.UpvoteCount, &c.CommentCount,
		&c.DiscoveredAt, &c.AgeHoursAtDiscovery, &c.ViralityScore, &c.RawContentRef,
		&c.ModerationStatus, &c.ModeratedAt); err != nil {
		return nil, err
	}
	c.Author = author.String
	return &c, nil
}

func scanCandidates(rows *sql.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
