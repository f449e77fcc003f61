package database

// GetStats returns aggregate statistics for the status command and dashboard.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	var unreviewed, passed, flagged *int
	err := db.conn.QueryRow(`SELECT
			COUNT(*),
			SUM(CASE WHEN moderation_status = 'unreviewed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN moderation_status = 'passed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN moderation_status = 'flagged' THEN 1 ELSE 0 END)
		FROM candidates`).Scan(&s.TotalCandidates, &unreviewed, &passed, &flagged)
	if err != nil {
		return nil, err
	}
	if unreviewed != nil {
		s.Unreviewed = *unreviewed
	}
	if passed != nil {
		s.Passed = *passed
	}
	if flagged != nil {
		s.Flagged = *flagged
	}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM scripts").Scan(&s.Scripts); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM flagged").Scan(&s.OpenFlags); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*), MAX(started_at) FROM runs").Scan(&s.Runs, &s.LastRunAt); err != nil {
		return nil, err
	}
	return &s, nil
}
