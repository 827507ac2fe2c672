package spectrum

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ReportStore keeps the history of every report produced, one row per team,
// match and run. Generation times are stored as unix nanoseconds.
type ReportStore struct {
	db *sql.DB
}

// ErrReportNotFound is returned when no report matches a lookup.
var ErrReportNotFound = errors.New("report not found")

// OpenReportStore opens or creates the SQLite database at path.
func OpenReportStore(path string) (*ReportStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT NOT NULL,
			team TEXT NOT NULL,
			match_id TEXT NOT NULL,
			generated_ns INTEGER NOT NULL,
			pass INTEGER NOT NULL,
			report TEXT NOT NULL,
			PRIMARY KEY (run_id, team, match_id)
		);
		CREATE INDEX IF NOT EXISTS reports_team_match ON reports (team, match_id, generated_ns);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating report schema: %w", err)
	}
	return &ReportStore{db: db}, nil
}

// Close closes the database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// Save stores r, replacing any earlier copy from the same run.
func (s *ReportStore) Save(r *AccuracyReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO reports (run_id, team, match_id, generated_ns, pass, report) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Team, r.Match, r.GeneratedAt.UnixNano(), r.Pass, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving report %s/%s: %w", r.Team, r.Match, err)
	}
	return nil
}

// Latest returns the most recent report for a team's match.
func (s *ReportStore) Latest(team, match string) (*AccuracyReport, error) {
	row := s.db.QueryRow(
		`SELECT report FROM reports WHERE team = ? AND match_id = ? ORDER BY generated_ns DESC LIMIT 1`,
		team, match,
	)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("loading report %s/%s: %w", team, match, err)
	}
	var r AccuracyReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding report %s/%s: %w", team, match, err)
	}
	return &r, nil
}

// List returns every stored report, newest first. A non-empty team limits
// the result to that team.
func (s *ReportStore) List(team string) ([]*AccuracyReport, error) {
	query := `SELECT report FROM reports`
	var args []interface{}
	if team != "" {
		query += ` WHERE team = ?`
		args = append(args, team)
	}
	query += ` ORDER BY generated_ns DESC, team, match_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []*AccuracyReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		var r AccuracyReport
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding report: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
