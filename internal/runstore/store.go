// Package runstore provides SQLite-backed persistence for pipeline runs
// and their per-stage verdicts
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// Run is one persisted pipeline run
type Run struct {
	ID         string
	Case       string
	Comment    string
	DateStamp  string
	Start      time.Time
	End        time.Time
	MaxDom     int
	ScratchDir string
	OutputDir  string
	Status     domain.RunStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a new run in queued state
func (s *Store) CreateRun(runID string, cfg *domain.RunConfig, scratchDir, outputDir string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, case_name, comment, date_stamp, start_date, end_date, max_dom, scratch_dir, output_dir, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		cfg.Case,
		cfg.Comment,
		cfg.DateStamp(),
		cfg.Start,
		cfg.End,
		cfg.MaxDom(),
		scratchDir,
		outputDir,
		string(domain.RunRunning),
		now,
		now,
	)
	return err
}

// UpdateRunStatus updates a run's status
func (s *Store) UpdateRunStatus(runID string, status domain.RunStatus) error {
	_, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), runID)
	return err
}

// RecordStageResult appends one stage verdict to a run's history
func (s *Store) RecordStageResult(runID string, res domain.StageResult) error {
	_, err := s.db.Exec(`
		INSERT INTO stage_results (run_id, stage, step, status, indeterminate, reason, log_path, exit_code, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		res.Stage,
		res.Step,
		string(res.Outcome.Status),
		res.Outcome.Indeterminate,
		res.Outcome.Reason,
		res.LogPath,
		res.ExitCode,
		res.StartedAt,
		res.Duration.Milliseconds(),
	)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, case_name, comment, date_stamp, start_date, end_date, max_dom, scratch_dir, output_dir, status, created_at, updated_at
		FROM runs WHERE id = ?
	`, runID)
	return scanRun(row)
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Case   string
	Status domain.RunStatus
	Limit  int
}

// ListRuns returns runs matching the given options, newest first
func (s *Store) ListRuns(opts ListOptions) ([]*Run, error) {
	query := `SELECT id, case_name, comment, date_stamp, start_date, end_date, max_dom, scratch_dir, output_dir, status, created_at, updated_at FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Case != "" {
		query += " AND case_name = ?"
		args = append(args, opts.Case)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// StageResults returns a run's stage history in execution order
func (s *Store) StageResults(runID string) ([]domain.StageResult, error) {
	rows, err := s.db.Query(`
		SELECT stage, step, status, indeterminate, reason, log_path, exit_code, started_at, duration_ms
		FROM stage_results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.StageResult
	for rows.Next() {
		var res domain.StageResult
		var status string
		var step, reason, logPath sql.NullString
		var durationMs int64

		err := rows.Scan(&res.Stage, &step, &status, &res.Outcome.Indeterminate, &reason, &logPath, &res.ExitCode, &res.StartedAt, &durationMs)
		if err != nil {
			return nil, err
		}

		res.Outcome.Status = domain.OutcomeStatus(status)
		if step.Valid {
			res.Step = step.String
		}
		if reason.Valid {
			res.Outcome.Reason = reason.String
		}
		if logPath.Valid {
			res.LogPath = logPath.String
		}
		res.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, res)
	}

	return results, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status string
	var comment sql.NullString

	err := row.Scan(&run.ID, &run.Case, &comment, &run.DateStamp, &run.Start, &run.End, &run.MaxDom, &run.ScratchDir, &run.OutputDir, &status, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if comment.Valid {
		run.Comment = comment.String
	}
	return &run, nil
}

func scanRunRows(rows *sql.Rows) (*Run, error) {
	var run Run
	var status string
	var comment sql.NullString

	err := rows.Scan(&run.ID, &run.Case, &comment, &run.DateStamp, &run.Start, &run.End, &run.MaxDom, &run.ScratchDir, &run.OutputDir, &status, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if comment.Valid {
		run.Comment = comment.String
	}
	return &run, nil
}
