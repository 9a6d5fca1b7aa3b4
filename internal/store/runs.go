package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/parsecheck/internal/verdict"
)

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run ID has no row in runs.
var ErrRunNotFound = errors.New("run not found")

// Run is the header row of one recorded batch run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source,omitempty"`
	Restrict   string    `json:"restrict,omitempty"`
	Artifact   string    `json:"artifact,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`
	Total      int       `json:"total"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
}

// SaveRun writes run and its records in one transaction. Record order is
// preserved through the seq column. Saving the same run ID twice is an
// error.
func (s *Store) SaveRun(ctx context.Context, run Run, records []verdict.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, mode, source, restrict_tag, artifact, report_path, total, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.Mode,
		run.Source,
		run.Restrict,
		run.Artifact,
		run.ReportPath,
		run.Total,
		run.Passed,
		run.Failed,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO verdicts
		(run_id, seq, fixture, expected_accept, exit_code, verdict)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save run: prepare verdicts: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			run.ID,
			i,
			rec.Fixture,
			rec.ExpectedAccept,
			rec.ExitCode,
			string(rec.Verdict),
		); err != nil {
			return fmt.Errorf("save verdict %s: %w", rec.Fixture, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, mode, source, restrict_tag, artifact, report_path, total, passed, failed
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the header row for id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, mode, source, restrict_tag, artifact, report_path, total, passed, failed
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ReadVerdicts returns the records of run id in execution order.
func (s *Store) ReadVerdicts(ctx context.Context, id string) ([]verdict.Record, error) {
	if _, err := s.ReadRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT fixture, expected_accept, exit_code, verdict
		FROM verdicts
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	records := []verdict.Record{}
	for rows.Next() {
		var (
			rec verdict.Record
			v   string
		)
		if err := rows.Scan(&rec.Fixture, &rec.ExpectedAccept, &rec.ExitCode, &v); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		rec.Verdict = verdict.Verdict(v)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return records, nil
}

// PruneRuns deletes all but the keep newest runs, together with their
// verdicts, and returns the number of runs deleted.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune runs: keep must not be negative, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs
			ORDER BY started_at DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return n, nil
}

// Change is one fixture whose verdict differs between two runs. An empty
// Before or After means the fixture was absent from that run.
type Change struct {
	Fixture        string          `json:"fixture"`
	ExpectedAccept bool            `json:"expected_accept"`
	Before         verdict.Verdict `json:"before,omitempty"`
	After          verdict.Verdict `json:"after,omitempty"`
}

// DiffRuns compares run a against run b by fixture name and label, so an
// accept-set and a reject-set file with the same name are separate
// fixtures. Fixtures with the same verdict in both runs are omitted. The
// result is ordered by name, accept set first.
func (s *Store) DiffRuns(ctx context.Context, a, b string) ([]Change, error) {
	for _, id := range []string{a, b} {
		if _, err := s.ReadRun(ctx, id); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT fixture, expected_accept,
		       MAX(CASE WHEN run_id = ?1 THEN verdict END) AS verdict_a,
		       MAX(CASE WHEN run_id = ?2 THEN verdict END) AS verdict_b
		FROM verdicts
		WHERE run_id IN (?1, ?2)
		GROUP BY fixture, expected_accept
		HAVING MAX(CASE WHEN run_id = ?1 THEN verdict END)
		       IS NOT MAX(CASE WHEN run_id = ?2 THEN verdict END)
		ORDER BY fixture COLLATE BINARY ASC, expected_accept DESC
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("diff runs: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c             Change
			before, after sql.NullString
		)
		if err := rows.Scan(&c.Fixture, &c.ExpectedAccept, &before, &after); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Before = verdict.Verdict(before.String)
		c.After = verdict.Verdict(after.String)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		startedAt string
	)
	err := row.Scan(
		&run.ID,
		&startedAt,
		&run.Mode,
		&run.Source,
		&run.Restrict,
		&run.Artifact,
		&run.ReportPath,
		&run.Total,
		&run.Passed,
		&run.Failed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at for run %s: %w", run.ID, err)
	}
	return run, nil
}
