package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cropwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	counts     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_batches (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	reason     TEXT NOT NULL,
	error      TEXT,
	articles   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_failed_batches_run_id ON failed_batches(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, startDate, endDate string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, start_date, end_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, startDate, endDate, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusComplete), string(countsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, start_date, end_date, status, counts, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_date, end_date, status, counts, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) RecordFailedBatch(ctx context.Context, runID, reason, errMsg string, articles []model.RawArticle) error {
	articlesJSON, err := json.Marshal(articles)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal articles")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO failed_batches (id, run_id, reason, error, articles, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, reason, errMsg, string(articlesJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert failed batch")
}

func (s *SQLiteStore) ListFailedBatches(ctx context.Context, runID string) ([]FailedBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, reason, error, articles, created_at
		 FROM failed_batches WHERE run_id = ? ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failed batches")
	}
	defer rows.Close()

	var batches []FailedBatch
	for rows.Next() {
		var fb FailedBatch
		var errMsg sql.NullString
		var articlesJSON string
		if err := rows.Scan(&fb.ID, &fb.RunID, &fb.Reason, &errMsg, &articlesJSON, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed batch")
		}
		fb.Error = errMsg.String
		if err := json.Unmarshal([]byte(articlesJSON), &fb.Articles); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal articles")
		}
		batches = append(batches, fb)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list failed batches")
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var counts sql.NullString
	var status string
	if err := row.Scan(&run.ID, &run.StartDate, &run.EndDate, &status, &counts, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.New("store: run not found")
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	run.Status = RunStatus(status)
	if counts.Valid && counts.String != "" {
		var rc RunCounts
		if err := json.Unmarshal([]byte(counts.String), &rc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counts")
		}
		run.Counts = &rc
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: %s not found: %s", kind, id)
	}
	return nil
}
