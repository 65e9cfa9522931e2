package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/stardis/pkg/model"

	_ "modernc.org/sqlite"
)

// schema is the DDL for the job ledger. IF NOT EXISTS keeps it
// idempotent across restarts.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		function     TEXT NOT NULL,
		backend      TEXT NOT NULL,
		command      TEXT NOT NULL DEFAULT '',
		external_id  TEXT NOT NULL DEFAULT '',
		phase        TEXT NOT NULL,
		status       TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// returns a Store. Use ":memory:" for an in-memory database (useful in
// tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, function, backend, command, external_id, phase, status, error, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Function, string(job.Backend), job.Command, job.ExternalID,
		string(job.Phase), string(job.Status), job.Error,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano),
		formatCompletedAt(job.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, function, backend, command, external_id, phase, status, error, created_at, updated_at, completed_at
		 FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "limit", limit)

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, function, backend, command, external_id, phase, status, error, created_at, updated_at, completed_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "id", job.ID, "phase", job.Phase)

	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET command = ?, external_id = ?, phase = ?, status = ?, error = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		job.Command, job.ExternalID, string(job.Phase), string(job.Status), job.Error,
		job.UpdatedAt.Format(time.RFC3339Nano), formatCompletedAt(job.CompletedAt),
		job.ID,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var backend, phase, status string
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(&job.ID, &job.Function, &backend, &job.Command, &job.ExternalID,
		&phase, &status, &job.Error, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Backend = model.Backend(backend)
	job.Phase = model.Phase(phase)
	job.Status = model.JobStatus(status)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			job.CompletedAt = &t
		}
	}
	return &job, nil
}

func formatCompletedAt(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
