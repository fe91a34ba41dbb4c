// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kingotools/capture/internal/capture"
)

// TaskStoreConfig controls the Postgres connection pool for task rows.
type TaskStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskStore persists capture task rows in Postgres.
type TaskStore struct {
	pool pgxIface
}

// NewTaskStore creates a Postgres-backed TaskStore using the provided config.
func NewTaskStore(ctx context.Context, cfg TaskStoreConfig) (*TaskStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TaskStore{pool: pool}, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewTaskStoreWithPool(pool pgxIface) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save upserts a task row.
func (s *TaskStore) Save(ctx context.Context, task capture.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	query := `
INSERT INTO capture_tasks (id, term_code, term_name, stage, stage_report, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	term_code = EXCLUDED.term_code,
	term_name = EXCLUDED.term_name,
	stage = EXCLUDED.stage,
	stage_report = EXCLUDED.stage_report`
	args := []any{
		task.ID,
		task.TermCode,
		task.TermName,
		string(task.Stage),
		task.StageReport,
		task.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// FindByID fetches a task row by id.
func (s *TaskStore) FindByID(ctx context.Context, id string) (capture.Task, error) {
	query := `
SELECT id, term_code, term_name, stage, stage_report, created_at
FROM capture_tasks
WHERE id = $1`
	var (
		task  capture.Task
		stage string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.TermCode,
		&task.TermName,
		&stage,
		&task.StageReport,
		&task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return capture.Task{}, capture.ErrTaskNotExists
	}
	if err != nil {
		return capture.Task{}, fmt.Errorf("select task: %w", err)
	}
	task.Stage = capture.Stage(stage)
	return task, nil
}

// FindAll returns one page of task rows ordered by creation time, newest
// first, plus the total row count.
func (s *TaskStore) FindAll(ctx context.Context, page capture.PageRequest) ([]capture.Task, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM capture_tasks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := `
SELECT id, term_code, term_name, stage, stage_report, created_at
FROM capture_tasks
ORDER BY created_at DESC, id`
	args := []any{}
	if page.Size > 0 {
		pageNum := page.Page
		if pageNum < 1 {
			pageNum = 1
		}
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, page.Size, (pageNum-1)*page.Size)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []capture.Task
	for rows.Next() {
		var (
			task  capture.Task
			stage string
		)
		if err := rows.Scan(
			&task.ID,
			&task.TermCode,
			&task.TermName,
			&stage,
			&task.StageReport,
			&task.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan task row: %w", err)
		}
		task.Stage = capture.Stage(stage)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, total, nil
}

// DeleteByID removes a task row. Deleting an absent id is a no-op.
func (s *TaskStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM capture_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
