// Package postgres implements mobpilot.TaskStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates the pool; Close releases it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvasilev/mobpilot"
)

// Store implements mobpilot.TaskStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ mobpilot.TaskStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes. Safe to call multiple
// times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			goal TEXT NOT NULL,
			device_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			structured JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			finished_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS task_thoughts (
			task_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			thought TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (task_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	return nil
}

// SaveTask inserts or replaces a task record.
func (s *Store) SaveTask(ctx context.Context, rec mobpilot.TaskRecord) error {
	var structured any
	if len(rec.Structured) > 0 {
		structured = string(rec.Structured)
	}
	var finished *int64
	if !rec.FinishedAt.IsZero() {
		v := rec.FinishedAt.Unix()
		finished = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, name, goal, device_id, status, content, structured, error, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, goal = EXCLUDED.goal, device_id = EXCLUDED.device_id,
			status = EXCLUDED.status, content = EXCLUDED.content,
			structured = EXCLUDED.structured, error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.Name, rec.Goal, rec.DeviceID, string(rec.Status), rec.Content, structured, rec.Error, rec.CreatedAt.Unix(), finished,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// UpdateStatus transitions a task's status. Terminal statuses also stamp
// finished_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, status mobpilot.TaskStatus, errMsg string) error {
	var finished *int64
	if status.Terminal() {
		v := time.Now().Unix()
		finished = &v
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, error = $2, finished_at = COALESCE($3, finished_at) WHERE id = $4`,
		string(status), errMsg, finished, id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update status: task %s not found", id)
	}
	return nil
}

// SaveOutput stores the task's final answer.
func (s *Store) SaveOutput(ctx context.Context, id, content string, structured json.RawMessage) error {
	var structuredJSON any
	if len(structured) > 0 {
		structuredJSON = string(structured)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET content = $1, structured = $2 WHERE id = $3`,
		content, structuredJSON, id,
	)
	if err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	return nil
}

// AppendThought appends one line to the task's thought trail.
func (s *Store) AppendThought(ctx context.Context, id, thought string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_thoughts (task_id, seq, thought, created_at)
		 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM task_thoughts WHERE task_id = $1), $2, $3)`,
		id, thought, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append thought: %w", err)
	}
	return nil
}

// Thoughts returns the task's thought trail in append order.
func (s *Store) Thoughts(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT thought FROM task_thoughts WHERE task_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get thoughts: %w", err)
	}
	defer rows.Close()

	var thoughts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		thoughts = append(thoughts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thoughts: %w", err)
	}
	return thoughts, nil
}

// GetTask loads one task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (mobpilot.TaskRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, goal, device_id, status, content, structured, error, created_at, finished_at
		 FROM tasks WHERE id = $1`, id)

	rec, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return mobpilot.TaskRecord{}, fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return mobpilot.TaskRecord{}, fmt.Errorf("get task: %w", err)
	}
	return rec, nil
}

// ListTasks returns the most recent tasks, newest first.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]mobpilot.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, goal, device_id, status, content, structured, error, created_at, finished_at
		 FROM tasks ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []mobpilot.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (mobpilot.TaskRecord, error) {
	var (
		rec        mobpilot.TaskRecord
		status     string
		structured *string
		created    int64
		finished   *int64
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Goal, &rec.DeviceID, &status, &rec.Content, &structured, &rec.Error, &created, &finished)
	if err != nil {
		return mobpilot.TaskRecord{}, err
	}
	rec.Status = mobpilot.TaskStatus(status)
	if structured != nil {
		rec.Structured = json.RawMessage(*structured)
	}
	rec.CreatedAt = time.Unix(created, 0)
	if finished != nil {
		rec.FinishedAt = time.Unix(*finished, 0)
	}
	return rec, nil
}
