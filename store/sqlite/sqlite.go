// Package sqlite implements mobpilot.TaskStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvasilev/mobpilot"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements mobpilot.TaskStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ mobpilot.TaskStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			goal TEXT NOT NULL,
			device_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			structured TEXT,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS task_thoughts (
			task_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			thought TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (task_id, seq)
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// SaveTask inserts or replaces a task record.
func (s *Store) SaveTask(ctx context.Context, rec mobpilot.TaskRecord) error {
	start := time.Now()
	s.logger.Debug("sqlite: save task", "id", rec.ID, "status", rec.Status)

	var structured *string
	if len(rec.Structured) > 0 {
		v := string(rec.Structured)
		structured = &v
	}
	var finished *int64
	if !rec.FinishedAt.IsZero() {
		v := rec.FinishedAt.Unix()
		finished = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, name, goal, device_id, status, content, structured, error, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Goal, rec.DeviceID, string(rec.Status), rec.Content, structured, rec.Error, rec.CreatedAt.Unix(), finished,
	)
	if err != nil {
		s.logger.Error("sqlite: save task failed", "id", rec.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// UpdateStatus transitions a task's status. Terminal statuses also stamp
// finished_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, status mobpilot.TaskStatus, errMsg string) error {
	s.logger.Debug("sqlite: update status", "id", id, "status", status)

	var finished *int64
	if status.Terminal() {
		v := time.Now().Unix()
		finished = &v
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error = ?, finished_at = COALESCE(?, finished_at) WHERE id = ?`,
		string(status), errMsg, finished, id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update status: task %s not found", id)
	}
	return nil
}

// SaveOutput stores the task's final answer.
func (s *Store) SaveOutput(ctx context.Context, id, content string, structured json.RawMessage) error {
	s.logger.Debug("sqlite: save output", "id", id, "content_len", len(content), "structured", len(structured) > 0)

	var structuredJSON *string
	if len(structured) > 0 {
		v := string(structured)
		structuredJSON = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET content = ?, structured = ? WHERE id = ?`,
		content, structuredJSON, id,
	)
	if err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	return nil
}

// AppendThought appends one line to the task's thought trail.
func (s *Store) AppendThought(ctx context.Context, id, thought string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_thoughts (task_id, seq, thought, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM task_thoughts WHERE task_id = ?), ?, ?)`,
		id, id, thought, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append thought: %w", err)
	}
	return nil
}

// Thoughts returns the task's thought trail in append order.
func (s *Store) Thoughts(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thought FROM task_thoughts WHERE task_id = ? ORDER BY seq`, id)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, goal, device_id, status, content, structured, error, created_at, finished_at
		 FROM tasks WHERE id = ?`, id)

	rec, err := scanTask(row)
	if err == sql.ErrNoRows {
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, goal, device_id, status, content, structured, error, created_at, finished_at
		 FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
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

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (mobpilot.TaskRecord, error) {
	var (
		rec        mobpilot.TaskRecord
		status     string
		structured sql.NullString
		created    int64
		finished   sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Goal, &rec.DeviceID, &status, &rec.Content, &structured, &rec.Error, &created, &finished)
	if err != nil {
		return mobpilot.TaskRecord{}, err
	}
	rec.Status = mobpilot.TaskStatus(status)
	if structured.Valid {
		rec.Structured = json.RawMessage(structured.String)
	}
	rec.CreatedAt = time.Unix(created, 0)
	if finished.Valid {
		rec.FinishedAt = time.Unix(finished.Int64, 0)
	}
	return rec, nil
}
