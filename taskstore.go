package mobpilot

import (
	"context"
	"encoding/json"
	"time"
)

// TaskRecord is the persisted view of one task run.
type TaskRecord struct {
	ID         string
	Name       string
	Goal       string
	DeviceID   string
	Status     TaskStatus
	Content    string
	Structured json.RawMessage
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// TaskStore persists task runs, their thought trails, and final outputs.
// Implementations: store/sqlite (local), store/postgres.
type TaskStore interface {
	// SaveTask inserts the task at creation time.
	SaveTask(ctx context.Context, rec TaskRecord) error

	// UpdateStatus transitions the task's status; errMsg is stored for
	// terminal failures, finished marks terminal transitions.
	UpdateStatus(ctx context.Context, id string, status TaskStatus, errMsg string) error

	// SaveOutput stores the final answer.
	SaveOutput(ctx context.Context, id, content string, structured json.RawMessage) error

	// AppendThought appends one line to the task's thought trail.
	AppendThought(ctx context.Context, id, thought string) error

	// Thoughts returns the task's thought trail in append order.
	Thoughts(ctx context.Context, id string) ([]string, error)

	// GetTask loads one task.
	GetTask(ctx context.Context, id string) (TaskRecord, error)

	// ListTasks returns the most recent tasks, newest first.
	ListTasks(ctx context.Context, limit int) ([]TaskRecord, error)

	// Close releases the underlying connection.
	Close() error
}
