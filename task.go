package mobpilot

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSuccess   TaskStatus = "success"
	TaskFailure   TaskStatus = "failure"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure || s == TaskCancelled
}

// TaskRequest describes one task to run. Build it with Agent.NewTask.
type TaskRequest struct {
	// Name labels the task in logs, traces, and the store. Defaults to a
	// truncated goal.
	Name string
	// Goal is the natural-language objective. Required.
	Goal string

	// OutputFormat, when set, is a JSON Schema the final answer must
	// conform to. Takes precedence over OutputDescription.
	OutputFormat json.RawMessage
	// OutputDescription shapes a free-form final answer.
	OutputDescription string

	// LockedApp pins the task to one app package: it is launched before
	// the run and relaunched when focus drifts.
	LockedApp string

	// Profile overrides the default LLM profile for every agent.
	Profile string

	// MaxSteps is the graph node-execution budget. Defaults to 60.
	MaxSteps int

	// RecordTrace dumps per-step screenshots and state to the trace
	// directory.
	RecordTrace bool

	// OnStatus, when set, observes every status transition.
	OnStatus func(TaskStatus)
	// OnEvent, when set, receives the graph's stream events.
	OnEvent EventSink
}

// TaskResult is the outcome of a finished task.
type TaskResult struct {
	ID     string
	Status TaskStatus
	// Content is the free-form answer (empty for structured output).
	Content string
	// Structured is the JSON answer when OutputFormat was set; nil when
	// extraction or validation failed.
	Structured json.RawMessage
}

// defaultMaxSteps is the node-execution budget applied when a request does
// not set one.
const defaultMaxSteps = 60

// Task is one in-flight run. Status transitions flow through SetStatus so
// callbacks and logs observe every change.
type Task struct {
	ID        string
	Request   TaskRequest
	DeviceID  string
	CreatedAt time.Time

	logger *slog.Logger

	mu     sync.Mutex
	status TaskStatus
}

func newTask(req TaskRequest, deviceID string, logger *slog.Logger) *Task {
	if req.MaxSteps <= 0 {
		req.MaxSteps = defaultMaxSteps
	}
	if req.Name == "" {
		req.Name = truncateStr(req.Goal, 60)
	}
	if logger == nil {
		logger = nopLogger
	}
	return &Task{
		ID:        NewID(),
		Request:   req,
		DeviceID:  deviceID,
		CreatedAt: time.Now(),
		logger:    logger,
		status:    TaskPending,
	}
}

// Status returns the current status.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus transitions the task, ignoring transitions out of a terminal
// status. The OnStatus callback runs outside the lock; a panicking callback
// is logged, never propagated.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	if t.status.Terminal() || t.status == status {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.mu.Unlock()

	t.logger.Info("task status changed", "task_id", t.ID, "status", status)
	if cb := t.Request.OnStatus; cb != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("status callback panicked", "task_id", t.ID, "panic", r)
				}
			}()
			cb(status)
		}()
	}
}

// Record renders the task as a store record.
func (t *Task) Record() TaskRecord {
	return TaskRecord{
		ID:        t.ID,
		Name:      t.Request.Name,
		Goal:      t.Request.Goal,
		DeviceID:  t.DeviceID,
		Status:    t.Status(),
		CreatedAt: t.CreatedAt,
	}
}
