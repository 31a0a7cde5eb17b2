// Package trace records task runs to disk: one directory per task holding
// per-step screenshots, a steps JSON log, and the appended thought trail.
// On finalize the directory is renamed with the outcome and a timestamp.
package trace

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Step is one recorded graph step.
type Step struct {
	Index      int       `json:"index"`
	Node       string    `json:"node"`
	RecordedAt time.Time `json:"recorded_at"`
	// Screenshot names the PNG file written for this step, empty when the
	// state carried no screenshot.
	Screenshot string `json:"screenshot,omitempty"`
}

// Recorder writes one task's trace. Not safe for concurrent use; the task
// runner drives it from the event loop.
type Recorder struct {
	dir       string
	taskName  string
	steps     []Step
	thoughts  *os.File
	finalized bool
}

// NewRecorder creates the trace directory under baseDir and opens the
// thought log.
func NewRecorder(baseDir, taskName string) (*Recorder, error) {
	dir := filepath.Join(baseDir, sanitizeName(taskName)+"_IN_PROGRESS")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	thoughts, err := os.OpenFile(filepath.Join(dir, "thoughts.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{dir: dir, taskName: taskName, thoughts: thoughts}, nil
}

// Dir returns the current trace directory.
func (r *Recorder) Dir() string { return r.dir }

// RecordStep captures one graph step. screenshotBase64 may be empty.
func (r *Recorder) RecordStep(node, screenshotBase64 string) error {
	step := Step{
		Index:      len(r.steps),
		Node:       node,
		RecordedAt: time.Now(),
	}
	if screenshotBase64 != "" {
		png, err := base64.StdEncoding.DecodeString(screenshotBase64)
		if err == nil {
			name := fmt.Sprintf("step_%04d.png", step.Index)
			if err := os.WriteFile(filepath.Join(r.dir, name), png, 0o644); err != nil {
				return err
			}
			step.Screenshot = name
		}
	}
	r.steps = append(r.steps, step)
	return nil
}

// AppendThought appends one line to the thought log.
func (r *Recorder) AppendThought(thought string) error {
	_, err := fmt.Fprintln(r.thoughts, thought)
	return err
}

// Finalize writes the steps JSON, closes the thought log, and renames the
// directory to <name>_<PASS|FAIL>_<timestamp>. Safe to call once.
func (r *Recorder) Finalize(passed bool) (string, error) {
	if r.finalized {
		return r.dir, nil
	}
	r.finalized = true

	data, err := json.MarshalIndent(r.steps, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(r.dir, "steps.json"), data, 0o644); err != nil {
		return "", err
	}
	if err := r.thoughts.Close(); err != nil {
		return "", err
	}

	outcome := "FAIL"
	if passed {
		outcome = "PASS"
	}
	final := filepath.Join(filepath.Dir(r.dir),
		fmt.Sprintf("%s_%s_%s", sanitizeName(r.taskName), outcome, time.Now().Format("20060102_150405")))
	if err := os.Rename(r.dir, final); err != nil {
		return "", err
	}
	r.dir = final
	return final, nil
}

// sanitizeName makes a task name safe as a directory component.
func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "task"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return string(out)
}
