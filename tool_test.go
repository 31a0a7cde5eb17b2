package mobpilot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const echoSchema = `{
	"type": "object",
	"properties": {"value": {"type": "string"}},
	"required": ["value"]
}`

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its argument",
		Schema:      json.RawMessage(echoSchema),
		Run: func(_ context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[struct {
				Value string `json:"value"`
			}](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			return Outcome{Message: "echo: " + args.Value}
		},
	}
}

func newTestRegistry(t *testing.T, tools ...*Tool) *ToolRegistry {
	t.Helper()
	r, err := NewToolRegistry(&ToolEnv{}, tools...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestNewToolRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewToolRegistry(&ToolEnv{}, echoTool("echo"), echoTool("echo"))
	if err == nil {
		t.Fatal("expected error for duplicate tool name")
	}
}

func TestNewToolRegistry_RejectsBadSchema(t *testing.T) {
	bad := &Tool{Name: "bad", Schema: json.RawMessage(`{"type": 42}`)}
	if _, err := NewToolRegistry(&ToolEnv{}, bad); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestExecuteCall_Success(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))

	delta := r.ExecuteCall(context.Background(), &State{}, ToolCall{
		ID: "c1", Name: "echo", Args: json.RawMessage(`{"value":"hi"}`),
	})

	if len(delta.ExecutorMessages) != 1 {
		t.Fatalf("got %d messages, want 1", len(delta.ExecutorMessages))
	}
	msg := delta.ExecutorMessages[0]
	if msg.Role != RoleTool || msg.ToolCallID != "c1" || msg.Status != ToolOK {
		t.Errorf("bad tool result: %+v", msg)
	}
	if msg.Content != "echo: hi" {
		t.Errorf("got content %q", msg.Content)
	}
	if len(delta.Thoughts) != 1 || delta.Thoughts[0] != "echo: hi" {
		t.Errorf("got thoughts %v", delta.Thoughts)
	}
}

func TestExecuteCall_UnknownToolIsErrorResult(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))

	delta := r.ExecuteCall(context.Background(), &State{}, ToolCall{ID: "c1", Name: "ghost"})

	if len(delta.ExecutorMessages) != 1 {
		t.Fatalf("got %d messages, want 1", len(delta.ExecutorMessages))
	}
	msg := delta.ExecutorMessages[0]
	if msg.Status != ToolError {
		t.Errorf("got status %q, want error", msg.Status)
	}
	if !strings.Contains(msg.Content, "ghost") {
		t.Errorf("error does not name the tool: %q", msg.Content)
	}
}

func TestExecuteCall_SchemaViolationIsErrorResult(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))

	delta := r.ExecuteCall(context.Background(), &State{}, ToolCall{
		ID: "c1", Name: "echo", Args: json.RawMessage(`{"value": 7}`),
	})

	msg := delta.ExecutorMessages[0]
	if msg.Status != ToolError {
		t.Errorf("got status %q, want error", msg.Status)
	}
	if !strings.Contains(msg.Content, "invalid arguments") {
		t.Errorf("got content %q", msg.Content)
	}
}

func TestExecuteCall_ToolErrorBecomesErrorResult(t *testing.T) {
	failing := &Tool{
		Name:   "fail",
		Schema: json.RawMessage(`{"type":"object"}`),
		Run: func(_ context.Context, _ Invocation) Outcome {
			return Outcome{Err: errors.New("device exploded")}
		},
	}
	r := newTestRegistry(t, failing)

	delta := r.ExecuteCall(context.Background(), &State{}, ToolCall{ID: "c1", Name: "fail"})
	msg := delta.ExecutorMessages[0]
	if msg.Status != ToolError || msg.Content != "device exploded" {
		t.Errorf("bad error result: %+v", msg)
	}
}

func TestExecuteCall_PanicIsRecovered(t *testing.T) {
	panicky := &Tool{
		Name:   "panic",
		Schema: json.RawMessage(`{"type":"object"}`),
		Run: func(_ context.Context, _ Invocation) Outcome {
			panic("nil map write")
		},
	}
	r := newTestRegistry(t, panicky)

	delta := r.ExecuteCall(context.Background(), &State{}, ToolCall{ID: "c1", Name: "panic"})
	msg := delta.ExecutorMessages[0]
	if msg.Status != ToolError || !strings.Contains(msg.Content, "panicked") {
		t.Errorf("panic not folded into error result: %+v", msg)
	}
}

func TestExecuteAll_PreservesCallOrder(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))

	calls := []ToolCall{
		{ID: "c1", Name: "echo", Args: json.RawMessage(`{"value":"one"}`)},
		{ID: "c2", Name: "echo", Args: json.RawMessage(`{"value":"two"}`)},
		{ID: "c3", Name: "echo", Args: json.RawMessage(`{"value":"three"}`)},
	}
	delta := r.ExecuteAll(context.Background(), &State{}, calls)

	if len(delta.ExecutorMessages) != 3 {
		t.Fatalf("got %d messages, want 3", len(delta.ExecutorMessages))
	}
	want := []string{"echo: one", "echo: two", "echo: three"}
	for i, w := range want {
		if delta.ExecutorMessages[i].Content != w {
			t.Errorf("message %d: got %q, want %q", i, delta.ExecutorMessages[i].Content, w)
		}
	}
}

func TestExecuteAll_BoundsParallelism(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex
	block := &Tool{
		Name:   "block",
		Schema: json.RawMessage(`{"type":"object"}`),
		Run: func(_ context.Context, _ Invocation) Outcome {
			n := atomic.AddInt64(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			atomic.AddInt64(&active, -1)
			return Outcome{Message: "ok"}
		},
	}
	r := newTestRegistry(t, block)

	calls := make([]ToolCall, 30)
	for i := range calls {
		calls[i] = ToolCall{ID: NewID(), Name: "block"}
	}
	delta := r.ExecuteAll(context.Background(), &State{}, calls)
	if len(delta.ExecutorMessages) != 30 {
		t.Fatalf("got %d messages, want 30", len(delta.ExecutorMessages))
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > maxParallelTools {
		t.Errorf("observed %d concurrent executions, cap is %d", peak, maxParallelTools)
	}
}

func TestDefinitions_MatchRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t, echoTool("a"), echoTool("b"))
	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "a" || defs[1].Name != "b" {
		t.Errorf("got %v", defs)
	}
}

func TestDefaultTools_AllRegister(t *testing.T) {
	r, err := NewToolRegistry(&ToolEnv{}, DefaultTools()...)
	if err != nil {
		t.Fatalf("default tool set failed to register: %v", err)
	}
	names := r.Names()
	if len(names) != 15 {
		t.Errorf("got %d tools: %v", len(names), names)
	}
}
