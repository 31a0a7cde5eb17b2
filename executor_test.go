package mobpilot

import (
	"context"
	"encoding/json"
	"testing"
)

func TestExecutorRun_EmitsToolCalls(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "tap", Args: json.RawMessage(`{"target":{"text":"Wi-Fi"}}`)}}
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{ToolCalls: calls}},
	}}
	e := &Executor{env: newNodeEnv(t, stub)}

	s := &State{StructuredDecisions: `[{"action":"tap","details":"tap Wi-Fi"}]`}
	delta, err := e.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.ExecutorMessages) != 1 {
		t.Fatalf("got %d messages, want 1", len(delta.ExecutorMessages))
	}
	msg := delta.ExecutorMessages[0]
	if msg.Role != RoleAssistant || len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "tap" {
		t.Errorf("bad assistant turn: %+v", msg)
	}
	// The decision document is consumed exactly once.
	if delta.StructuredDecisions == nil || *delta.StructuredDecisions != "" {
		t.Errorf("decisions not cleared: %v", delta.StructuredDecisions)
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postExecutorGate(s); len(got) != 1 || got[0] != routeInvokeTools {
		t.Errorf("got routes %v, want [invoke_tools]", got)
	}
}

func TestExecutorRun_PlainTextSkipsToolNode(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "the decision names no available tool"}},
	}}
	e := &Executor{env: newNodeEnv(t, stub)}

	s := &State{StructuredDecisions: `[{"action":"levitate","details":"impossible"}]`}
	delta, err := e.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Thoughts) != 1 || delta.Thoughts[0] != "the decision names no available tool" {
		t.Errorf("got thoughts %v", delta.Thoughts)
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postExecutorGate(s); len(got) != 1 || got[0] != routeSkip {
		t.Errorf("got routes %v, want [skip]", got)
	}
}

func TestExecutorTools_AppendsResultsInOrder(t *testing.T) {
	env := newNodeEnv(t, &stubProvider{})
	tools, err := NewToolRegistry(&ToolEnv{}, echoTool("echo"))
	if err != nil {
		t.Fatal(err)
	}
	env.Tools = tools
	et := &ExecutorTools{env: env}

	s := &State{ExecutorMessages: []ChatMessage{{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "c1", Name: "echo", Args: json.RawMessage(`{"value":"one"}`)},
			{ID: "c2", Name: "echo", Args: json.RawMessage(`{"value":"two"}`)},
		},
	}}}
	delta, err := et.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.ExecutorMessages) != 2 {
		t.Fatalf("got %d results, want 2", len(delta.ExecutorMessages))
	}
	if delta.ExecutorMessages[0].Content != "echo: one" || delta.ExecutorMessages[1].Content != "echo: two" {
		t.Errorf("results out of order: %+v", delta.ExecutorMessages)
	}
}

func TestExecutorTools_NoPendingCallsIsNoop(t *testing.T) {
	et := &ExecutorTools{env: newNodeEnv(t, &stubProvider{})}
	delta, err := et.Run(context.Background(), &State{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delta.IsZero() {
		t.Errorf("got delta %+v, want zero", delta)
	}
}
