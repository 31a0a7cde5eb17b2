package mobpilot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvasilev/mobpilot/device"
	"github.com/nvasilev/mobpilot/ui"
)

func countPrefix(shell *scriptShell, prefix string) int {
	n := 0
	for _, cmd := range shell.commands {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

func clearInvocation(shell *scriptShell, s *State) Invocation {
	dev := device.NewController(device.Android, device.WithShell(shell))
	return Invocation{
		Env:   &ToolEnv{Device: dev},
		State: s,
		Call: ToolCall{
			ID:   "c1",
			Name: "focus_and_clear_text",
			Args: json.RawMessage(`{"target": {"resource_id": "com.app:id/query"}}`),
		},
	}
}

func TestClearText_UnknownLengthErasesFiftyChars(t *testing.T) {
	// The hierarchy exposes the field but not its text, so the clear must
	// still erase enough to empty any plausible content.
	s := &State{LatestUIHierarchy: []ui.Element{{
		ResourceID: "com.app:id/query",
		Bounds:     &ui.Bounds{X1: 0, Y1: 0, X2: 200, Y2: 60},
	}}}
	shell := &scriptShell{}

	out := ClearTextTool().Run(context.Background(), clearInvocation(shell, s))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if got := countPrefix(shell, "input keyevent KEYCODE_DEL"); got != 50 {
		t.Errorf("got %d backspaces, want 50", got)
	}
}

func TestClearText_LongFieldErasesItsFullLength(t *testing.T) {
	long := strings.Repeat("x", 72)
	s := &State{LatestUIHierarchy: []ui.Element{{
		ResourceID: "com.app:id/query",
		Text:       long,
		Bounds:     &ui.Bounds{X1: 0, Y1: 0, X2: 200, Y2: 60},
	}}}
	shell := &scriptShell{}

	out := ClearTextTool().Run(context.Background(), clearInvocation(shell, s))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if got := countPrefix(shell, "input keyevent KEYCODE_DEL"); got != len(long) {
		t.Errorf("got %d backspaces, want %d", got, len(long))
	}
}

func TestClearText_FocusesFieldBeforeErasing(t *testing.T) {
	s := &State{LatestUIHierarchy: []ui.Element{{
		ResourceID: "com.app:id/query",
		Bounds:     &ui.Bounds{X1: 0, Y1: 0, X2: 200, Y2: 60},
	}}}
	shell := &scriptShell{}

	if out := ClearTextTool().Run(context.Background(), clearInvocation(shell, s)); out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if len(shell.commands) < 2 {
		t.Fatalf("shell saw %v", shell.commands)
	}
	if shell.commands[0] != "input tap 100 30" {
		t.Errorf("first command %q, want a tap on the field center", shell.commands[0])
	}
	if shell.commands[1] != "input keyevent KEYCODE_MOVE_END" {
		t.Errorf("second command %q, want the cursor moved to the end", shell.commands[1])
	}
}
