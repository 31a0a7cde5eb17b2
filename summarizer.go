package mobpilot

import (
	"context"
	"fmt"
	"strings"
)

// Summarizer appends a compact summary of the just-executed action cycle to
// the thought trail. It is a pure transformation over the tail of the
// executor conversation; no LLM call is involved.
type Summarizer struct {
	env *Env
}

// Run summarizes the latest assistant turn and its tool results.
func (sm *Summarizer) Run(ctx context.Context, s *State) (StateDelta, error) {
	summary := summarizeCycle(s.ExecutorMessages)
	if summary == "" {
		return StateDelta{}, nil
	}
	sm.env.notify(NodeSummarizer, summary)
	return StateDelta{Thoughts: []string{summary}}, nil
}

// summarizeCycle renders the last assistant turn and everything after it.
// Returns "" when the conversation has no assistant turn yet.
func summarizeCycle(msgs []ChatMessage) string {
	start := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var actions, failures []string
	for _, m := range msgs[start:] {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				actions = append(actions, tc.Name)
			}
		case RoleTool:
			if m.Status == ToolError {
				failures = append(failures, m.Content)
			}
		}
	}

	switch {
	case len(actions) == 0:
		content := strings.TrimSpace(msgs[start].Content)
		if content == "" {
			return ""
		}
		return "No device action this cycle: " + truncateStr(content, 200)
	case len(failures) == 0:
		return fmt.Sprintf("Executed %s successfully.", strings.Join(actions, ", "))
	default:
		return fmt.Sprintf("Executed %s; %d action(s) failed: %s",
			strings.Join(actions, ", "), len(failures), truncateStr(strings.Join(failures, "; "), 300))
	}
}
