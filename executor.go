package mobpilot

import (
	"context"
	"strings"
	"text/template"
)

// Executor translates the Cortex's decision document into tool calls. Its
// conversation (assistant turns and tool results) accumulates in
// State.ExecutorMessages; the decision document is cleared once consumed.
type Executor struct {
	env *Env
}

const executorPromptText = `You operate a {{.Platform}} device through tools.
You receive action decisions from a reasoning agent. Carry them out by
calling the tools, one call per decision, preserving their order. Do not
invent actions beyond the decisions. When a decision cannot be mapped onto
any tool, answer in plain text explaining why instead of calling tools.`

var executorPrompt = template.Must(template.New("executor").Parse(executorPromptText))

// executorHistory bounds how many prior conversation turns are replayed.
const executorHistory = 20

// Run asks the model to emit tool calls for the pending decisions.
func (e *Executor) Run(ctx context.Context, s *State) (StateDelta, error) {
	var sys strings.Builder
	if err := executorPrompt.Execute(&sys, map[string]any{
		"Platform": e.env.Device.Platform(),
	}); err != nil {
		return StateDelta{}, err
	}

	msgs := []ChatMessage{SystemMessage(sys.String())}
	msgs = append(msgs, tailMessages(s.ExecutorMessages, executorHistory)...)
	var user strings.Builder
	if s.CortexLastThought != "" {
		user.WriteString("Reasoning: " + s.CortexLastThought + "\n\n")
	}
	user.WriteString("Decisions:\n" + s.StructuredDecisions)
	msgs = append(msgs, UserMessage(user.String()))

	resp, err := e.env.LLM.chatStream(ctx, AgentExecutor,
		ChatRequest{Messages: msgs, Tools: e.env.Tools.Definitions()},
		func(delta string) {
			emitTo(e.env.emit, GraphEvent{Mode: StreamMessages, Node: NodeExecutor, Text: delta})
		})
	if err != nil {
		return StateDelta{}, err
	}

	assistant := ChatMessage{
		Role:      RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
	delta := StateDelta{
		// The decision document is consumed exactly once.
		StructuredDecisions: strPtr(""),
		ExecutorMessages:    []ChatMessage{assistant},
	}
	if len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) != "" {
		delta.Thoughts = []string{resp.Content}
		e.env.notify(NodeExecutor, resp.Content)
	}
	return delta, nil
}

// ExecutorTools runs the tool calls of the Executor's last turn. All calls
// of one turn execute within this single node, so their results commit as
// one atomic superstep update.
type ExecutorTools struct {
	env *Env
}

// Run dispatches the pending tool calls and merges their results.
func (et *ExecutorTools) Run(ctx context.Context, s *State) (StateDelta, error) {
	n := len(s.ExecutorMessages)
	if n == 0 {
		return StateDelta{}, nil
	}
	last := s.ExecutorMessages[n-1]
	if last.Role != RoleAssistant || len(last.ToolCalls) == 0 {
		return StateDelta{}, nil
	}
	delta := et.env.Tools.ExecuteAll(ctx, s, last.ToolCalls)
	for _, thought := range delta.Thoughts {
		et.env.notify(NodeExecutorTools, thought)
	}
	return delta, nil
}

// tailMessages returns the last n entries of msgs.
func tailMessages(msgs []ChatMessage, n int) []ChatMessage {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
