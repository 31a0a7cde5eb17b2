package mobpilot

import (
	"context"
	"encoding/json"
	"strings"
	"text/template"
)

// Cortex is the decision agent: it reads the fresh observation against the
// current subgoal and produces either concrete UI action decisions for the
// Executor, subgoal-completion nominations for the Orchestrator, or both.
type Cortex struct {
	env *Env
}

const cortexPromptText = `You decide the next UI actions for a mobile-device
automation task. You see the current screen (UI hierarchy and screenshot) and
the subgoal plan. Work only toward the running subgoal.

Rules:
- Propose at most a few actions per cycle; prefer one decisive action.
- When the running subgoal is visibly achieved, nominate it as completed via
  complete_subgoals_by_ids and propose no further actions for it.
- When the screen shows the actions cannot proceed yet (loading, dialogs),
  decide on what unblocks it (wait, dismiss, scroll).
- Use element resource ids whenever the hierarchy has them.

{{.Observation}}
Plan:
{{.Plan}}

Recent progress notes:
{{.Thoughts}}

UI hierarchy (JSON):
{{.Hierarchy}}`

var cortexPrompt = template.Must(template.New("cortex").Parse(cortexPromptText))

// cortexDecision is one concrete action decision for the Executor.
type cortexDecision struct {
	Action  string `json:"action"`
	Details string `json:"details"`
}

type cortexOutput struct {
	// Decisions is null or empty when there is nothing for the Executor.
	Decisions []cortexDecision `json:"decisions"`
	// DecisionsReason explains the proposed actions.
	DecisionsReason string `json:"decisions_reason"`
	// GoalsCompletionReason explains the completion nominations; empty
	// when nothing is nominated.
	GoalsCompletionReason string   `json:"goals_completion_reason"`
	CompleteSubgoalsByIDs []string `json:"complete_subgoals_by_ids"`
}

var cortexSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"decisions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"action": {"type": "string"},
					"details": {"type": "string"}
				},
				"required": ["action", "details"]
			}
		},
		"decisions_reason": {"type": "string"},
		"goals_completion_reason": {"type": "string"},
		"complete_subgoals_by_ids": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["decisions", "decisions_reason", "goals_completion_reason", "complete_subgoals_by_ids"]
}`)

// maxHierarchyChars bounds the serialized hierarchy included in prompts.
const maxHierarchyChars = 20000

// Run produces the decision document. The screenshot, when present, goes to
// the model as an inline image.
func (cx *Cortex) Run(ctx context.Context, s *State) (StateDelta, error) {
	hierarchy, err := json.Marshal(s.LatestUIHierarchy)
	if err != nil {
		return StateDelta{}, err
	}

	var sys strings.Builder
	err = cortexPrompt.Execute(&sys, map[string]any{
		"Observation": observationSummary(s),
		"Plan":        FormatPlan(s.SubgoalPlan),
		"Thoughts":    strings.Join(tailStrings(s.AgentThoughts, 10), "\n"),
		"Hierarchy":   truncateStr(string(hierarchy), maxHierarchyChars),
	})
	if err != nil {
		return StateDelta{}, err
	}

	user := "Goal: " + s.InitialGoal
	msgs := []ChatMessage{SystemMessage(sys.String())}
	if s.LatestScreenshot != "" {
		msgs = append(msgs, UserImageMessage(user, s.LatestScreenshot))
	} else {
		msgs = append(msgs, UserMessage(user))
	}

	out, err := chatStructured[cortexOutput](ctx, cx.env.LLM, AgentCortex, msgs, "action_decisions", cortexSchema)
	if err != nil {
		return StateDelta{}, err
	}

	decisions := ""
	if len(out.Decisions) > 0 {
		doc, err := json.Marshal(out.Decisions)
		if err != nil {
			return StateDelta{}, err
		}
		decisions = string(doc)
	}

	thoughts := []string{out.DecisionsReason}
	completed := append([]string(nil), out.CompleteSubgoalsByIDs...)
	if len(completed) > 0 {
		// The completion reason travels as a progress note so the plan
		// review sees why the subgoals were nominated.
		note := "Nominating subgoal(s) " + strings.Join(completed, ", ") + " as completed: " + out.GoalsCompletionReason
		thoughts = append(thoughts, note)
	}
	for _, th := range thoughts {
		cx.env.notify(NodeCortex, th)
	}
	return StateDelta{
		StructuredDecisions: strPtr(decisions),
		CompleteSubgoalIDs:  &completed,
		CortexLastThought:   strPtr(out.DecisionsReason),
		Thoughts:            thoughts,
	}, nil
}
