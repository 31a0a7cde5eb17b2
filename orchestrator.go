package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Orchestrator reviews plan progress: it confirms subgoal completions
// nominated by the Cortex, fails the current subgoal when it is stuck, and
// promotes the next subgoal to Running. It always clears the pending
// completion nominations on exit.
type Orchestrator struct {
	env *Env
}

const orchestratorPromptText = `You supervise a mobile-device automation plan.
Review the plan and the recent progress notes, then decide:
- which of the nominated subgoals are genuinely completed,
- whether the currently running subgoal is stuck beyond recovery and must be
  marked failed (this triggers a full replan, so only fail when progress is
  clearly impossible).

Plan:
{{.Plan}}

Nominated as completed by the decision agent: {{.Nominated}}

Recent progress notes:
{{.Thoughts}}`

var orchestratorPrompt = template.Must(template.New("orchestrator").Parse(orchestratorPromptText))

type orchestratorOutput struct {
	CompletedSubgoalIDs []string `json:"completed_subgoal_ids"`
	CompletionReason    string   `json:"completion_reason"`
	FailedCurrent       bool     `json:"failed_current"`
	FailureReason       string   `json:"failure_reason"`
}

var orchestratorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"completed_subgoal_ids": {"type": "array", "items": {"type": "string"}},
		"completion_reason": {"type": "string"},
		"failed_current": {"type": "boolean"},
		"failure_reason": {"type": "string"}
	},
	"required": ["completed_subgoal_ids", "completion_reason", "failed_current", "failure_reason"]
}`)

// Run reviews the plan. The first visit simply starts the first subgoal;
// later visits consult the model, but only when completions were nominated.
// The CompleteSubgoalIDs nominations are cleared unconditionally.
func (o *Orchestrator) Run(ctx context.Context, s *State) (StateDelta, error) {
	cleared := []string{}
	delta := StateDelta{CompleteSubgoalIDs: &cleared}

	plan := clonePlan(s.SubgoalPlan)
	if len(plan) == 0 {
		return delta, nil
	}

	if NothingStarted(plan) {
		plan, _ = StartNextSubgoal(plan)
		current, _ := CurrentSubgoal(plan)
		thought := "Starting subgoal: " + current.Description
		o.env.notify(NodeOrchestrator, thought)
		delta.SubgoalPlan = plan
		delta.Thoughts = []string{thought}
		return delta, nil
	}

	// Nothing nominated for completion: there is nothing to review, so
	// skip the model round-trip and leave the plan as it stands.
	if len(s.CompleteSubgoalIDs) == 0 {
		return delta, nil
	}

	var sys strings.Builder
	err := orchestratorPrompt.Execute(&sys, map[string]any{
		"Plan":      FormatPlan(plan),
		"Nominated": strings.Join(s.CompleteSubgoalIDs, ", "),
		"Thoughts":  strings.Join(tailStrings(s.AgentThoughts, 15), "\n"),
	})
	if err != nil {
		return StateDelta{}, err
	}
	msgs := []ChatMessage{
		SystemMessage(sys.String()),
		UserMessage("Goal: " + s.InitialGoal),
	}
	out, err := chatStructured[orchestratorOutput](ctx, o.env.LLM, AgentOrchestrator, msgs, "plan_review", orchestratorSchema)
	if err != nil {
		return StateDelta{}, err
	}

	var notes []string
	if len(out.CompletedSubgoalIDs) > 0 {
		plan = CompleteSubgoalsByIDs(plan, out.CompletedSubgoalIDs, out.CompletionReason)
		notes = append(notes, fmt.Sprintf("Confirmed %d subgoal(s) completed: %s", len(out.CompletedSubgoalIDs), out.CompletionReason))
	}
	if out.FailedCurrent {
		plan = FailCurrentSubgoal(plan, out.FailureReason)
		notes = append(notes, "Current subgoal failed: "+out.FailureReason)
	}
	if !AnyFailure(plan) {
		if _, running := CurrentSubgoal(plan); !running {
			if next, started := StartNextSubgoal(plan); started {
				plan = next
				current, _ := CurrentSubgoal(plan)
				notes = append(notes, "Starting subgoal: "+current.Description)
			}
		}
	}

	for _, n := range notes {
		o.env.notify(NodeOrchestrator, n)
	}
	delta.SubgoalPlan = plan
	delta.Thoughts = notes
	return delta, nil
}
