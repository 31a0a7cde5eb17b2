package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Planner decomposes the initial goal into an ordered subgoal plan. It runs
// once at task start and again whenever the Orchestrator requests a replan
// after a subgoal failure.
type Planner struct {
	env *Env
}

const plannerPromptText = `You are the planner of a mobile-device automation system
running on {{.Platform}}. Decompose the user's goal into a short ordered list of
concrete subgoals. Each subgoal must be achievable on the device through UI
actions: {{.ToolNames}}.

Rules:
- Keep the plan minimal; merge trivial steps.
- Subgoals must be verifiable from the screen.
- Never invent information the user did not give.
{{if .Replan}}
This is a replan: a previous subgoal failed. Study the progress notes below,
keep what already succeeded out of the new plan, and plan around the failure.

Previous plan:
{{.PreviousPlan}}

Progress notes:
{{.Thoughts}}
{{end}}`

var plannerPrompt = template.Must(template.New("planner").Parse(plannerPromptText))

// plannerOutput is the structured reply expected from the planner model.
type plannerOutput struct {
	Subgoals []struct {
		Description string `json:"description"`
	} `json:"subgoals"`
}

var plannerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"subgoals": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {"description": {"type": "string", "minLength": 1}},
				"required": ["description"]
			}
		}
	},
	"required": ["subgoals"]
}`)

// Run produces a fresh plan. Every subgoal gets a new id and starts
// NotStarted; the first is promoted to Running by the Orchestrator.
func (p *Planner) Run(ctx context.Context, s *State) (StateDelta, error) {
	replan := len(s.SubgoalPlan) > 0

	var sys strings.Builder
	err := plannerPrompt.Execute(&sys, map[string]any{
		"Platform":     p.env.Device.Platform(),
		"ToolNames":    strings.Join(p.env.Tools.Names(), ", "),
		"Replan":       replan,
		"PreviousPlan": FormatPlan(s.SubgoalPlan),
		"Thoughts":     strings.Join(tailStrings(s.AgentThoughts, 15), "\n"),
	})
	if err != nil {
		return StateDelta{}, err
	}

	msgs := []ChatMessage{
		SystemMessage(sys.String()),
		UserMessage("Goal: " + s.InitialGoal),
	}
	out, err := chatStructured[plannerOutput](ctx, p.env.LLM, AgentPlanner, msgs, "subgoal_plan", plannerSchema)
	if err != nil {
		return StateDelta{}, &ErrPlanning{Reason: err.Error()}
	}
	if len(out.Subgoals) == 0 {
		return StateDelta{}, &ErrPlanning{Reason: "model returned an empty plan"}
	}

	plan := make([]Subgoal, 0, len(out.Subgoals))
	for _, sg := range out.Subgoals {
		if strings.TrimSpace(sg.Description) == "" {
			continue
		}
		plan = append(plan, Subgoal{
			ID:          NewID(),
			Description: strings.TrimSpace(sg.Description),
			Status:      SubgoalNotStarted,
		})
	}
	if len(plan) == 0 {
		return StateDelta{}, &ErrPlanning{Reason: "model returned only blank subgoals"}
	}

	mode := "planned"
	if replan {
		mode = "replanned"
	}
	thought := fmt.Sprintf("Planner %s %d subgoal(s):\n%s", mode, len(plan), FormatPlan(plan))
	p.env.notify(NodePlanner, thought)
	return StateDelta{
		SubgoalPlan: plan,
		Thoughts:    []string{thought},
	}, nil
}

// tailStrings returns the last n entries of xs.
func tailStrings(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
