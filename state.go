package mobpilot

import (
	"fmt"
	"strings"

	"github.com/nvasilev/mobpilot/ui"
)

// State is the task-scoped blackboard shared by all agents. Nodes never
// mutate it directly: they return a StateDelta and the graph runtime commits
// it through Apply after the node finishes.
type State struct {
	// InitialGoal is the user's natural-language goal. Immutable after task
	// creation.
	InitialGoal string

	// SubgoalPlan is the Planner's current decomposition of the goal.
	SubgoalPlan []Subgoal

	// Screen observation, refreshed by the Contextor each cycle.
	LatestUIHierarchy []ui.Element
	LatestScreenshot  string // base64 PNG, empty when capture failed
	FocusedAppInfo    string // foreground window token, empty when unknown
	DeviceDate        string
	ScreenSize        ui.Size

	// StructuredDecisions is the Cortex's pending decision document for the
	// Executor; empty when none. Cleared once the Executor consumes it.
	StructuredDecisions string

	// CompleteSubgoalIDs carries Cortex-nominated subgoal ids for the
	// Orchestrator to confirm. The Orchestrator clears it on every exit.
	CompleteSubgoalIDs []string

	// AgentThoughts is the append-only human-readable reasoning trail.
	AgentThoughts []string

	// ExecutorMessages is the append-only Executor LLM conversation
	// (assistant turns and tool results).
	ExecutorMessages []ChatMessage

	// CortexLastThought is the Cortex's latest free-text reasoning.
	CortexLastThought string

	// RemainingSteps is the node-execution budget. Managed exclusively by
	// the graph runtime; monotonically non-increasing during a run.
	RemainingSteps int
}

// Snapshot returns a defensive copy of the state with cloned slices.
func (s *State) Snapshot() State {
	out := *s
	out.SubgoalPlan = clonePlan(s.SubgoalPlan)
	out.LatestUIHierarchy = append([]ui.Element(nil), s.LatestUIHierarchy...)
	out.CompleteSubgoalIDs = append([]string(nil), s.CompleteSubgoalIDs...)
	out.AgentThoughts = append([]string(nil), s.AgentThoughts...)
	out.ExecutorMessages = append([]ChatMessage(nil), s.ExecutorMessages...)
	return out
}

// LastThought returns the most recent agent thought, empty when none.
func (s *State) LastThought() string {
	if len(s.AgentThoughts) == 0 {
		return ""
	}
	return s.AgentThoughts[len(s.AgentThoughts)-1]
}

// StateDelta is a typed partial update to the State. The zero value changes
// nothing. Slice fields with append semantics (Thoughts, ExecutorMessages)
// are appended; pointer fields replace the target field when non-nil, which
// lets a node distinguish "no change" from "clear".
type StateDelta struct {
	// Agent records which agent produced the delta. Set by the sanitizer.
	Agent AgentName

	// Replace-semantics fields. Nil means no change.
	SubgoalPlan         []Subgoal
	UIHierarchy         []ui.Element
	Screenshot          *string
	FocusedAppInfo      *string
	DeviceDate          *string
	ScreenSize          *ui.Size
	StructuredDecisions *string
	CompleteSubgoalIDs  *[]string
	CortexLastThought   *string

	// Append-semantics fields.
	Thoughts         []string
	ExecutorMessages []ChatMessage
}

// IsZero reports whether the delta carries no change.
func (d *StateDelta) IsZero() bool {
	return d.SubgoalPlan == nil &&
		d.UIHierarchy == nil &&
		d.Screenshot == nil &&
		d.FocusedAppInfo == nil &&
		d.DeviceDate == nil &&
		d.ScreenSize == nil &&
		d.StructuredDecisions == nil &&
		d.CompleteSubgoalIDs == nil &&
		d.CortexLastThought == nil &&
		len(d.Thoughts) == 0 &&
		len(d.ExecutorMessages) == 0
}

// Merge folds other into d: append fields concatenate, replace fields take
// other's value when set. Used to aggregate parallel tool results into one
// superstep commit.
func (d *StateDelta) Merge(other StateDelta) {
	if other.SubgoalPlan != nil {
		d.SubgoalPlan = other.SubgoalPlan
	}
	if other.UIHierarchy != nil {
		d.UIHierarchy = other.UIHierarchy
	}
	if other.Screenshot != nil {
		d.Screenshot = other.Screenshot
	}
	if other.FocusedAppInfo != nil {
		d.FocusedAppInfo = other.FocusedAppInfo
	}
	if other.DeviceDate != nil {
		d.DeviceDate = other.DeviceDate
	}
	if other.ScreenSize != nil {
		d.ScreenSize = other.ScreenSize
	}
	if other.StructuredDecisions != nil {
		d.StructuredDecisions = other.StructuredDecisions
	}
	if other.CompleteSubgoalIDs != nil {
		d.CompleteSubgoalIDs = other.CompleteSubgoalIDs
	}
	if other.CortexLastThought != nil {
		d.CortexLastThought = other.CortexLastThought
	}
	d.Thoughts = append(d.Thoughts, other.Thoughts...)
	d.ExecutorMessages = append(d.ExecutorMessages, other.ExecutorMessages...)
}

// sanitize normalizes a delta before commit: records the originating agent,
// trims thought whitespace, and drops empty thoughts.
func (d *StateDelta) sanitize(agent AgentName) {
	d.Agent = agent
	thoughts := d.Thoughts[:0]
	for _, t := range d.Thoughts {
		t = strings.TrimSpace(t)
		if t != "" {
			thoughts = append(thoughts, t)
		}
	}
	d.Thoughts = thoughts
}

// Apply commits a sanitized delta to the state, enforcing per-field merge
// rules. It rejects a plan carrying more than one Running subgoal.
func (s *State) Apply(d StateDelta) error {
	if d.SubgoalPlan != nil {
		running := 0
		for _, sg := range d.SubgoalPlan {
			if sg.Status == SubgoalRunning {
				running++
			}
		}
		if running > 1 {
			return fmt.Errorf("agent %s: plan has %d running subgoals, want at most 1", d.Agent, running)
		}
		s.SubgoalPlan = d.SubgoalPlan
	}
	if d.UIHierarchy != nil {
		s.LatestUIHierarchy = d.UIHierarchy
	}
	if d.Screenshot != nil {
		s.LatestScreenshot = *d.Screenshot
	}
	if d.FocusedAppInfo != nil {
		s.FocusedAppInfo = *d.FocusedAppInfo
	}
	if d.DeviceDate != nil {
		s.DeviceDate = *d.DeviceDate
	}
	if d.ScreenSize != nil {
		s.ScreenSize = *d.ScreenSize
	}
	if d.StructuredDecisions != nil {
		s.StructuredDecisions = *d.StructuredDecisions
	}
	if d.CompleteSubgoalIDs != nil {
		s.CompleteSubgoalIDs = append([]string(nil), (*d.CompleteSubgoalIDs)...)
	}
	if d.CortexLastThought != nil {
		s.CortexLastThought = *d.CortexLastThought
	}
	s.AgentThoughts = append(s.AgentThoughts, d.Thoughts...)
	s.ExecutorMessages = append(s.ExecutorMessages, d.ExecutorMessages...)
	return nil
}

// strPtr returns a pointer to s, for StateDelta replace fields.
func strPtr(s string) *string { return &s }
