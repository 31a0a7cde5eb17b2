package mobpilot

import (
	"fmt"
	"strings"
)

// SubgoalStatus is the lifecycle state of a subgoal. Legal transitions are
// NotStarted → Running → Success | Failure; completed subgoals never change
// again.
type SubgoalStatus string

const (
	SubgoalNotStarted SubgoalStatus = "not_started"
	SubgoalRunning    SubgoalStatus = "running"
	SubgoalSuccess    SubgoalStatus = "success"
	SubgoalFailure    SubgoalStatus = "failure"
)

// Completed reports whether the status is terminal.
func (s SubgoalStatus) Completed() bool {
	return s == SubgoalSuccess || s == SubgoalFailure
}

// Subgoal is one step of the Planner's decomposition of the initial goal.
type Subgoal struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      SubgoalStatus `json:"status"`
	// CompletionReason explains why the subgoal ended; empty while pending.
	CompletionReason string `json:"completion_reason,omitempty"`
}

func (sg Subgoal) String() string {
	s := fmt.Sprintf("[%s] %s (%s)", sg.ID, sg.Description, sg.Status)
	if sg.CompletionReason != "" {
		s += ": " + sg.CompletionReason
	}
	return s
}

// NothingStarted reports whether every subgoal is still NotStarted.
func NothingStarted(plan []Subgoal) bool {
	for _, sg := range plan {
		if sg.Status != SubgoalNotStarted {
			return false
		}
	}
	return true
}

// AllCompleted reports whether every subgoal reached a terminal status.
// An empty plan is not completed.
func AllCompleted(plan []Subgoal) bool {
	if len(plan) == 0 {
		return false
	}
	for _, sg := range plan {
		if !sg.Status.Completed() {
			return false
		}
	}
	return true
}

// AnyFailure reports whether any subgoal failed.
func AnyFailure(plan []Subgoal) bool {
	for _, sg := range plan {
		if sg.Status == SubgoalFailure {
			return true
		}
	}
	return false
}

// AllSuccess reports whether the plan is non-empty and every subgoal
// succeeded.
func AllSuccess(plan []Subgoal) bool {
	if len(plan) == 0 {
		return false
	}
	for _, sg := range plan {
		if sg.Status != SubgoalSuccess {
			return false
		}
	}
	return true
}

// CurrentSubgoal returns the single Running subgoal, if any. At most one
// subgoal is ever Running.
func CurrentSubgoal(plan []Subgoal) (Subgoal, bool) {
	for _, sg := range plan {
		if sg.Status == SubgoalRunning {
			return sg, true
		}
	}
	return Subgoal{}, false
}

// StartNextSubgoal marks the first NotStarted subgoal as Running and
// returns the updated plan. It refuses to start a second Running subgoal.
func StartNextSubgoal(plan []Subgoal) ([]Subgoal, bool) {
	if _, running := CurrentSubgoal(plan); running {
		return plan, false
	}
	out := clonePlan(plan)
	for i := range out {
		if out[i].Status == SubgoalNotStarted {
			out[i].Status = SubgoalRunning
			return out, true
		}
	}
	return out, false
}

// CompleteSubgoalsByIDs marks the subgoals with the given ids as Success
// with the shared reason. Unknown ids and already-terminal subgoals are
// left untouched.
func CompleteSubgoalsByIDs(plan []Subgoal, ids []string, reason string) []Subgoal {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := clonePlan(plan)
	for i := range out {
		if want[out[i].ID] && !out[i].Status.Completed() {
			out[i].Status = SubgoalSuccess
			out[i].CompletionReason = reason
		}
	}
	return out
}

// FailCurrentSubgoal marks the Running subgoal as Failure with the given
// reason.
func FailCurrentSubgoal(plan []Subgoal, reason string) []Subgoal {
	out := clonePlan(plan)
	for i := range out {
		if out[i].Status == SubgoalRunning {
			out[i].Status = SubgoalFailure
			out[i].CompletionReason = reason
		}
	}
	return out
}

// FormatPlan renders the plan one subgoal per line for prompts and logs.
func FormatPlan(plan []Subgoal) string {
	var b strings.Builder
	for i, sg := range plan {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(sg.String())
	}
	return b.String()
}

func clonePlan(plan []Subgoal) []Subgoal {
	out := make([]Subgoal, len(plan))
	copy(out, plan)
	return out
}
