package mobpilot

import (
	"context"
	"strings"
	"testing"
)

func TestCortexRun_DecisionsForExecutor(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{
			"decisions": [{"action": "tap", "details": "tap the wifi toggle"}],
			"decisions_reason": "the wifi toggle is visible and off",
			"goals_completion_reason": "",
			"complete_subgoals_by_ids": []
		}`}},
	}}
	cx := &Cortex{env: newNodeEnv(t, stub)}

	s := &State{InitialGoal: "enable wifi", SubgoalPlan: reviewPlan()}
	delta, err := cx.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.StructuredDecisions == nil || !strings.Contains(*delta.StructuredDecisions, "wifi toggle") {
		t.Errorf("got decisions %v", delta.StructuredDecisions)
	}
	if delta.CortexLastThought == nil || *delta.CortexLastThought != "the wifi toggle is visible and off" {
		t.Errorf("got last thought %v", delta.CortexLastThought)
	}
	if len(delta.Thoughts) != 1 || delta.Thoughts[0] != "the wifi toggle is visible and off" {
		t.Errorf("got thoughts %v", delta.Thoughts)
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postCortexGate(s); len(got) != 1 || got[0] != routeContinue {
		t.Errorf("got routes %v, want [continue]", got)
	}
}

func TestCortexRun_CompletionNominationCarriesReason(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{
			"decisions": null,
			"decisions_reason": "nothing left to do for this subgoal",
			"goals_completion_reason": "the wifi panel is already open",
			"complete_subgoals_by_ids": ["s2"]
		}`}},
	}}
	cx := &Cortex{env: newNodeEnv(t, stub)}

	s := &State{InitialGoal: "enable wifi", SubgoalPlan: reviewPlan()}
	delta, err := cx.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.CompleteSubgoalIDs == nil || len(*delta.CompleteSubgoalIDs) != 1 || (*delta.CompleteSubgoalIDs)[0] != "s2" {
		t.Errorf("got nominations %v", delta.CompleteSubgoalIDs)
	}
	// The completion reason rides the thought trail into the plan review.
	if len(delta.Thoughts) != 2 {
		t.Fatalf("got thoughts %v", delta.Thoughts)
	}
	note := delta.Thoughts[1]
	if !strings.Contains(note, "s2") || !strings.Contains(note, "the wifi panel is already open") {
		t.Errorf("nomination note %q does not carry the completion reason", note)
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postCortexGate(s); len(got) != 1 || got[0] != routeReviewSubgoals {
		t.Errorf("got routes %v, want [review_subgoals]", got)
	}
	if s.LastThought() != note {
		t.Errorf("completion reason not visible in the thought trail")
	}
}

func TestCortexRun_DecisionsAndNominationsFireBothRoutes(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{
			"decisions": [{"action": "tap", "details": "tap the wifi toggle"}],
			"decisions_reason": "finish the toggle while the panel subgoal closes",
			"goals_completion_reason": "panel reached",
			"complete_subgoals_by_ids": ["s2"]
		}`}},
	}}
	cx := &Cortex{env: newNodeEnv(t, stub)}

	s := &State{InitialGoal: "enable wifi", SubgoalPlan: reviewPlan()}
	delta, err := cx.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	got := postCortexGate(s)
	if len(got) != 2 || got[0] != routeReviewSubgoals || got[1] != routeContinue {
		t.Errorf("got routes %v, want [review_subgoals continue]", got)
	}
}
