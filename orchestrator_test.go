package mobpilot

import (
	"context"
	"testing"

	"github.com/nvasilev/mobpilot/device"
)

// newNodeEnv builds an Env for exercising a single graph node, with the
// given stub answering every LLM call.
func newNodeEnv(t *testing.T, p *stubProvider) *Env {
	t.Helper()
	ps := &ProfileSet{
		Default:  "default",
		Profiles: map[string]Profile{"default": {Name: "default", Provider: "openai", Model: "m"}},
	}
	tools, err := NewToolRegistry(&ToolEnv{}, DefaultTools()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return &Env{
		Device: device.NewController(device.Android),
		LLM:    newLLMClient(ps, stubFactory(map[string]*stubProvider{"default": p}), nil, nil),
		Tools:  tools,
		Logger: nopLogger,
	}
}

// reviewPlan is a plan mid-flight: one done, one running, one queued.
func reviewPlan() []Subgoal {
	return []Subgoal{
		{ID: "s1", Description: "open settings", Status: SubgoalSuccess, CompletionReason: "settings visible"},
		{ID: "s2", Description: "open the wifi panel", Status: SubgoalRunning},
		{ID: "s3", Description: "toggle wifi on", Status: SubgoalNotStarted},
	}
}

func TestOrchestratorRun_FirstVisitStartsFirstSubgoal(t *testing.T) {
	stub := &stubProvider{}
	o := &Orchestrator{env: newNodeEnv(t, stub)}

	s := &State{SubgoalPlan: []Subgoal{
		{ID: "s1", Description: "open settings", Status: SubgoalNotStarted},
		{ID: "s2", Description: "toggle wifi", Status: SubgoalNotStarted},
	}}
	delta, err := o.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("first visit consulted the model %d times", stub.calls)
	}
	if delta.SubgoalPlan == nil || delta.SubgoalPlan[0].Status != SubgoalRunning {
		t.Errorf("first subgoal not started: %+v", delta.SubgoalPlan)
	}
	if delta.CompleteSubgoalIDs == nil || len(*delta.CompleteSubgoalIDs) != 0 {
		t.Errorf("nominations not cleared: %v", delta.CompleteSubgoalIDs)
	}
}

func TestOrchestratorRun_NoNominationsSkipsModel(t *testing.T) {
	stub := &stubProvider{}
	o := &Orchestrator{env: newNodeEnv(t, stub)}

	s := &State{SubgoalPlan: reviewPlan()}
	delta, err := o.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("model consulted %d times with nothing nominated", stub.calls)
	}
	if delta.SubgoalPlan != nil {
		t.Errorf("plan changed without a review: %+v", delta.SubgoalPlan)
	}
	if delta.CompleteSubgoalIDs == nil || len(*delta.CompleteSubgoalIDs) != 0 {
		t.Errorf("nominations not cleared: %v", delta.CompleteSubgoalIDs)
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postOrchestratorGate(s); len(got) != 1 || got[0] != routeContinue {
		t.Errorf("got routes %v, want [continue]", got)
	}
}

func TestOrchestratorRun_ConfirmsNominatedCompletions(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{
			"completed_subgoal_ids": ["s2"],
			"completion_reason": "the wifi panel is open",
			"failed_current": false,
			"failure_reason": ""
		}`}},
	}}
	o := &Orchestrator{env: newNodeEnv(t, stub)}

	s := &State{SubgoalPlan: reviewPlan(), CompleteSubgoalIDs: []string{"s2"}}
	delta, err := o.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("got %d model calls, want 1", stub.calls)
	}

	plan := delta.SubgoalPlan
	if plan[1].Status != SubgoalSuccess || plan[1].CompletionReason != "the wifi panel is open" {
		t.Errorf("nominated subgoal not completed: %+v", plan[1])
	}
	// The next queued subgoal is promoted in the same review.
	if plan[2].Status != SubgoalRunning {
		t.Errorf("next subgoal not started: %+v", plan[2])
	}
}

func TestOrchestratorRun_StuckSubgoalFailsAndRoutesReplan(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{
			"completed_subgoal_ids": [],
			"completion_reason": "",
			"failed_current": true,
			"failure_reason": "the panel never loads"
		}`}},
	}}
	o := &Orchestrator{env: newNodeEnv(t, stub)}

	s := &State{SubgoalPlan: reviewPlan(), CompleteSubgoalIDs: []string{"s2"}}
	delta, err := o.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.SubgoalPlan[1].Status != SubgoalFailure {
		t.Errorf("running subgoal not failed: %+v", delta.SubgoalPlan[1])
	}

	if err := s.Apply(delta); err != nil {
		t.Fatal(err)
	}
	if got := postOrchestratorGate(s); len(got) != 1 || got[0] != routeReplan {
		t.Errorf("got routes %v, want [replan]", got)
	}
}

func TestOrchestratorRun_EmptyPlanOnlyClears(t *testing.T) {
	stub := &stubProvider{}
	o := &Orchestrator{env: newNodeEnv(t, stub)}

	delta, err := o.Run(context.Background(), &State{CompleteSubgoalIDs: []string{"ghost"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("model consulted %d times on an empty plan", stub.calls)
	}
	if delta.CompleteSubgoalIDs == nil || len(*delta.CompleteSubgoalIDs) != 0 {
		t.Errorf("nominations not cleared: %v", delta.CompleteSubgoalIDs)
	}
}
