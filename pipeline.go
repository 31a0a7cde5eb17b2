package mobpilot

import (
	"context"
	"log/slog"

	"github.com/nvasilev/mobpilot/device"
)

// Graph node names.
const (
	NodePlanner       = "planner"
	NodeOrchestrator  = "orchestrator"
	NodeContextor     = "contextor"
	NodeCortex        = "cortex"
	NodeExecutor      = "executor"
	NodeExecutorTools = "executor_tools"
	NodeSummarizer    = "summarizer"
	NodeConvergence   = "convergence"
)

// Route names used by the conditional gates.
const (
	routeContinue       = "continue"
	routeReplan         = "replan"
	routeEnd            = "end"
	routeReviewSubgoals = "review_subgoals"
	routeInvokeTools    = "invoke_tools"
	routeSkip           = "skip"
)

// Env wires the collaborators the graph agents share for one task run.
type Env struct {
	Device *device.Controller
	LLM    *llmClient
	Tools  *ToolRegistry
	Hopper *Hopper
	Logger *slog.Logger
	Tracer Tracer

	// LockedApp, when set, is the package the task is pinned to; the
	// Contextor relaunches it when focus drifts away.
	LockedApp string

	// emit carries custom-channel events (progress notices) to the caller.
	emit EventSink
}

// notify publishes a progress notice on the custom channel.
func (e *Env) notify(node, text string) {
	emitTo(e.emit, GraphEvent{Mode: StreamCustom, Node: node, Text: text})
}

// BuildGraph assembles the agent orchestration graph:
//
//	planner → orchestrator
//	orchestrator → contextor (continue) | planner (replan) | convergence (end)
//	contextor → cortex
//	cortex → executor (continue) and/or orchestrator (review_subgoals)
//	executor → executor_tools (invoke_tools) | summarizer (skip)
//	executor_tools → summarizer → convergence
//	convergence (deferred) → contextor (continue) | END
func BuildGraph(env *Env) *Graph {
	if env.Logger == nil {
		env.Logger = nopLogger
	}
	g := NewGraph(GraphLogger(env.Logger), GraphTracer(env.Tracer))

	g.AddNode(NodePlanner, (&Planner{env: env}).Run)
	g.AddNode(NodeOrchestrator, (&Orchestrator{env: env}).Run)
	g.AddNode(NodeContextor, (&Contextor{env: env}).Run)
	g.AddNode(NodeCortex, (&Cortex{env: env}).Run)
	g.AddNode(NodeExecutor, (&Executor{env: env}).Run)
	g.AddNode(NodeExecutorTools, (&ExecutorTools{env: env}).Run)
	g.AddNode(NodeSummarizer, (&Summarizer{env: env}).Run)
	g.AddNode(NodeConvergence, convergenceNode, NodeDeferred())

	g.SetEntry(NodePlanner)
	g.AddEdge(NodePlanner, NodeOrchestrator)
	g.AddConditionalEdges(NodeOrchestrator, postOrchestratorGate, map[string]string{
		routeContinue: NodeContextor,
		routeReplan:   NodePlanner,
		routeEnd:      NodeConvergence,
	})
	g.AddEdge(NodeContextor, NodeCortex)
	g.AddConditionalEdges(NodeCortex, postCortexGate, map[string]string{
		routeContinue:       NodeExecutor,
		routeReviewSubgoals: NodeOrchestrator,
	})
	g.AddConditionalEdges(NodeExecutor, postExecutorGate, map[string]string{
		routeInvokeTools: NodeExecutorTools,
		routeSkip:        NodeSummarizer,
	})
	g.AddEdge(NodeExecutorTools, NodeSummarizer)
	g.AddEdge(NodeSummarizer, NodeConvergence)
	g.AddConditionalEdges(NodeConvergence, convergenceGate, map[string]string{
		routeContinue: NodeContextor,
		routeEnd:      GraphEnd,
	})
	return g
}

// postOrchestratorGate routes after subgoal review: any failed subgoal
// forces a replan, a fully successful or stalled plan ends the run, and a
// running subgoal continues the cycle.
func postOrchestratorGate(s *State) []string {
	plan := s.SubgoalPlan
	switch {
	case AnyFailure(plan):
		return []string{routeReplan}
	case AllSuccess(plan):
		return []string{routeEnd}
	default:
		if _, running := CurrentSubgoal(plan); !running {
			return []string{routeEnd}
		}
		return []string{routeContinue}
	}
}

// postCortexGate routes after the decision step. Subgoal-completion
// nominations (or an absent decision document) send the flow back through
// the Orchestrator; a decision document sends it on to the Executor. Both
// routes fire together when the Cortex nominated completions and still has
// work for the Executor.
func postCortexGate(s *State) []string {
	var routes []string
	if len(s.CompleteSubgoalIDs) > 0 || s.StructuredDecisions == "" {
		routes = append(routes, routeReviewSubgoals)
	}
	if s.StructuredDecisions != "" {
		routes = append(routes, routeContinue)
	}
	return routes
}

// postExecutorGate inspects the Executor's last message: tool calls go to
// the tool node, anything else skips straight to the Summarizer.
func postExecutorGate(s *State) []string {
	if n := len(s.ExecutorMessages); n > 0 && len(s.ExecutorMessages[n-1].ToolCalls) > 0 {
		return []string{routeInvokeTools}
	}
	return []string{routeSkip}
}

// convergenceNode is the deferred join point of each superstep wave. It
// changes nothing; its conditional edge decides whether the run loops.
func convergenceNode(ctx context.Context, s *State) (StateDelta, error) {
	return StateDelta{}, nil
}

// convergenceGate ends the run once every subgoal reached a terminal
// status and loops back to observation otherwise.
func convergenceGate(s *State) []string {
	if AllCompleted(s.SubgoalPlan) {
		return []string{routeEnd}
	}
	return []string{routeContinue}
}
