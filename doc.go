// Package mobpilot drives a live mobile device toward a natural-language
// goal by orchestrating a set of LLM-backed agents.
//
// A caller supplies a goal such as "open the settings app and enable dark
// mode"; mobpilot plans subgoals, observes the device screen, decides on UI
// actions, invokes device control primitives (taps, swipes, text input, app
// launches), and returns either a free-form answer or a structured value.
//
// # Quick Start
//
//	cfg := config.Load("mobpilot.toml")
//	agent := mobpilot.New(cfg, mobpilot.WithProviderFactory(openaicompat.Factory))
//	if err := agent.Init(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer agent.Clean()
//
//	result, err := agent.RunTask(ctx, agent.NewTask("Open https://example.com in the browser").
//		WithMaxSteps(60).
//		Build())
//
// # Core Interfaces
//
// The root package defines the orchestration core:
//
//   - [State] — the task-scoped blackboard shared by all agents
//   - [Graph] — the agent orchestration graph (nodes, conditional edges,
//     deferred convergence, step budget, streaming, cancellation)
//   - [Tool] and [ToolRegistry] — schema-typed device actions the Executor
//     LLM can call
//   - [Provider] — LLM backend (chat, tool calling, structured output)
//   - [Agent] — the task lifecycle surface (Init, RunTask, StopCurrentTask,
//     Clean)
//
// # Included Implementations
//
// Device control: package device (native ADB shell backend with an HTTP
// bridge fallback). UI-tree utilities: package ui. Derived screen API
// service: package screenapi. Providers: provider/openaicompat
// (OpenAI-compatible APIs). Task persistence: store/sqlite (local),
// store/postgres. OTEL instrumentation: package observer.
//
// See the cmd/mobpilot directory for the CLI entry point.
package mobpilot
