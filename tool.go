package mobpilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nvasilev/mobpilot/device"
)

// maxParallelTools bounds concurrent tool executions within one
// ExecutorTools superstep.
const maxParallelTools = 10

// ToolEnv carries the collaborators a tool may use.
type ToolEnv struct {
	Device *device.Controller
	Hopper *Hopper
	Logger *slog.Logger
}

// Invocation is one validated tool call against a state snapshot.
type Invocation struct {
	Env   *ToolEnv
	State *State
	Call  ToolCall
}

// Outcome is what a tool produced. A non-nil Err marks the call failed; the
// registry folds Message/Err into the tool-result message and agent thought.
type Outcome struct {
	// Message is the tool-result content handed back to the Executor LLM.
	// On error it is derived from Err when empty.
	Message string
	// Thought is the user-facing progress line; Message is reused when empty.
	Thought string
	// Delta carries extra state changes beyond the standard messages.
	Delta StateDelta
	Err   error
}

// Tool is one schema-typed device action the Executor LLM can call.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON Schema for the tool's arguments.
	Schema json.RawMessage
	// Run executes the call. Args in inv.Call.Args are already validated
	// against Schema.
	Run func(ctx context.Context, inv Invocation) Outcome

	compiled *jsonschema.Schema
}

// ToolRegistry holds the tool set exposed to the Executor and dispatches
// tool calls, in parallel when a superstep carries several.
type ToolRegistry struct {
	env    *ToolEnv
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
	tracer Tracer
}

// NewToolRegistry compiles every tool's argument schema and builds the
// registry. Duplicate or schema-invalid tools are an error.
func NewToolRegistry(env *ToolEnv, tools ...*Tool) (*ToolRegistry, error) {
	if env.Logger == nil {
		env.Logger = nopLogger
	}
	r := &ToolRegistry{
		env:    env,
		tools:  make(map[string]*Tool, len(tools)),
		logger: env.Logger,
	}
	for _, t := range tools {
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		compiled, err := compileSchema(t.Name, t.Schema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		t.compiled = compiled
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// SetTracer attaches a tracer for per-call spans.
func (r *ToolRegistry) SetTracer(t Tracer) { r.tracer = t }

// Names returns the tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the tool descriptions bound onto Executor requests.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return defs
}

// ExecuteAll runs the calls of one assistant turn and returns the merged
// delta, tool results ordered as the calls were. Multiple calls run on a
// bounded worker pool; a cancelled context stops dispatching.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, s *State, calls []ToolCall) StateDelta {
	if len(calls) == 1 {
		return r.ExecuteCall(ctx, s, calls[0])
	}
	deltas := make([]StateDelta, len(calls))
	sem := make(chan struct{}, maxParallelTools)
	var wg sync.WaitGroup
	for i, call := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			deltas[i] = r.ExecuteCall(ctx, s, call)
		}(i, call)
	}
	wg.Wait()
	var merged StateDelta
	for _, d := range deltas {
		merged.Merge(d)
	}
	return merged
}

// ExecuteCall runs one tool call: unknown tools and schema violations
// produce error tool results rather than aborting the run.
func (r *ToolRegistry) ExecuteCall(ctx context.Context, s *State, call ToolCall) StateDelta {
	t, ok := r.tools[call.Name]
	if !ok {
		return r.failure(call, fmt.Sprintf("unknown tool %q", call.Name))
	}
	if err := validateArgs(t.compiled, call.Args); err != nil {
		return r.failure(call, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
	}

	if r.tracer != nil {
		var span Span
		ctx, span = r.tracer.Start(ctx, "tool.execute",
			StringAttr("tool", call.Name),
			StringAttr("call_id", call.ID))
		defer span.End()
	}

	out := r.safeRun(ctx, t, Invocation{Env: r.env, State: s, Call: call})
	if out.Err != nil {
		r.logger.Warn("tool failed", "tool", call.Name, "error", out.Err)
		msg := out.Message
		if msg == "" {
			msg = out.Err.Error()
		}
		delta := out.Delta
		delta.ExecutorMessages = append(delta.ExecutorMessages, ToolResultMessage(call.ID, msg, ToolError))
		delta.Thoughts = append(delta.Thoughts, msg)
		return delta
	}
	thought := out.Thought
	if thought == "" {
		thought = out.Message
	}
	r.logger.Debug("tool completed", "tool", call.Name)
	delta := out.Delta
	delta.ExecutorMessages = append(delta.ExecutorMessages, ToolResultMessage(call.ID, out.Message, ToolOK))
	delta.Thoughts = append(delta.Thoughts, thought)
	return delta
}

// safeRun converts a tool panic into a failed outcome.
func (r *ToolRegistry) safeRun(ctx context.Context, t *Tool, inv Invocation) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{Err: fmt.Errorf("tool %s panicked: %v", t.Name, rec)}
		}
	}()
	return t.Run(ctx, inv)
}

func (r *ToolRegistry) failure(call ToolCall, msg string) StateDelta {
	r.logger.Warn("tool call rejected", "tool", call.Name, "reason", msg)
	return StateDelta{
		ExecutorMessages: []ChatMessage{ToolResultMessage(call.ID, msg, ToolError)},
		Thoughts:         []string{msg},
	}
}

// compileSchema compiles a JSON Schema document under a synthetic URI.
func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	uri := "mobpilot://tools/" + name + ".json"
	if err := compiler.AddResource(uri, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(uri)
}

// validateArgs checks a raw argument document against a compiled schema.
// Missing args are validated as an empty object.
func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}

// decodeArgs unmarshals validated tool arguments into a typed struct.
func decodeArgs[T any](call ToolCall) (T, error) {
	var args T
	raw := call.Args
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("decode %s arguments: %w", call.Name, err)
	}
	return args, nil
}
