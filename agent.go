package mobpilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nvasilev/mobpilot/device"
	"github.com/nvasilev/mobpilot/internal/config"
	"github.com/nvasilev/mobpilot/trace"
)

// Agent is the SDK surface: it owns the device connection and runs at most
// one task at a time against it. Starting a new task cancels and joins the
// previous one.
type Agent struct {
	cfg     config.Config
	logger  *slog.Logger
	tracer  Tracer
	store   TaskStore
	factory ProviderFactory

	profiles *ProfileSet
	dev      *device.Controller
	ready    bool

	mu      sync.Mutex
	current *runningTask
}

type runningTask struct {
	task   *Task
	cancel context.CancelFunc
	done   chan struct{}
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithAgentLogger sets the structured logger (default: no output).
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// WithAgentTracer sets the tracer for task, node, LLM, and tool spans.
func WithAgentTracer(t Tracer) AgentOption {
	return func(a *Agent) { a.tracer = t }
}

// WithTaskStore sets the task persistence backend.
func WithTaskStore(s TaskStore) AgentOption {
	return func(a *Agent) { a.store = s }
}

// WithProviderFactory overrides how profiles become Providers. Tests use
// this to swap in fakes.
func WithProviderFactory(f ProviderFactory) AgentOption {
	return func(a *Agent) { a.factory = f }
}

// WithDeviceController injects a pre-built controller, skipping device
// discovery in Init.
func WithDeviceController(d *device.Controller) AgentOption {
	return func(a *Agent) { a.dev = d }
}

// New creates an Agent from configuration. Call Init before running tasks.
func New(cfg config.Config, opts ...AgentOption) *Agent {
	a := &Agent{cfg: cfg, logger: nopLogger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init resolves LLM profiles and connects to the device: on Android the
// first ready ADB device (or the configured serial) with the bridge as
// fallback, on iOS the bridge alone.
func (a *Agent) Init(ctx context.Context) error {
	if a.factory == nil {
		return fmt.Errorf("no provider factory configured: pass WithProviderFactory (e.g. openaicompat.Factory)")
	}
	profiles, err := buildProfiles(a.cfg.LLM)
	if err != nil {
		return err
	}
	a.profiles = profiles

	if a.dev == nil {
		dev, err := a.discoverDevice(ctx)
		if err != nil {
			return err
		}
		a.dev = dev
	}
	a.ready = true
	a.logger.Info("agent initialized", "platform", a.dev.Platform())
	return nil
}

func (a *Agent) discoverDevice(ctx context.Context) (*device.Controller, error) {
	platform := device.Platform(a.cfg.Device.Platform)
	bridge := device.NewBridge(a.cfg.Servers.BridgeURL)
	screen := device.NewScreenClient(a.cfg.Servers.ScreenAPIURL)

	opts := []device.ControllerOption{
		device.WithBridge(bridge),
		device.WithScreen(screen),
		device.WithLogger(a.logger),
	}
	if platform == device.Android {
		adb := device.NewADB(a.cfg.Servers.ADBHost, a.cfg.Servers.ADBPort)
		serial := a.cfg.Device.Serial
		if serial == "" {
			serials, err := adb.Devices(ctx)
			if err != nil {
				return nil, err
			}
			if len(serials) == 0 {
				return nil, &device.ErrUnavailable{Reason: "no ready adb device"}
			}
			serial = serials[0]
		}
		a.logger.Info("using adb device", "serial", serial)
		opts = append(opts, device.WithShell(adb.WithSerial(serial)))
	}
	return device.NewController(platform, opts...), nil
}

// buildProfiles converts the config LLM section into a validated ProfileSet.
func buildProfiles(cfg config.LLMConfig) (*ProfileSet, error) {
	ps := &ProfileSet{
		Profiles: make(map[string]Profile, len(cfg.Profiles)),
		Agents:   make(map[AgentName]string, len(cfg.Agents)),
		Default:  cfg.Default,
	}
	for name, p := range cfg.Profiles {
		ps.Profiles[name] = Profile{
			Name:        name,
			Provider:    normalizeProviderKind(p.Provider),
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey,
			Temperature: p.Temperature,
			Fallback:    p.Fallback,
		}
	}
	for agent, profile := range cfg.Agents {
		ps.Agents[AgentName(agent)] = profile
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return ps, nil
}

// IsHealthy reports whether the screen stream behind the screen API is
// live.
func (a *Agent) IsHealthy(ctx context.Context) bool {
	if !a.ready {
		return false
	}
	screen := device.NewScreenClient(a.cfg.Servers.ScreenAPIURL)
	ok, err := screen.Streaming(ctx)
	return err == nil && ok
}

// Device returns the controller, nil before Init.
func (a *Agent) Device() *device.Controller { return a.dev }

// NewTask starts a task request builder for the given goal.
func (a *Agent) NewTask(goal string) *TaskRequestBuilder {
	return &TaskRequestBuilder{req: TaskRequest{Goal: goal}}
}

// TaskRequestBuilder assembles a TaskRequest fluently.
type TaskRequestBuilder struct {
	req TaskRequest
}

// WithName labels the task.
func (b *TaskRequestBuilder) WithName(name string) *TaskRequestBuilder {
	b.req.Name = name
	return b
}

// WithOutputFormat requires the final answer to conform to a JSON Schema.
func (b *TaskRequestBuilder) WithOutputFormat(schema json.RawMessage) *TaskRequestBuilder {
	b.req.OutputFormat = schema
	return b
}

// WithOutputDescription shapes a free-form final answer.
func (b *TaskRequestBuilder) WithOutputDescription(desc string) *TaskRequestBuilder {
	b.req.OutputDescription = desc
	return b
}

// WithLockedAppPackage pins the task to one app package.
func (b *TaskRequestBuilder) WithLockedAppPackage(pkg string) *TaskRequestBuilder {
	b.req.LockedApp = pkg
	return b
}

// UsingProfile overrides the default LLM profile for every agent.
func (b *TaskRequestBuilder) UsingProfile(name string) *TaskRequestBuilder {
	b.req.Profile = name
	return b
}

// WithMaxSteps sets the graph node-execution budget.
func (b *TaskRequestBuilder) WithMaxSteps(n int) *TaskRequestBuilder {
	b.req.MaxSteps = n
	return b
}

// WithTraceRecording enables per-step trace recording.
func (b *TaskRequestBuilder) WithTraceRecording() *TaskRequestBuilder {
	b.req.RecordTrace = true
	return b
}

// WithStatusCallback observes status transitions.
func (b *TaskRequestBuilder) WithStatusCallback(cb func(TaskStatus)) *TaskRequestBuilder {
	b.req.OnStatus = cb
	return b
}

// WithEventSink receives the graph's stream events.
func (b *TaskRequestBuilder) WithEventSink(sink EventSink) *TaskRequestBuilder {
	b.req.OnEvent = sink
	return b
}

// Build returns the assembled request.
func (b *TaskRequestBuilder) Build() TaskRequest {
	return b.req
}

// RunTask runs one task to completion. A task already in flight is
// cancelled and joined first. The returned result reflects every terminal
// path: success, failure, budget exhaustion, and cancellation.
func (a *Agent) RunTask(ctx context.Context, req TaskRequest) (TaskResult, error) {
	if !a.ready {
		return TaskResult{}, fmt.Errorf("agent not initialized")
	}
	if req.Goal == "" {
		return TaskResult{}, fmt.Errorf("task goal is empty")
	}

	profiles := a.profiles
	if req.Profile != "" {
		if _, err := profiles.ByName(req.Profile); err != nil {
			return TaskResult{}, err
		}
		override := *profiles
		override.Default = req.Profile
		profiles = &override
	}

	deviceID := ""
	if a.cfg.Device.Serial != "" {
		deviceID = a.cfg.Device.Serial
	}
	task := newTask(req, deviceID, a.logger)

	runCtx, cancel := context.WithCancel(ctx)
	rt := &runningTask{task: task, cancel: cancel, done: make(chan struct{})}
	a.takeOver(rt)
	defer func() {
		close(rt.done)
		a.mu.Lock()
		if a.current == rt {
			a.current = nil
		}
		a.mu.Unlock()
		cancel()
	}()

	return a.runTask(runCtx, task, profiles)
}

// takeOver cancels and joins any in-flight task, then installs rt as the
// current one.
func (a *Agent) takeOver(rt *runningTask) {
	for {
		a.mu.Lock()
		prev := a.current
		if prev == nil {
			a.current = rt
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
		a.logger.Info("cancelling previous task", "task_id", prev.task.ID)
		prev.cancel()
		<-prev.done
	}
}

func (a *Agent) runTask(ctx context.Context, task *Task, profiles *ProfileSet) (TaskResult, error) {
	req := task.Request
	result := TaskResult{ID: task.ID}

	var span Span
	if a.tracer != nil {
		ctx, span = a.tracer.Start(ctx, "task.run",
			StringAttr("task_id", task.ID),
			StringAttr("task_name", req.Name))
		defer span.End()
	}

	if a.store != nil {
		if err := a.store.SaveTask(context.WithoutCancel(ctx), task.Record()); err != nil {
			a.logger.Error("task persist failed", "task_id", task.ID, "error", err)
		}
	}

	var recorder *trace.Recorder
	if req.RecordTrace && a.cfg.Trace.Dir != "" {
		var err error
		if recorder, err = trace.NewRecorder(a.cfg.Trace.Dir, req.Name); err != nil {
			a.logger.Error("trace recorder setup failed", "error", err)
			recorder = nil
		}
	}

	env := &Env{
		Device:    a.dev,
		Logger:    a.logger,
		Tracer:    a.tracer,
		LockedApp: req.LockedApp,
	}
	sink := fanOut(req.OnEvent, a.persistenceSink(task, recorder))
	env.emit = sink
	env.LLM = newLLMClient(profiles, a.factory, a.logger, a.tracer)
	env.LLM.onSlow = func(agent AgentName, elapsed time.Duration) {
		env.notify(string(agent), fmt.Sprintf("%s is still thinking (%s)…", agent, elapsed.Round(time.Second)))
	}
	env.Hopper = NewHopper(env.LLM)

	tools, err := NewToolRegistry(&ToolEnv{Device: a.dev, Hopper: env.Hopper, Logger: a.logger}, DefaultTools()...)
	if err != nil {
		return result, err
	}
	tools.SetTracer(a.tracer)
	env.Tools = tools

	task.SetStatus(TaskRunning)
	a.updateStoredStatus(ctx, task, "")

	if req.LockedApp != "" {
		if err := a.prepareAppLock(ctx, req.LockedApp); err != nil {
			return a.finalize(ctx, task, result, recorder, profiles, nil, err)
		}
	}

	state := &State{InitialGoal: req.Goal, RemainingSteps: req.MaxSteps}
	runErr := BuildGraph(env).Run(ctx, state, sink)
	if span != nil && runErr != nil {
		span.Error(runErr)
	}
	return a.finalize(ctx, task, result, recorder, profiles, state, runErr)
}

// prepareAppLock launches the locked app before the run starts.
func (a *Agent) prepareAppLock(ctx context.Context, pkg string) error {
	if err := a.dev.LaunchApp(ctx, pkg); err != nil {
		return err
	}
	focus, err := a.dev.ForegroundApp(ctx)
	if err == nil && focus != "" && !strings.HasPrefix(focus, pkg) {
		a.logger.Warn("locked app did not take focus", "locked_app", pkg, "focus", focus)
	}
	return nil
}

// persistenceSink stores thoughts and trace steps as the graph commits.
func (a *Agent) persistenceSink(task *Task, recorder *trace.Recorder) EventSink {
	return func(ev GraphEvent) {
		switch ev.Mode {
		case StreamUpdates:
			if a.store == nil || ev.Delta == nil {
				return
			}
			for _, thought := range ev.Delta.Thoughts {
				if err := a.store.AppendThought(context.Background(), task.ID, thought); err != nil {
					a.logger.Warn("thought persist failed", "task_id", task.ID, "error", err)
				}
			}
			if recorder != nil {
				for _, thought := range ev.Delta.Thoughts {
					_ = recorder.AppendThought(thought)
				}
			}
		case StreamValues:
			if recorder != nil && ev.Snapshot != nil {
				if err := recorder.RecordStep(ev.Node, ev.Snapshot.LatestScreenshot); err != nil {
					a.logger.Warn("trace step failed", "task_id", task.ID, "error", err)
				}
			}
		}
	}
}

// finalize runs on every terminal path: it settles the status, extracts
// the output on success, and closes persistence and trace recording.
func (a *Agent) finalize(ctx context.Context, task *Task, result TaskResult, recorder *trace.Recorder, profiles *ProfileSet, state *State, runErr error) (TaskResult, error) {
	bg := context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		task.SetStatus(TaskSuccess)
		outputter := NewOutputter(newLLMClient(profiles, a.factory, a.logger, a.tracer), a.logger)
		result.Content, result.Structured = outputter.Extract(bg, state, task.Request.OutputFormat, task.Request.OutputDescription)
		if a.store != nil {
			if err := a.store.SaveOutput(bg, task.ID, result.Content, result.Structured); err != nil {
				a.logger.Error("output persist failed", "task_id", task.ID, "error", err)
			}
		}
	case errors.Is(runErr, context.Canceled):
		task.SetStatus(TaskCancelled)
	default:
		task.SetStatus(TaskFailure)
		if state != nil {
			result.Content = state.LastThought()
		}
	}
	result.Status = task.Status()

	errMsg := ""
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		errMsg = runErr.Error()
	}
	a.updateStoredStatus(bg, task, errMsg)
	if recorder != nil {
		if _, err := recorder.Finalize(runErr == nil); err != nil {
			a.logger.Warn("trace finalize failed", "task_id", task.ID, "error", err)
		}
	}
	a.logger.Info("task finished", "task_id", task.ID, "status", result.Status)
	return result, runErr
}

func (a *Agent) updateStoredStatus(ctx context.Context, task *Task, errMsg string) {
	if a.store == nil {
		return
	}
	if err := a.store.UpdateStatus(context.WithoutCancel(ctx), task.ID, task.Status(), errMsg); err != nil {
		a.logger.Warn("status persist failed", "task_id", task.ID, "error", err)
	}
}

// StopCurrentTask cancels the in-flight task and waits for it to settle.
// Returns false when nothing was running.
func (a *Agent) StopCurrentTask() bool {
	a.mu.Lock()
	rt := a.current
	a.mu.Unlock()
	if rt == nil {
		return false
	}
	rt.cancel()
	<-rt.done
	return true
}

// Clean stops any in-flight task and releases resources.
func (a *Agent) Clean() error {
	a.StopCurrentTask()
	a.ready = false
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
