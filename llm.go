package mobpilot

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// slowCallNotice is how long an LLM call may run before a non-fatal
// slow-call notification is emitted. The call itself keeps running.
const slowCallNotice = 10 * time.Second

// discardHandler is a slog.Handler that drops all records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var nopLogger = slog.New(discardHandler{})

// llmClient resolves per-agent profiles to providers and runs structured
// and free-form LLM calls with slow-call notification and one fallback
// retry.
type llmClient struct {
	profiles *ProfileSet
	cache    *providerCache
	logger   *slog.Logger
	tracer   Tracer

	// onSlow, when set, receives a notice when a call outlives
	// slowCallNotice. Used to surface "still thinking" progress to the
	// graph's custom channel.
	onSlow func(agent AgentName, elapsed time.Duration)
}

func newLLMClient(profiles *ProfileSet, factory ProviderFactory, logger *slog.Logger, tracer Tracer) *llmClient {
	if logger == nil {
		logger = nopLogger
	}
	return &llmClient{
		profiles: profiles,
		cache:    newProviderCache(factory),
		logger:   logger,
		tracer:   tracer,
	}
}

// chat runs a free-form chat call for the given agent, retrying once on the
// profile's declared fallback when the primary call errors.
func (c *llmClient) chat(ctx context.Context, agent AgentName, req ChatRequest) (ChatResponse, error) {
	profile, err := c.profiles.For(agent)
	if err != nil {
		return ChatResponse{}, err
	}
	resp, err := c.callProfile(ctx, agent, profile, req)
	if err == nil {
		return resp, nil
	}
	if fb, fbErr := c.fallbackOf(profile); fbErr == nil {
		c.logger.Warn("llm call failed, retrying on fallback profile",
			"agent", agent, "profile", profile.Name, "fallback", fb.Name, "error", err)
		return c.callProfile(ctx, agent, fb, req)
	}
	return ChatResponse{}, err
}

// chatStream behaves like chat but forwards incremental text deltas to
// onDelta when the resolved provider supports streaming. The fallback
// retry only applies before any delta was emitted.
func (c *llmClient) chatStream(ctx context.Context, agent AgentName, req ChatRequest, onDelta func(string)) (ChatResponse, error) {
	profile, err := c.profiles.For(agent)
	if err != nil {
		return ChatResponse{}, err
	}
	prov, err := c.cache.get(profile)
	if err != nil {
		return ChatResponse{}, err
	}
	sp, ok := prov.(StreamingProvider)
	if !ok || onDelta == nil {
		return c.chat(ctx, agent, req)
	}
	req.Model = profile.Model
	if req.Temperature == nil {
		req.Temperature = profile.Temperature
	}
	start := time.Now()
	stopNotice := c.startSlowNotice(ctx, agent, start)
	defer stopNotice()
	var started bool
	resp, err := sp.ChatStream(ctx, req, func(delta string) {
		started = true
		onDelta(delta)
	})
	if err == nil {
		return resp, nil
	}
	if started {
		return ChatResponse{}, &ErrLLM{Provider: prov.Name(), Message: "stream failed mid-reply", Err: err}
	}
	if fb, fbErr := c.fallbackOf(profile); fbErr == nil {
		c.logger.Warn("streaming llm call failed, retrying on fallback profile",
			"agent", agent, "profile", profile.Name, "fallback", fb.Name, "error", err)
		return c.callProfile(ctx, agent, fb, req)
	}
	return ChatResponse{}, &ErrLLM{Provider: prov.Name(), Message: "chat call failed", Err: err}
}

// callProfile runs one chat call against one profile, emitting a slow-call
// notice if it outlives slowCallNotice.
func (c *llmClient) callProfile(ctx context.Context, agent AgentName, profile Profile, req ChatRequest) (ChatResponse, error) {
	prov, err := c.cache.get(profile)
	if err != nil {
		return ChatResponse{}, err
	}
	req.Model = profile.Model
	if req.Temperature == nil {
		req.Temperature = profile.Temperature
	}

	var span Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "llm.chat",
			StringAttr("agent", string(agent)),
			StringAttr("profile", profile.Name),
			StringAttr("model", profile.Model))
		defer span.End()
	}

	start := time.Now()
	stopNotice := c.startSlowNotice(ctx, agent, start)
	resp, err := prov.Chat(ctx, req)
	stopNotice()

	if span != nil {
		if err != nil {
			span.Error(err)
		} else {
			span.SetAttr(
				IntAttr("tokens.input", resp.Usage.InputTokens),
				IntAttr("tokens.output", resp.Usage.OutputTokens))
		}
	}
	if err != nil {
		return ChatResponse{}, &ErrLLM{Provider: prov.Name(), Message: "chat call failed", Err: err}
	}
	c.logger.Debug("llm call completed",
		"agent", agent,
		"model", profile.Model,
		"duration", time.Since(start),
		"tokens", resp.Usage.TotalTokens())
	return resp, nil
}

// startSlowNotice arms a one-shot timer that fires onSlow if the call is
// still running after slowCallNotice. The returned stop func must be called
// when the call returns.
func (c *llmClient) startSlowNotice(ctx context.Context, agent AgentName, start time.Time) func() {
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(slowCallNotice)
		defer timer.Stop()
		select {
		case <-timer.C:
			elapsed := time.Since(start)
			c.logger.Warn("llm call is slow", "agent", agent, "elapsed", elapsed)
			if c.onSlow != nil {
				c.onSlow(agent, elapsed)
			}
		case <-done:
		case <-ctx.Done():
		}
	}()
	return func() { close(done) }
}

func (c *llmClient) fallbackOf(p Profile) (Profile, error) {
	if p.Fallback == "" {
		return Profile{}, &ErrProfileNotFound{Name: ""}
	}
	return c.profiles.ByName(p.Fallback)
}

// chatStructured runs a structured-output call for agent and decodes the
// JSON reply into T. A null or empty document counts as a failed attempt;
// the call is retried once on the profile's fallback before giving up.
func chatStructured[T any](ctx context.Context, c *llmClient, agent AgentName, msgs []ChatMessage, schemaName string, schema json.RawMessage) (T, error) {
	var zero T
	profile, err := c.profiles.For(agent)
	if err != nil {
		return zero, err
	}
	req := ChatRequest{
		Messages:       msgs,
		ResponseSchema: &ResponseSchema{Name: schemaName, Schema: schema},
	}

	out, err := structuredAttempt[T](ctx, c, agent, profile, req)
	if err == nil {
		return out, nil
	}
	if fb, fbErr := c.fallbackOf(profile); fbErr == nil {
		c.logger.Warn("structured llm call failed, retrying on fallback profile",
			"agent", agent, "profile", profile.Name, "fallback", fb.Name, "error", err)
		return structuredAttempt[T](ctx, c, agent, fb, req)
	}
	return zero, err
}

func structuredAttempt[T any](ctx context.Context, c *llmClient, agent AgentName, profile Profile, req ChatRequest) (T, error) {
	var zero T
	resp, err := c.callProfile(ctx, agent, profile, req)
	if err != nil {
		return zero, err
	}
	doc := bytes.TrimSpace([]byte(resp.Content))
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return zero, &ErrLLM{Provider: profile.Provider, Message: "structured output was null"}
	}
	var out T
	if err := json.Unmarshal(doc, &out); err != nil {
		return zero, &ErrLLM{Provider: profile.Provider, Message: "structured output did not decode", Err: err}
	}
	return out, nil
}

// truncateStr shortens s to at most n runes, appending an ellipsis when
// truncation occurred.
func truncateStr(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
