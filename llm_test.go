package mobpilot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// stubFactory hands out pre-built providers by profile name.
func stubFactory(byProfile map[string]*stubProvider) ProviderFactory {
	return func(p Profile) (Provider, error) {
		if prov, ok := byProfile[p.Name]; ok {
			return prov, nil
		}
		return nil, errors.New("no stub for profile " + p.Name)
	}
}

func twoProfileSet() *ProfileSet {
	return &ProfileSet{
		Default: "primary",
		Profiles: map[string]Profile{
			"primary": {Name: "primary", Provider: "openai", Model: "m1", Fallback: "backup"},
			"backup":  {Name: "backup", Provider: "groq", Model: "m2"},
		},
	}
}

func TestLLMChat_Success(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "hi"}}}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	resp, err := c.chat(context.Background(), AgentPlanner, ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("got %q", resp.Content)
	}
}

func TestLLMChat_FallsBackOnError(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{err: errors.New("overloaded")}}}
	backup := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "rescued"}}}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{
		"primary": primary, "backup": backup,
	}), nil, nil)

	resp, err := c.chat(context.Background(), AgentPlanner, ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "rescued" {
		t.Errorf("got %q", resp.Content)
	}
	if backup.calls != 1 {
		t.Errorf("backup called %d times", backup.calls)
	}
}

func TestLLMChat_NoFallbackPropagatesError(t *testing.T) {
	ps := twoProfileSet()
	p := ps.Profiles["primary"]
	p.Fallback = ""
	ps.Profiles["primary"] = p

	primary := &stubProvider{results: []stubResult{{err: errors.New("overloaded")}}}
	c := newLLMClient(ps, stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	_, err := c.chat(context.Background(), AgentPlanner, ChatRequest{})
	var llmErr *ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("got %v, want ErrLLM", err)
	}
}

func TestLLMChat_AppliesProfileModelAndTemperature(t *testing.T) {
	var got ChatRequest
	factory := func(p Profile) (Provider, error) {
		return &funcProvider{chat: func(_ context.Context, req ChatRequest) (ChatResponse, error) {
			got = req
			return ChatResponse{}, nil
		}}, nil
	}
	ps := twoProfileSet()
	temp := 0.2
	p := ps.Profiles["primary"]
	p.Temperature = &temp
	ps.Profiles["primary"] = p

	c := newLLMClient(ps, factory, nil, nil)
	if _, err := c.chat(context.Background(), AgentPlanner, ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if got.Model != "m1" {
		t.Errorf("got model %q", got.Model)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("got temperature %v", got.Temperature)
	}
}

func TestChatStructured_DecodesDocument(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{"answer": "42"}`}},
	}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	type doc struct {
		Answer string `json:"answer"`
	}
	out, err := chatStructured[doc](context.Background(), c, AgentPlanner, nil, "s", json.RawMessage(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "42" {
		t.Errorf("got %+v", out)
	}
}

func TestChatStructured_NullDocumentRetriesOnFallback(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "null"}}}}
	backup := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: `{"answer":"ok"}`}}}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{
		"primary": primary, "backup": backup,
	}), nil, nil)

	type doc struct {
		Answer string `json:"answer"`
	}
	out, err := chatStructured[doc](context.Background(), c, AgentPlanner, nil, "s", json.RawMessage(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "ok" {
		t.Errorf("got %+v", out)
	}
}

func TestChatStructured_UndecodableDocumentFails(t *testing.T) {
	ps := twoProfileSet()
	p := ps.Profiles["primary"]
	p.Fallback = ""
	ps.Profiles["primary"] = p

	primary := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "not json"}}}}
	c := newLLMClient(ps, stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	_, err := chatStructured[map[string]any](context.Background(), c, AgentPlanner, nil, "s", json.RawMessage(`{}`))
	var llmErr *ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("got %v, want ErrLLM", err)
	}
}

func TestChatStream_ForwardsDeltas(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "hello"}, tokens: []string{"hel", "lo"}},
	}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	var deltas []string
	resp, err := c.chatStream(context.Background(), AgentPlanner, ChatRequest{}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" || len(deltas) != 2 {
		t.Errorf("got %q, deltas %v", resp.Content, deltas)
	}
}

func TestChatStream_NoFallbackAfterFirstDelta(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{tokens: []string{"partial"}, err: errors.New("connection reset")},
	}}
	backup := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "rescued"}}}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{
		"primary": primary, "backup": backup,
	}), nil, nil)

	_, err := c.chatStream(context.Background(), AgentPlanner, ChatRequest{}, func(string) {})
	if err == nil {
		t.Fatal("expected mid-stream failure to propagate")
	}
	if backup.calls != 0 {
		t.Errorf("fallback ran after tokens were already streamed")
	}
}

func TestChatStream_NilDeltaFallsBackToChat(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{resp: ChatResponse{Content: "plain"}}}}
	c := newLLMClient(twoProfileSet(), stubFactory(map[string]*stubProvider{"primary": primary}), nil, nil)

	resp, err := c.chatStream(context.Background(), AgentPlanner, ChatRequest{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "plain" {
		t.Errorf("got %q", resp.Content)
	}
}

// funcProvider adapts a func to Provider for request-inspection tests.
type funcProvider struct {
	chat func(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

func (f *funcProvider) Name() string { return "func" }
func (f *funcProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return f.chat(ctx, req)
}
