package mobpilot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func outputterState() *State {
	return &State{
		InitialGoal:   "find the wifi name",
		AgentThoughts: []string{"opened settings", "wifi name is HomeNet"},
	}
}

func newTestOutputter(t *testing.T, primary *stubProvider) *Outputter {
	t.Helper()
	ps := &ProfileSet{
		Default:  "default",
		Profiles: map[string]Profile{"default": {Name: "default", Provider: "openai", Model: "m"}},
	}
	llm := newLLMClient(ps, stubFactory(map[string]*stubProvider{"default": primary}), nil, nil)
	return NewOutputter(llm, nil)
}

func TestExtract_DefaultsToLastThought(t *testing.T) {
	o := newTestOutputter(t, &stubProvider{})

	content, doc := o.Extract(context.Background(), outputterState(), nil, "")
	if content != "wifi name is HomeNet" {
		t.Errorf("got %q", content)
	}
	if doc != nil {
		t.Errorf("got unexpected document %s", doc)
	}
}

func TestExtract_TextAnswer(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "  The network is HomeNet.  "}},
	}}
	o := newTestOutputter(t, primary)

	content, doc := o.Extract(context.Background(), outputterState(), nil, "one sentence")
	if content != "The network is HomeNet." {
		t.Errorf("got %q", content)
	}
	if doc != nil {
		t.Errorf("got unexpected document %s", doc)
	}
}

func TestExtract_TextAnswerFallsBackOnError(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{err: errors.New("down")}}}
	o := newTestOutputter(t, primary)

	content, _ := o.Extract(context.Background(), outputterState(), nil, "one sentence")
	if content != "wifi name is HomeNet" {
		t.Errorf("got %q, want the last thought", content)
	}
}

func TestExtract_StructuredAnswer(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{"ssid": "HomeNet"}`}},
	}}
	o := newTestOutputter(t, primary)

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"ssid": {"type": "string"}},
		"required": ["ssid"]
	}`)
	content, doc := o.Extract(context.Background(), outputterState(), schema, "")
	if content != "" {
		t.Errorf("got content %q alongside a document", content)
	}
	var out struct {
		SSID string `json:"ssid"`
	}
	if err := json.Unmarshal(doc, &out); err != nil || out.SSID != "HomeNet" {
		t.Errorf("got %s, %v", doc, err)
	}
}

func TestExtract_StructuredValidationFailureYieldsNil(t *testing.T) {
	primary := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: `{"ssid": 42}`}},
	}}
	o := newTestOutputter(t, primary)

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"ssid": {"type": "string"}},
		"required": ["ssid"]
	}`)
	_, doc := o.Extract(context.Background(), outputterState(), schema, "")
	if doc != nil {
		t.Errorf("invalid document not discarded: %s", doc)
	}
}

func TestExtract_StructuredErrorYieldsNil(t *testing.T) {
	primary := &stubProvider{results: []stubResult{{err: errors.New("down")}}}
	o := newTestOutputter(t, primary)

	_, doc := o.Extract(context.Background(), outputterState(), json.RawMessage(`{"type":"object"}`), "")
	if doc != nil {
		t.Errorf("got %s, want nil", doc)
	}
}

func TestExtract_BadSchemaYieldsNil(t *testing.T) {
	o := newTestOutputter(t, &stubProvider{})

	_, doc := o.Extract(context.Background(), outputterState(), json.RawMessage(`{"type": 42}`), "")
	if doc != nil {
		t.Errorf("got %s, want nil", doc)
	}
}
