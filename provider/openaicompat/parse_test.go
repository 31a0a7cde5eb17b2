package openaicompat

import (
	"testing"
)

func TestParseResponse_ContentAndUsage(t *testing.T) {
	resp, err := ParseResponse(ChatResponse{
		Choices: []Choice{{Message: &ChoiceMessage{Content: "done"}}},
		Usage:   &Usage{PromptTokens: 12, CompletionTokens: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("got content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("got usage %+v", resp.Usage)
	}
}

func TestParseResponse_NoChoices(t *testing.T) {
	resp, err := ParseResponse(ChatResponse{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "" || len(resp.ToolCalls) != 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestParseToolCalls(t *testing.T) {
	calls := ParseToolCalls([]ToolCallRequest{
		{ID: "c1", Function: FunctionCall{Name: "tap", Arguments: `{"x":1}`}},
		{ID: "c2", Function: FunctionCall{Name: "swipe", Arguments: `{"x":`}}, // truncated
	})
	if len(calls) != 2 {
		t.Fatalf("got %d calls", len(calls))
	}
	if calls[0].Name != "tap" || string(calls[0].Args) != `{"x":1}` {
		t.Errorf("got %+v", calls[0])
	}
	// Invalid argument documents degrade to an empty object.
	if string(calls[1].Args) != `{}` {
		t.Errorf("got args %s", calls[1].Args)
	}
	if ParseToolCalls(nil) != nil {
		t.Error("nil input should stay nil")
	}
}
