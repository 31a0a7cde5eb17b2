package openaicompat

import (
	"encoding/json"
	"testing"

	"github.com/nvasilev/mobpilot"
)

func TestBuildBody_PlainMessages(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{
		Messages: []mobpilot.ChatMessage{
			mobpilot.SystemMessage("be brief"),
			mobpilot.UserMessage("hello"),
		},
	}, "gpt-4o-mini")

	if body.Model != "gpt-4o-mini" {
		t.Errorf("got model %q", body.Model)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("got %d messages", len(body.Messages))
	}
	if body.Messages[0].Role != "system" || body.Messages[0].Content != "be brief" {
		t.Errorf("got %+v", body.Messages[0])
	}
	if body.Messages[1].Role != "user" {
		t.Errorf("got %+v", body.Messages[1])
	}
}

func TestBuildBody_RequestModelOverrides(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{Model: "gpt-4.1"}, "gpt-4o-mini")
	if body.Model != "gpt-4.1" {
		t.Errorf("got %q, want the request model", body.Model)
	}
}

func TestBuildBody_ToolErrorPrefix(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{
		Messages: []mobpilot.ChatMessage{
			{Role: mobpilot.RoleTool, Content: "element not found", ToolCallID: "c1", Status: mobpilot.ToolError},
			{Role: mobpilot.RoleTool, Content: "tapped", ToolCallID: "c2", Status: mobpilot.ToolOK},
		},
	}, "m")

	if got := body.Messages[0].Content; got != "ERROR: element not found" {
		t.Errorf("got %q", got)
	}
	if body.Messages[0].ToolCallID != "c1" {
		t.Errorf("got tool_call_id %q", body.Messages[0].ToolCallID)
	}
	if got := body.Messages[1].Content; got != "tapped" {
		t.Errorf("success result mutated: %q", got)
	}
}

func TestBuildBody_AssistantToolCalls(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{
		Messages: []mobpilot.ChatMessage{
			{
				Role:    mobpilot.RoleAssistant,
				Content: "tapping now",
				ToolCalls: []mobpilot.ToolCall{
					{ID: "c1", Name: "tap", Args: json.RawMessage(`{"x":1}`)},
				},
			},
		},
	}, "m")

	msg := body.Messages[0]
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "c1" || tc.Type != "function" || tc.Function.Name != "tap" {
		t.Errorf("got %+v", tc)
	}
	if tc.Function.Arguments != `{"x":1}` {
		t.Errorf("got arguments %q", tc.Function.Arguments)
	}
	if msg.Content != "tapping now" {
		t.Errorf("got content %v", msg.Content)
	}
}

func TestBuildBody_ImagesBecomeDataURIs(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{
		Messages: []mobpilot.ChatMessage{
			{
				Role:    mobpilot.RoleUser,
				Content: "what is on screen?",
				Images:  []mobpilot.ImageData{{MIMEType: "image/png", Base64: "aGk="}},
			},
		},
	}, "m")

	blocks, ok := body.Messages[0].Content.([]ContentBlock)
	if !ok {
		t.Fatalf("content is %T, want []ContentBlock", body.Messages[0].Content)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[0].Text != "what is on screen?" {
		t.Errorf("got %+v", blocks[0])
	}
	if blocks[1].Type != "image_url" || blocks[1].ImageURL.URL != "data:image/png;base64,aGk=" {
		t.Errorf("got %+v", blocks[1])
	}
}

func TestBuildBody_ResponseSchema(t *testing.T) {
	body := BuildBody(mobpilot.ChatRequest{
		ResponseSchema: &mobpilot.ResponseSchema{
			Name:   "plan",
			Schema: json.RawMessage(`{"type":"object"}`),
		},
	}, "m")

	rf := body.ResponseFormat
	if rf == nil || rf.Type != "json_schema" {
		t.Fatalf("got %+v", rf)
	}
	if rf.JSONSchema.Name != "plan" || !rf.JSONSchema.Strict {
		t.Errorf("got %+v", rf.JSONSchema)
	}
}

func TestBuildToolDefs_EmptyParametersBecomeObject(t *testing.T) {
	defs := BuildToolDefs([]mobpilot.ToolDefinition{
		{Name: "back", Description: "press back"},
	})
	if len(defs) != 1 || defs[0].Type != "function" {
		t.Fatalf("got %+v", defs)
	}
	if string(defs[0].Function.Parameters) != `{}` {
		t.Errorf("got parameters %s", defs[0].Function.Parameters)
	}
}
