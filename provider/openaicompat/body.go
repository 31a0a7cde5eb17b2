package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/nvasilev/mobpilot"
)

// BuildBody converts a mobpilot.ChatRequest into an OpenAI-format
// ChatRequest. System messages stay in the messages array as role:"system";
// inline images become image_url content blocks with data URIs.
func BuildBody(req mobpilot.ChatRequest, model string) ChatRequest {
	var msgs []Message

	for _, m := range req.Messages {
		switch {
		case m.Role == mobpilot.RoleAssistant && len(m.ToolCalls) > 0:
			var tcs []ToolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			msg := Message{Role: "assistant", ToolCalls: tcs}
			if m.Content != "" {
				msg.Content = m.Content
			}
			msgs = append(msgs, msg)

		case m.Role == mobpilot.RoleTool:
			// Providers have no error flag on tool results; prefix it in.
			content := m.Content
			if m.Status == mobpilot.ToolError {
				content = "ERROR: " + content
			}
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: m.ToolCallID,
			})

		case len(m.Images) > 0:
			blocks := make([]ContentBlock, 0, len(m.Images)+1)
			if m.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
			}
			for _, img := range m.Images {
				blocks = append(blocks, ContentBlock{
					Type: "image_url",
					ImageURL: &ImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, img.Base64),
					},
				})
			}
			msgs = append(msgs, Message{Role: string(m.Role), Content: blocks})

		default:
			msgs = append(msgs, Message{Role: string(m.Role), Content: m.Content})
		}
	}

	if req.Model != "" {
		model = req.Model
	}
	out := ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		out.Tools = BuildToolDefs(req.Tools)
	}
	if req.ResponseSchema != nil && len(req.ResponseSchema.Schema) > 0 {
		out.ResponseFormat = &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   req.ResponseSchema.Name,
				Schema: req.ResponseSchema.Schema,
				Strict: true,
			},
		}
	}
	return out
}

// BuildToolDefs converts mobpilot ToolDefinitions to OpenAI tool format.
func BuildToolDefs(tools []mobpilot.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
