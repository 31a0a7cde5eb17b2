package openaicompat

import (
	"encoding/json"

	"github.com/nvasilev/mobpilot"
)

// ParseResponse converts an OpenAI-format ChatResponse to a mobpilot
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (mobpilot.ChatResponse, error) {
	var out mobpilot.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = mobpilot.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to mobpilot ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid argument
// documents degrade to an empty object so the tool layer can reject them
// against the schema.
func ParseToolCalls(tcs []ToolCallRequest) []mobpilot.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]mobpilot.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, mobpilot.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
