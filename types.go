package mobpilot

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolStatus marks a tool-result message as the outcome of a successful or
// failed invocation. Providers that cannot express the distinction fold it
// into the message content.
type ToolStatus string

const (
	ToolOK    ToolStatus = "success"
	ToolError ToolStatus = "error"
)

// ChatMessage is a single message in a conversation with an LLM.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Images holds inline image attachments (device screenshots).
	Images []ImageData `json:"images,omitempty"`

	// ToolCalls is populated on assistant messages that request tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Status are populated on tool-result messages.
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Status     ToolStatus `json:"status,omitempty"`
}

// ImageData is an inline image attachment.
type ImageData struct {
	MIMEType string `json:"mime_type"`
	// Base64 is the base64-encoded image payload, without a data: prefix.
	Base64 string `json:"base64"`
}

// ToolCall is a request from the model to invoke a named tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolDefinition describes a tool to the LLM: its name, what it does, and a
// JSON Schema for its arguments.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResponseSchema binds the model's reply to a JSON document matching the
// given schema. Providers map this onto their structured-output mechanism.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// ChatRequest is a single chat-completion request.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Tools    []ToolDefinition
	// ResponseSchema, when non-nil, requests structured output.
	ResponseSchema *ResponseSchema
	Temperature    *float64
	MaxTokens      int
}

// ChatResponse is the model's reply to a ChatRequest.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage reports token consumption for a single LLM call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns the combined input and output token count.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// UserImageMessage builds a user-role message carrying text plus an inline
// PNG screenshot.
func UserImageMessage(content, pngBase64 string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
		Images:  []ImageData{{MIMEType: "image/png", Base64: pngBase64}},
	}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool-role message answering the given call.
func ToolResultMessage(callID, content string, status ToolStatus) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: callID, Status: status}
}
