package mobpilot

import "context"

// Provider is an LLM backend capable of chat completion with tool calling
// and JSON-schema structured output.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Chat sends a conversation and returns the model's reply. When the
	// request carries a ResponseSchema the Content of the response is a JSON
	// document conforming to it (a null document signals refusal and is
	// treated as a failure by callers).
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// Name returns the provider identifier for logging and telemetry.
	Name() string
}

// StreamingProvider is optionally implemented by providers that can stream
// assistant text deltas. The graph forwards deltas on its messages channel
// when the active provider supports it.
type StreamingProvider interface {
	Provider

	// ChatStream behaves like Chat but additionally delivers incremental
	// text chunks to onDelta as they arrive. onDelta is called from the
	// calling goroutine and must not block.
	ChatStream(ctx context.Context, req ChatRequest, onDelta func(string)) (ChatResponse, error)
}
