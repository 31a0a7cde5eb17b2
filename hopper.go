package mobpilot

import (
	"context"
	"encoding/json"
	"strings"
)

// Hopper is the utility extraction agent: given a request and a blob of
// data, it returns a structured answer. Other components use it for fuzzy
// lookups an exact match cannot solve, such as mapping a user-facing app
// name onto an installed package.
type Hopper struct {
	llm *llmClient
}

// NewHopper creates a Hopper over the given LLM client.
func NewHopper(llm *llmClient) *Hopper {
	return &Hopper{llm: llm}
}

const hopperSystemPrompt = `You extract structured answers from raw data.
You are given a request and a block of data. Answer the request using only
the data. When the data holds no answer, return null for the answer field
and explain why in the reason field.`

// HopperAnswer is the Hopper's generic reply: a nullable answer plus the
// reasoning behind it.
type HopperAnswer struct {
	// Answer is null when the data holds no answer.
	Answer *string `json:"answer"`
	Reason string  `json:"reason"`
}

var hopperAnswerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"answer": {"type": ["string", "null"]},
		"reason": {"type": "string"}
	},
	"required": ["answer", "reason"]
}`)

// Hop answers a free-form extraction request against data. The returned
// answer is nil when the data holds no answer.
func (h *Hopper) Hop(ctx context.Context, request, data string) (HopperAnswer, error) {
	msgs := []ChatMessage{
		SystemMessage(hopperSystemPrompt),
		UserMessage("Request: " + request + "\n\nData:\n" + data),
	}
	return chatStructured[HopperAnswer](ctx, h.llm, AgentHopper, msgs, "hopper_answer", hopperAnswerSchema)
}

// FindPackage maps a user-facing app name onto one of the installed
// packages. Returns ErrPackageNotFound when no package plausibly matches.
func (h *Hopper) FindPackage(ctx context.Context, app string, packages []string) (string, error) {
	ans, err := h.Hop(ctx,
		"Which installed package corresponds to the app named "+quoteForPrompt(app)+
			"? Answer with exactly one package name from the data, or null if none matches.",
		strings.Join(packages, "\n"))
	if err != nil {
		return "", err
	}
	if ans.Answer == nil || strings.TrimSpace(*ans.Answer) == "" {
		return "", &ErrPackageNotFound{App: app}
	}
	pkg := strings.TrimSpace(*ans.Answer)
	for _, p := range packages {
		if p == pkg {
			return pkg, nil
		}
	}
	// The model invented a package that is not installed.
	return "", &ErrPackageNotFound{App: app}
}

// quoteForPrompt quotes a string for prompt interpolation.
func quoteForPrompt(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}
