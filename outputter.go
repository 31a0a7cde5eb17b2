package mobpilot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"
)

// Outputter extracts the task's final answer from the finished state:
// either a JSON document conforming to the task's output_format schema, a
// free-form answer shaped by output_description, or simply the last agent
// thought when neither was requested.
type Outputter struct {
	llm    *llmClient
	logger *slog.Logger
}

// NewOutputter creates an Outputter.
func NewOutputter(llm *llmClient, logger *slog.Logger) *Outputter {
	if logger == nil {
		logger = nopLogger
	}
	return &Outputter{llm: llm, logger: logger}
}

const outputterPromptText = `A mobile-device automation task just finished.
Produce the final answer for the user from the run's progress notes. Use
only facts from the notes; say so when the notes hold no answer.
{{if .Description}}
The user asked for the answer in this shape: {{.Description}}
{{end}}
Goal: {{.Goal}}

Progress notes:
{{.Thoughts}}`

var outputterPrompt = template.Must(template.New("outputter").Parse(outputterPromptText))

// Extract produces the task output. Structured extraction that fails
// validation (or fails at all) yields a nil document and a logged error,
// never a task failure.
func (o *Outputter) Extract(ctx context.Context, s *State, outputFormat json.RawMessage, outputDescription string) (string, json.RawMessage) {
	if len(outputFormat) > 0 {
		doc := o.extractStructured(ctx, s, outputFormat)
		return "", doc
	}
	if outputDescription != "" {
		return o.extractText(ctx, s, outputDescription), nil
	}
	return s.LastThought(), nil
}

func (o *Outputter) renderPrompt(s *State, description string) (string, error) {
	var b strings.Builder
	err := outputterPrompt.Execute(&b, map[string]any{
		"Description": description,
		"Goal":        s.InitialGoal,
		"Thoughts":    strings.Join(tailStrings(s.AgentThoughts, 40), "\n"),
	})
	return b.String(), err
}

func (o *Outputter) extractStructured(ctx context.Context, s *State, schema json.RawMessage) json.RawMessage {
	compiled, err := compileSchema("output_format", schema)
	if err != nil {
		o.logger.Error("output_format schema does not compile", "error", err)
		return nil
	}
	prompt, err := o.renderPrompt(s, "")
	if err != nil {
		o.logger.Error("output prompt render failed", "error", err)
		return nil
	}
	msgs := []ChatMessage{SystemMessage(prompt), UserMessage("Produce the final answer now.")}
	doc, err := chatStructured[json.RawMessage](ctx, o.llm, AgentOutputter, msgs, "task_output", schema)
	if err != nil {
		o.logger.Error("structured output extraction failed", "error", err)
		return nil
	}
	if err := validateArgs(compiled, doc); err != nil {
		o.logger.Error("structured output failed validation", "error", err)
		return nil
	}
	return doc
}

func (o *Outputter) extractText(ctx context.Context, s *State, description string) string {
	prompt, err := o.renderPrompt(s, description)
	if err != nil {
		o.logger.Error("output prompt render failed", "error", err)
		return s.LastThought()
	}
	resp, err := o.llm.chat(ctx, AgentOutputter, ChatRequest{
		Messages: []ChatMessage{SystemMessage(prompt), UserMessage("Produce the final answer now.")},
	})
	if err != nil {
		o.logger.Error("output extraction failed", "error", err)
		return s.LastThought()
	}
	return strings.TrimSpace(resp.Content)
}
