package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"
)

// FlowStep is one command of a bridge automation flow: a single-key mapping
// of command name to its arguments, serialized as YAML.
type FlowStep map[string]any

// BridgeClient talks to the hardware bridge HTTP API. Every device action
// becomes a one-step YAML flow POSTed to /run-command.
type BridgeClient struct {
	baseURL string
	http    *http.Client

	// SettleAnimations appends a waitForAnimationToEnd step (500 ms
	// timeout) after each action flow.
	SettleAnimations bool
}

// NewBridge creates a client for the bridge at baseURL.
func NewBridge(baseURL string) *BridgeClient {
	return &BridgeClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// RunFlow serializes steps to a YAML flow document and executes it on the
// bridge. dryRun validates the flow without driving the device.
func (b *BridgeClient) RunFlow(ctx context.Context, dryRun bool, steps ...FlowStep) error {
	if b.SettleAnimations {
		steps = append(steps, FlowStep{
			"waitForAnimationToEnd": map[string]any{"timeout": 500},
		})
	}
	doc, err := yaml.Marshal(steps)
	if err != nil {
		return fmt.Errorf("bridge: marshal flow: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"yaml":   string(doc),
		"dryRun": dryRun,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/run-command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.http.Do(req)
	if err != nil {
		return &ErrCommand{Backend: "bridge", Command: flowName(steps), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &ErrCommand{
			Backend: "bridge",
			Command: flowName(steps),
			Detail:  fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail)),
		}
	}
	return nil
}

// flowName names a flow by its first step's command, for error messages.
func flowName(steps []FlowStep) string {
	if len(steps) == 0 {
		return "empty flow"
	}
	for k := range steps[0] {
		return k
	}
	return "empty step"
}
