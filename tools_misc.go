package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type openLinkArgs struct {
	URL string `json:"url"`
}

type pressKeyArgs struct {
	Key string `json:"key"`
}

type waitArgs struct {
	DurationMS int `json:"duration_ms"`
}

// OpenLinkTool opens a URL with the platform handler.
func OpenLinkTool() *Tool {
	return &Tool{
		Name:        "open_link",
		Description: "Open a URL (https://…, or an app deep link) with the platform default handler.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"url": {"type": "string", "minLength": 1}},
			"required": ["url"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[openLinkArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.OpenLink(ctx, args.URL); err != nil {
				return Outcome{Message: fmt.Sprintf("opening %s failed: %v", args.URL, err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Opened %s.", args.URL)}
		},
	}
}

// BackTool presses the platform back control.
func BackTool() *Tool {
	return &Tool{
		Name:        "back",
		Description: "Press the platform back control.",
		Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			if err := inv.Env.Device.Back(ctx); err != nil {
				return Outcome{Message: fmt.Sprintf("back failed: %v", err), Err: err}
			}
			return Outcome{Message: "Pressed back."}
		},
	}
}

// PressKeyTool presses a logical device key.
func PressKeyTool() *Tool {
	return &Tool{
		Name:        "press_key",
		Description: "Press a device key: home, back, enter, delete, tab, power, volume_up, volume_down, app_switch.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"key": {"type": "string", "enum": ["home", "back", "enter", "delete", "tab", "power", "volume_up", "volume_down", "app_switch"]}
			},
			"required": ["key"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[pressKeyArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.PressKey(ctx, args.Key); err != nil {
				return Outcome{Message: fmt.Sprintf("pressing %s failed: %v", args.Key, err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Pressed %s.", args.Key)}
		},
	}
}

// WaitTool pauses between actions, e.g. while an animation or page load
// settles.
func WaitTool() *Tool {
	return &Tool{
		Name:        "wait_for_delay",
		Description: "Wait for a fixed delay in milliseconds before the next action.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"duration_ms": {"type": "integer", "minimum": 1, "maximum": 30000}},
			"required": ["duration_ms"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[waitArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			if err := sleepCtx(ctx, time.Duration(args.DurationMS)*time.Millisecond); err != nil {
				return Outcome{Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Waited %d ms.", args.DurationMS)}
		},
	}
}

// DefaultTools returns the canonical tool set in its stable order.
func DefaultTools() []*Tool {
	return []*Tool{
		TapTool(),
		LongPressTool(),
		SwipeTool(),
		SwipeDirectionalTool(),
		SwipeCoordinatesTool(),
		SwipePercentagesTool(),
		InputTextTool(),
		ClearTextTool(),
		EraseOneCharTool(),
		LaunchAppTool(),
		StopAppTool(),
		OpenLinkTool(),
		BackTool(),
		PressKeyTool(),
		WaitTool(),
	}
}
