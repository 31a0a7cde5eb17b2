package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"
)

type tapArgs struct {
	Target Target `json:"target"`
}

type longPressArgs struct {
	Target     Target `json:"target"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// TapTool taps a UI element located by a Target.
func TapTool() *Tool {
	return &Tool{
		Name:        "tap",
		Description: "Tap a UI element. Locate it by resource_id, absolute coordinates, or visible text (tried in that order).",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"target": ` + targetSchema + `},
			"required": ["target"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[tapArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			point, locator, err := resolveTarget(inv.State, args.Target)
			if err != nil {
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.Tap(ctx, point); err != nil {
				return Outcome{
					Message: fmt.Sprintf("tap via %s failed: %v", locator, err),
					Err:     err,
				}
			}
			return Outcome{Message: fmt.Sprintf("Tapped %s at (%d,%d) via %s.", describeTarget(args.Target), point.X, point.Y, locator)}
		},
	}
}

// LongPressTool holds a UI element for a duration (minimum one second).
func LongPressTool() *Tool {
	return &Tool{
		Name:        "long_press_on",
		Description: "Press and hold a UI element. Locate it like tap; duration_ms defaults to 1000 and is never shorter.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"target": ` + targetSchema + `,
				"duration_ms": {"type": "integer", "minimum": 0}
			},
			"required": ["target"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[longPressArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			point, locator, err := resolveTarget(inv.State, args.Target)
			if err != nil {
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.LongPress(ctx, point, args.DurationMS); err != nil {
				return Outcome{
					Message: fmt.Sprintf("long press via %s failed: %v", locator, err),
					Err:     err,
				}
			}
			return Outcome{Message: fmt.Sprintf("Long-pressed %s at (%d,%d).", describeTarget(args.Target), point.X, point.Y)}
		},
	}
}
