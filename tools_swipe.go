package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nvasilev/mobpilot/device"
	"github.com/nvasilev/mobpilot/ui"
)

type swipeArgs struct {
	Mode       device.SwipeMode `json:"mode"`
	Direction  string           `json:"direction,omitempty"`
	Start      *ui.Point        `json:"start,omitempty"`
	End        *ui.Point        `json:"end,omitempty"`
	StartPct   *ui.PercentPoint `json:"start_percent,omitempty"`
	EndPct     *ui.PercentPoint `json:"end_percent,omitempty"`
	DurationMS int              `json:"duration_ms,omitempty"`
}

const pointSchema = `{
	"type": "object",
	"properties": {
		"x": {"type": "integer", "minimum": 0},
		"y": {"type": "integer", "minimum": 0}
	},
	"required": ["x", "y"]
}`

const percentPointSchema = `{
	"type": "object",
	"properties": {
		"x_percent": {"type": "number", "minimum": 0, "maximum": 1},
		"y_percent": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["x_percent", "y_percent"]
}`

func (a swipeArgs) toRequest() (device.SwipeRequest, error) {
	req := device.SwipeRequest{Mode: a.Mode, DurationMS: a.DurationMS}
	switch a.Mode {
	case device.SwipeDirectional:
		req.Direction = device.Direction(a.Direction)
		if req.Direction == "" {
			return req, fmt.Errorf("directional swipe needs a direction")
		}
	case device.SwipeCoordinates:
		if a.Start == nil || a.End == nil {
			return req, fmt.Errorf("coordinate swipe needs start and end")
		}
		req.Start, req.End = *a.Start, *a.End
	case device.SwipePercentages:
		if a.StartPct == nil || a.EndPct == nil {
			return req, fmt.Errorf("percentage swipe needs start_percent and end_percent")
		}
		req.StartPct, req.EndPct = *a.StartPct, *a.EndPct
	default:
		return req, fmt.Errorf("unknown swipe mode %q", a.Mode)
	}
	return req, nil
}

func runSwipe(ctx context.Context, inv Invocation, args swipeArgs, label string) Outcome {
	req, err := args.toRequest()
	if err != nil {
		return Outcome{Err: err}
	}
	if err := inv.Env.Device.Swipe(ctx, req); err != nil {
		return Outcome{Message: fmt.Sprintf("swipe (%s) failed: %v", label, err), Err: err}
	}
	return Outcome{Message: fmt.Sprintf("Swiped (%s).", label)}
}

// SwipeTool performs a swipe described by a tagged union of directional,
// pixel-coordinate, or percentage forms.
func SwipeTool() *Tool {
	return &Tool{
		Name: "swipe",
		Description: "Swipe the screen. mode selects the form: " +
			"'directional' with direction up/down/left/right, " +
			"'coordinates' with start/end pixel points, or " +
			"'percentages' with start_percent/end_percent points in [0,1].",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"mode": {"type": "string", "enum": ["directional", "coordinates", "percentages"]},
				"direction": {"type": "string", "enum": ["up", "down", "left", "right"]},
				"start": ` + pointSchema + `,
				"end": ` + pointSchema + `,
				"start_percent": ` + percentPointSchema + `,
				"end_percent": ` + percentPointSchema + `,
				"duration_ms": {"type": "integer", "minimum": 0}
			},
			"required": ["mode"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[swipeArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			return runSwipe(ctx, inv, args, string(args.Mode))
		},
	}
}

// SwipeDirectionalTool is the flattened directional variant for providers
// that reject union schemas.
func SwipeDirectionalTool() *Tool {
	return &Tool{
		Name:        "swipe_directional",
		Description: "Swipe the screen in a direction: up, down, left, or right.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"direction": {"type": "string", "enum": ["up", "down", "left", "right"]},
				"duration_ms": {"type": "integer", "minimum": 0}
			},
			"required": ["direction"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[swipeArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			args.Mode = device.SwipeDirectional
			return runSwipe(ctx, inv, args, "direction "+args.Direction)
		},
	}
}

// SwipeCoordinatesTool is the flattened pixel-coordinate variant.
func SwipeCoordinatesTool() *Tool {
	return &Tool{
		Name:        "swipe_coordinates",
		Description: "Swipe from one absolute pixel point to another.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"start": ` + pointSchema + `,
				"end": ` + pointSchema + `,
				"duration_ms": {"type": "integer", "minimum": 0}
			},
			"required": ["start", "end"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[swipeArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			args.Mode = device.SwipeCoordinates
			return runSwipe(ctx, inv, args, "coordinates")
		},
	}
}

// SwipePercentagesTool is the flattened screen-percentage variant.
func SwipePercentagesTool() *Tool {
	return &Tool{
		Name:        "swipe_percentages",
		Description: "Swipe between two screen-relative points with components in [0,1].",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"start_percent": ` + percentPointSchema + `,
				"end_percent": ` + percentPointSchema + `,
				"duration_ms": {"type": "integer", "minimum": 0}
			},
			"required": ["start_percent", "end_percent"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[swipeArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			args.Mode = device.SwipePercentages
			return runSwipe(ctx, inv, args, "percentages")
		},
	}
}
