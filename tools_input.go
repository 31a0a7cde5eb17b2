package mobpilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvasilev/mobpilot/ui"
)

type inputTextArgs struct {
	Target Target `json:"target"`
	Text   string `json:"text"`
}

type clearTextArgs struct {
	Target Target `json:"target"`
}

type eraseArgs struct {
	Count int `json:"count,omitempty"`
}

// defaultClearLength is the minimum number of backspaces a clear issues.
// Extra backspaces on an already-empty field are no-ops.
const defaultClearLength = 50

// InputTextTool focuses a field and types text into it, verifying the
// write by re-reading the screen afterwards.
func InputTextTool() *Tool {
	return &Tool{
		Name: "focus_and_input_text",
		Description: "Focus a text field (by tapping it) and type text into it. " +
			"Use \\n for enter and \\t for tab. The write is verified against the screen afterwards.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"target": ` + targetSchema + `,
				"text": {"type": "string"}
			},
			"required": ["target", "text"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[inputTextArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			point, locator, err := resolveTarget(inv.State, args.Target)
			if err != nil {
				return Outcome{Err: err}
			}
			dev := inv.Env.Device
			if err := dev.Tap(ctx, point); err != nil {
				return Outcome{Message: fmt.Sprintf("could not focus field via %s: %v", locator, err), Err: err}
			}
			// Append rather than overwrite whatever the field holds.
			if err := dev.PressKey(ctx, "move_end"); err != nil {
				return Outcome{Err: err}
			}
			if err := dev.InputText(ctx, args.Text); err != nil {
				return Outcome{Message: fmt.Sprintf("typing into %s failed: %v", describeTarget(args.Target), err), Err: err}
			}
			verified, got := verifyInput(ctx, inv, args.Text)
			if !verified {
				return Outcome{
					Message: fmt.Sprintf("typed text but verification failed: focused field reads %q, expected it to contain %q", got, firstLine(args.Text)),
					Err:     fmt.Errorf("input verification failed"),
				}
			}
			return Outcome{Message: fmt.Sprintf("Typed %q into %s.", args.Text, describeTarget(args.Target))}
		},
	}
}

// verifyInput re-queries the screen and checks the focused element's text
// contains the first typed line. A screen read failure counts as verified;
// the next Contextor pass will surface the real screen.
func verifyInput(ctx context.Context, inv Invocation, text string) (bool, string) {
	data, err := inv.Env.Device.ScreenData(ctx)
	if err != nil {
		return true, ""
	}
	focused, ok := ui.FocusedElement(data.Elements)
	if !ok {
		return true, ""
	}
	want := firstLine(text)
	if want == "" {
		return true, focused.Label()
	}
	return strings.Contains(strings.ToLower(focused.Label()), strings.ToLower(want)), focused.Label()
}

// firstLine returns text up to the first newline or tab.
func firstLine(text string) string {
	if i := strings.IndexAny(text, "\n\t"); i >= 0 {
		return text[:i]
	}
	return text
}

// ClearTextTool focuses a field and erases its current content.
func ClearTextTool() *Tool {
	return &Tool{
		Name:        "focus_and_clear_text",
		Description: "Focus a text field (by tapping it) and erase its current content.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"target": ` + targetSchema + `},
			"required": ["target"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[clearTextArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			point, locator, err := resolveTarget(inv.State, args.Target)
			if err != nil {
				return Outcome{Err: err}
			}
			dev := inv.Env.Device
			if err := dev.Tap(ctx, point); err != nil {
				return Outcome{Message: fmt.Sprintf("could not focus field via %s: %v", locator, err), Err: err}
			}
			if err := dev.PressKey(ctx, "move_end"); err != nil {
				return Outcome{Err: err}
			}
			// Erase as many characters as the field currently shows. When
			// the hierarchy does not expose the field's text, erase enough
			// to clear any plausible content.
			n := currentFieldLength(inv.State, args.Target)
			if n < defaultClearLength {
				n = defaultClearLength
			}
			if err := dev.EraseText(ctx, n); err != nil {
				return Outcome{Message: fmt.Sprintf("erasing %s failed: %v", describeTarget(args.Target), err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Cleared %s.", describeTarget(args.Target))}
		},
	}
}

// currentFieldLength reads the targeted element's visible text length from
// the latest hierarchy snapshot.
func currentFieldLength(s *State, t Target) int {
	if t.ResourceID != "" {
		if el, ok := ui.FindByResourceID(s.LatestUIHierarchy, t.ResourceID, t.Index); ok {
			return len([]rune(el.Label()))
		}
	}
	if t.Text != "" {
		if el, ok := ui.FindByText(s.LatestUIHierarchy, t.Text, t.Index); ok {
			return len([]rune(el.Label()))
		}
	}
	return 0
}

// EraseOneCharTool deletes characters before the cursor.
func EraseOneCharTool() *Tool {
	return &Tool{
		Name:        "erase_one_char",
		Description: "Delete characters before the cursor in the focused field. count defaults to 1.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"count": {"type": "integer", "minimum": 1}}
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[eraseArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			if args.Count <= 0 {
				args.Count = 1
			}
			if err := inv.Env.Device.EraseText(ctx, args.Count); err != nil {
				return Outcome{Message: fmt.Sprintf("erase failed: %v", err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Erased %d character(s).", args.Count)}
		},
	}
}
