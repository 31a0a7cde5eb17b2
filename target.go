package mobpilot

import (
	"fmt"
	"strings"

	"github.com/nvasilev/mobpilot/ui"
)

// Target locates a UI element for tap-like tools. Locators are tried in
// fallback order: resource id, then explicit coordinates, then visible
// text. At least one locator must be set.
type Target struct {
	ResourceID string `json:"resource_id,omitempty"`
	// Index selects among elements sharing the resource id or text
	// (document order, 0-based).
	Index       int       `json:"index,omitempty"`
	Coordinates *ui.Point `json:"coordinates,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// targetSchema is the JSON Schema fragment shared by tools taking a Target.
const targetSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string", "description": "Exact resource id of the element"},
		"index": {"type": "integer", "minimum": 0, "description": "Which match to use when several elements share the locator"},
		"coordinates": {
			"type": "object",
			"properties": {
				"x": {"type": "integer", "minimum": 0},
				"y": {"type": "integer", "minimum": 0}
			},
			"required": ["x", "y"],
			"description": "Absolute pixel coordinates"
		},
		"text": {"type": "string", "description": "Visible text of the element (case-insensitive)"}
	}
}`

// resolveTarget resolves a Target to a pixel point against the latest UI
// hierarchy, trying each locator in fallback order. The returned locator
// string names the strategy that produced the point; on failure the error
// names the last strategy tried.
func resolveTarget(s *State, t Target) (ui.Point, string, error) {
	tried := ""
	if t.ResourceID != "" {
		tried = fmt.Sprintf("resource_id=%q index=%d", t.ResourceID, t.Index)
		if el, ok := ui.FindByResourceID(s.LatestUIHierarchy, t.ResourceID, t.Index); ok && el.Bounds != nil {
			// A text locator given alongside the id must agree with the
			// matched element; a stale id on the wrong element falls
			// through to the next strategy.
			if t.Text == "" || strings.EqualFold(el.Label(), t.Text) {
				return el.Bounds.Center(), tried, nil
			}
		}
	}
	if t.Coordinates != nil {
		tried = fmt.Sprintf("coordinates=(%d,%d)", t.Coordinates.X, t.Coordinates.Y)
		return *t.Coordinates, tried, nil
	}
	if t.Text != "" {
		tried = fmt.Sprintf("text=%q index=%d", t.Text, t.Index)
		if el, ok := ui.FindByText(s.LatestUIHierarchy, t.Text, t.Index); ok && el.Bounds != nil {
			return el.Bounds.Center(), tried, nil
		}
	}
	if tried == "" {
		tried = "no locator given"
	}
	return ui.Point{}, tried, &ErrElementNotFound{Locator: tried}
}

// describeTarget renders the target compactly for messages.
func describeTarget(t Target) string {
	switch {
	case t.ResourceID != "":
		return "resource id " + t.ResourceID
	case t.Coordinates != nil:
		return fmt.Sprintf("point (%d,%d)", t.Coordinates.X, t.Coordinates.Y)
	case t.Text != "":
		return "text " + t.Text
	default:
		return "unspecified target"
	}
}
