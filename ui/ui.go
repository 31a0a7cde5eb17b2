// Package ui models the accessibility-tree view of a device screen: UI
// element hierarchies, element bounds, and screen-coordinate math shared by
// the device controller and the executor tools.
package ui

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Point is an absolute pixel coordinate on the device screen.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is the device screen size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PercentPoint is a screen-relative coordinate with components in [0, 1].
type PercentPoint struct {
	X float64 `json:"x_percent"`
	Y float64 `json:"y_percent"`
}

// ToPixels converts a percentage coordinate to pixels on the given screen.
func (p PercentPoint) ToPixels(screen Size) Point {
	return Point{
		X: PercentToPixel(p.X, screen.Width),
		Y: PercentToPixel(p.Y, screen.Height),
	}
}

// PercentToPixel maps pct in [0, 1] onto pixel index round((dim-1)*pct),
// clamped to [0, dim-1]. 0.0 maps to the first pixel and 1.0 to the last,
// and the mapping is monotonic in pct.
func PercentToPixel(pct float64, dim int) int {
	if dim <= 0 {
		return 0
	}
	px := int(math.Round(float64(dim-1) * pct))
	if px < 0 {
		return 0
	}
	if px > dim-1 {
		return dim - 1
	}
	return px
}

// Bounds is an element's bounding box. Its canonical wire form is the
// Android dump string "[x1,y1][x2,y2]".
type Bounds struct {
	X1, Y1, X2, Y2 int
}

// ParseBounds parses the "[x1,y1][x2,y2]" string form.
func ParseBounds(s string) (Bounds, error) {
	var b Bounds
	n, err := fmt.Sscanf(strings.TrimSpace(s), "[%d,%d][%d,%d]", &b.X1, &b.Y1, &b.X2, &b.Y2)
	if err != nil || n != 4 {
		return Bounds{}, fmt.Errorf("malformed bounds %q", s)
	}
	return b, nil
}

// String formats the bounds in the "[x1,y1][x2,y2]" form. Parse and String
// round-trip.
func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// Center returns the integer midpoint of the box.
func (b Bounds) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Contains reports whether p falls inside the box (inclusive edges).
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.X1 && p.X <= b.X2 && p.Y >= b.Y1 && p.Y <= b.Y2
}

// MarshalJSON encodes bounds in the canonical string form.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts the canonical string form.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBounds(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Element is a node of the device accessibility hierarchy as reported by
// the screen API. Unknown attributes are dropped on decode.
type Element struct {
	ResourceID        string    `json:"resourceId,omitempty"`
	Text              string    `json:"text,omitempty"`
	AccessibilityText string    `json:"accessibilityText,omitempty"`
	Bounds            *Bounds   `json:"bounds,omitempty"`
	Focused           bool      `json:"focused,omitempty"`
	Enabled           *bool     `json:"enabled,omitempty"`
	Children          []Element `json:"children,omitempty"`
}

// Label returns the element's visible text, preferring Text over the
// accessibility description.
func (e Element) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.AccessibilityText
}

// Walk visits every element of the trees in depth-first document order and
// stops early when visit returns false.
func Walk(tree []Element, visit func(Element) bool) {
	var rec func(e Element) bool
	rec = func(e Element) bool {
		if !visit(e) {
			return false
		}
		for _, c := range e.Children {
			if !rec(c) {
				return false
			}
		}
		return true
	}
	for _, e := range tree {
		if !rec(e) {
			return
		}
	}
}

// Flatten returns every element of the trees in depth-first document order.
func Flatten(tree []Element) []Element {
	var out []Element
	Walk(tree, func(e Element) bool {
		out = append(out, e)
		return true
	})
	return out
}

// FindByResourceID returns the index-th element (document order) whose
// resource id matches exactly.
func FindByResourceID(tree []Element, id string, index int) (Element, bool) {
	var found Element
	var ok bool
	n := 0
	Walk(tree, func(e Element) bool {
		if e.ResourceID != id {
			return true
		}
		if n == index {
			found, ok = e, true
			return false
		}
		n++
		return true
	})
	return found, ok
}

// FindByText returns the index-th element (document order) whose visible
// text equals text, compared case-insensitively.
func FindByText(tree []Element, text string, index int) (Element, bool) {
	var found Element
	var ok bool
	n := 0
	Walk(tree, func(e Element) bool {
		if !strings.EqualFold(e.Label(), text) || e.Label() == "" {
			return true
		}
		if n == index {
			found, ok = e, true
			return false
		}
		n++
		return true
	})
	return found, ok
}

// FocusedElement returns the first element with input focus.
func FocusedElement(tree []Element) (Element, bool) {
	var found Element
	var ok bool
	Walk(tree, func(e Element) bool {
		if e.Focused {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok
}

// CountElements returns the number of nodes in the trees.
func CountElements(tree []Element) int {
	n := 0
	Walk(tree, func(Element) bool { n++; return true })
	return n
}
