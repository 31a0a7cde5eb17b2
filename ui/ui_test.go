package ui

import (
	"encoding/json"
	"testing"
)

func TestParseBounds_RoundTrip(t *testing.T) {
	cases := []string{
		"[0,0][1080,2400]",
		"[100,200][300,260]",
		"[-5,-5][5,5]",
	}
	for _, s := range cases {
		b, err := ParseBounds(s)
		if err != nil {
			t.Errorf("ParseBounds(%q): %v", s, err)
			continue
		}
		if got := b.String(); got != s {
			t.Errorf("round trip: got %q, want %q", got, s)
		}
	}
}

func TestParseBounds_Malformed(t *testing.T) {
	for _, s := range []string{"", "[1,2]", "1,2,3,4", "[a,b][c,d]"} {
		if _, err := ParseBounds(s); err == nil {
			t.Errorf("ParseBounds(%q): expected error", s)
		}
	}
}

func TestBounds_JSONUsesStringForm(t *testing.T) {
	b := Bounds{X1: 1, Y1: 2, X2: 3, Y2: 4}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"[1,2][3,4]"` {
		t.Errorf("got %s", data)
	}
	var back Bounds
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != b {
		t.Errorf("got %+v, want %+v", back, b)
	}
}

func TestBounds_CenterAndContains(t *testing.T) {
	b := Bounds{X1: 100, Y1: 200, X2: 300, Y2: 260}
	if c := b.Center(); c.X != 200 || c.Y != 230 {
		t.Errorf("center: got %+v", c)
	}
	if !b.Contains(Point{X: 100, Y: 200}) {
		t.Error("edge point not contained")
	}
	if b.Contains(Point{X: 301, Y: 230}) {
		t.Error("outside point contained")
	}
}

func TestPercentToPixel_EndpointsAndClamp(t *testing.T) {
	if got := PercentToPixel(0, 1080); got != 0 {
		t.Errorf("0%%: got %d", got)
	}
	if got := PercentToPixel(1, 1080); got != 1079 {
		t.Errorf("100%%: got %d", got)
	}
	if got := PercentToPixel(-0.5, 1080); got != 0 {
		t.Errorf("below range: got %d", got)
	}
	if got := PercentToPixel(1.5, 1080); got != 1079 {
		t.Errorf("above range: got %d", got)
	}
	if got := PercentToPixel(0.5, 0); got != 0 {
		t.Errorf("zero dim: got %d", got)
	}
}

func TestPercentToPixel_Monotonic(t *testing.T) {
	prev := -1
	for pct := 0.0; pct <= 1.0; pct += 0.01 {
		px := PercentToPixel(pct, 400)
		if px < prev {
			t.Fatalf("not monotonic at %.2f: %d < %d", pct, px, prev)
		}
		prev = px
	}
}

func sampleTree() []Element {
	return []Element{
		{
			ResourceID: "root",
			Children: []Element{
				{ResourceID: "com.app:id/item", Text: "First"},
				{ResourceID: "com.app:id/item", Text: "Second"},
				{AccessibilityText: "Settings", Focused: true},
			},
		},
		{Text: "settings"},
	}
}

func TestFindByResourceID_Index(t *testing.T) {
	tree := sampleTree()
	el, ok := FindByResourceID(tree, "com.app:id/item", 1)
	if !ok || el.Text != "Second" {
		t.Errorf("got %+v ok=%v, want the second match", el, ok)
	}
	if _, ok := FindByResourceID(tree, "com.app:id/item", 5); ok {
		t.Error("index past the matches resolved")
	}
}

func TestFindByText_CaseInsensitiveAndLabel(t *testing.T) {
	tree := sampleTree()

	// Matches via the accessibility label.
	el, ok := FindByText(tree, "SETTINGS", 0)
	if !ok || el.AccessibilityText != "Settings" {
		t.Errorf("got %+v ok=%v", el, ok)
	}

	// Second match is the lowercase text node.
	el, ok = FindByText(tree, "settings", 1)
	if !ok || el.Text != "settings" {
		t.Errorf("got %+v ok=%v", el, ok)
	}

	if _, ok := FindByText(tree, "", 0); ok {
		t.Error("empty text matched an element")
	}
}

func TestFocusedElement(t *testing.T) {
	el, ok := FocusedElement(sampleTree())
	if !ok || el.AccessibilityText != "Settings" {
		t.Errorf("got %+v ok=%v", el, ok)
	}
	if _, ok := FocusedElement(nil); ok {
		t.Error("focus found in empty tree")
	}
}

func TestLabel_PrefersText(t *testing.T) {
	e := Element{Text: "visible", AccessibilityText: "described"}
	if e.Label() != "visible" {
		t.Errorf("got %q", e.Label())
	}
	e.Text = ""
	if e.Label() != "described" {
		t.Errorf("got %q", e.Label())
	}
}

func TestCountElements(t *testing.T) {
	if n := CountElements(sampleTree()); n != 5 {
		t.Errorf("got %d, want 5", n)
	}
}
