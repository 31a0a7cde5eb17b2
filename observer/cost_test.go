package observer

import (
	"math"
	"testing"
)

func TestCostCalculate(t *testing.T) {
	c := NewCostCalculator(nil)

	// gpt-4o: $2.50/M input, $10.00/M output.
	got := c.Calculate("gpt-4o", 1_000_000, 500_000)
	want := 2.50 + 5.00
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %f, want %f", got, want)
	}

	if got := c.Calculate("gpt-4o", 0, 0); got != 0 {
		t.Errorf("zero tokens: got %f", got)
	}
}

func TestCostCalculate_UnknownModel(t *testing.T) {
	c := NewCostCalculator(nil)
	if got := c.Calculate("mystery-model", 1_000_000, 1_000_000); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestCostCalculate_OverridesMerge(t *testing.T) {
	c := NewCostCalculator(map[string]ModelPricing{
		"gpt-4o":       {1.00, 2.00}, // override a default
		"custom-model": {5.00, 5.00}, // add a new one
	})

	got := c.Calculate("gpt-4o", 1_000_000, 1_000_000)
	if math.Abs(got-3.00) > 1e-9 {
		t.Errorf("override not applied: got %f", got)
	}
	got = c.Calculate("custom-model", 2_000_000, 0)
	if math.Abs(got-10.00) > 1e-9 {
		t.Errorf("got %f", got)
	}
	// Untouched defaults survive the merge.
	if got := c.Calculate("gpt-4o-mini", 1_000_000, 0); math.Abs(got-0.15) > 1e-9 {
		t.Errorf("default lost: got %f", got)
	}
}
