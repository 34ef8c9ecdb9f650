package sampling

import (
	"math"
	"testing"

	"rklog/internal/core/artifact"
	kit "rklog/internal/platform/testkit"
)

func TestBoundaryRatesAreExact(t *testing.T) {
	s := New(Policy{
		artifact.ExecutionContext: 0.0,
		artifact.AgentGraph:       1.0,
	})

	for i := 0; i < 2000; i++ {
		if s.ShouldKeep(artifact.ExecutionContext) {
			t.Fatalf("rate 0.0 kept a record on draw %d", i)
		}
		if !s.ShouldKeep(artifact.AgentGraph) {
			t.Fatalf("rate 1.0 dropped a record on draw %d", i)
		}
	}
}

func TestUnconfiguredTypeAlwaysKeeps(t *testing.T) {
	s := New(Policy{})
	if s.Rate(artifact.BoundaryEvent) != 1.0 {
		t.Fatalf("default rate should be 1.0")
	}
	for i := 0; i < 100; i++ {
		if !s.ShouldKeep(artifact.BoundaryEvent) {
			t.Fatalf("unconfigured type dropped a record")
		}
	}
}

func TestRatesAreClamped(t *testing.T) {
	s := New(Policy{
		"over":  1.7,
		"under": -0.3,
	})
	if s.Rate("over") != 1.0 || s.Rate("under") != 0.0 {
		t.Fatalf("clamping failed: over=%v under=%v", s.Rate("over"), s.Rate("under"))
	}
}

func TestDrawComparesAgainstRate(t *testing.T) {
	kit.Serial(t)
	s := New(Policy{
		"half":   0.5,
		"tenth":  0.1,
		"ninety": 0.9,
	})

	kit.Swap(t, &randFloat, func() float64 { return 0.4 })
	if !s.ShouldKeep("half") {
		t.Fatalf("draw 0.4 against rate 0.5 should keep")
	}
	if s.ShouldKeep("tenth") {
		t.Fatalf("draw 0.4 against rate 0.1 should drop")
	}
	if !s.ShouldKeep("ninety") {
		t.Fatalf("draw 0.4 against rate 0.9 should keep")
	}
}

// Binomial band check: 200 draws at p=0.5 should land within 3 standard
// deviations of the mean. Bounded flakiness (~0.3%), not exact equality
func TestHalfRateWithinStatisticalBand(t *testing.T) {
	s := New(Policy{artifact.ExecutionContext: 0.5})

	const n = 200
	const p = 0.5
	kept := 0
	for i := 0; i < n; i++ {
		if s.ShouldKeep(artifact.ExecutionContext) {
			kept++
		}
	}

	mean := n * p
	sigma := math.Sqrt(n * p * (1 - p))
	lo := int(mean - 3*sigma)
	hi := int(mean + 3*sigma)
	if kept < lo || kept > hi {
		t.Fatalf("kept %d of %d, outside [%d, %d]", kept, n, lo, hi)
	}
}
