// Package sampling provides the per-artifact-type probabilistic retention gate
package sampling

import (
	"math/rand/v2"

	"rklog/internal/core/artifact"
)

// Policy maps artifact types to retention probabilities in [0, 1].
// 1.0 always retains, 0.0 always drops. Types absent from the policy retain
// everything
type Policy map[artifact.Type]float64

// randFloat is a seam for deterministic tests
var randFloat = rand.Float64

// Sampler draws one pseudo-random sample per record against the configured
// retention probability. Not reproducible across runs; callers needing
// guaranteed persistence bypass the sampler entirely via force-write
type Sampler struct {
	policy Policy
}

// New builds a sampler over the given policy. Rates are clamped to [0, 1]
func New(p Policy) *Sampler {
	clamped := make(Policy, len(p))
	for t, rate := range p {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		clamped[t] = rate
	}
	return &Sampler{policy: clamped}
}

// Rate returns the retention probability for t (default 1.0)
func (s *Sampler) Rate(t artifact.Type) float64 {
	if rate, ok := s.policy[t]; ok {
		return rate
	}
	return 1.0
}

// ShouldKeep reports whether a record of type t is retained. The boundary
// rates never draw, so 0.0 and 1.0 are exact, not probabilistic
func (s *Sampler) ShouldKeep(t artifact.Type) bool {
	rate := s.Rate(t)
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	return randFloat() < rate
}
