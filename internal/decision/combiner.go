// Package decision turns triggered rules into a scored, tiered scorecard.
package decision

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const maxScore = 100

// Combiner merges the policy score and the advisory score into a final score.
type Combiner struct {
	strategy       domain.CombineStrategy
	policyWeight   float64
	advisoryWeight float64
	mandatoryFloor int
}

// NewCombiner creates a combiner from scoring settings.
func NewCombiner(cfg domain.ScoringConfig) *Combiner {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = domain.StrategyBlended
	}
	return &Combiner{
		strategy:       strategy,
		policyWeight:   cfg.PolicyWeight,
		advisoryWeight: cfg.AdvisoryWeight,
		mandatoryFloor: cfg.MandatoryFloor,
	}
}

// Strategy returns the configured strategy.
func (c *Combiner) Strategy() domain.CombineStrategy {
	return c.strategy
}

// Combine returns the final score in [0, 100].
//
// Blended: a mandatory flag escalates the score to at least the mandatory
// floor; otherwise policy and advisory are blended by weight.
// Capped sum: min(policy, 100), advisory ignored.
// The advisory score can raise a blended score but never clears a mandatory escalation.
func (c *Combiner) Combine(policy int, advisory float64, mandatory bool) int {
	if policy < 0 {
		policy = 0
	}
	advisory = ClampAdvisory(advisory)

	if c.strategy == domain.StrategyCappedSum {
		return min(policy, maxScore)
	}

	if mandatory {
		return min(maxScore, max(c.mandatoryFloor, policy))
	}

	blended := int(math.Round(float64(policy)*c.policyWeight + advisory*100*c.advisoryWeight))
	return min(maxScore, max(blended, 0))
}

// ClampAdvisory maps an advisory score into [0, 1]; NaN becomes 0.
func ClampAdvisory(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
