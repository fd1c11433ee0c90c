package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Processor builds scorecards from triggered rules and an advisory score.
type Processor struct {
	combiner   *Combiner
	classifier *Classifier

	// Now is the evaluation clock; deadlines are computed from it.
	Now func() time.Time
}

// NewProcessor creates a processor from scoring settings.
func NewProcessor(cfg domain.ScoringConfig) (*Processor, error) {
	switch cfg.Strategy {
	case "", domain.StrategyBlended, domain.StrategyCappedSum:
	default:
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("unknown combine strategy %q", cfg.Strategy)}
	}
	if cfg.PolicyWeight < 0 || cfg.AdvisoryWeight < 0 {
		return nil, &domain.ConfigError{Reason: "score weights must not be negative"}
	}

	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return &Processor{
		combiner:   NewCombiner(cfg),
		classifier: classifier,
		Now:        time.Now,
	}, nil
}

// Input is what the processor needs to score one transaction.
type Input struct {
	TransactionID  string
	TriggeredRules []domain.TriggeredRule
	AdvisoryScore  float64
}

// Process produces a new scorecard. It never mutates its input.
func (p *Processor) Process(in *Input) *domain.Scorecard {
	now := p.Now().UTC()

	policy := rules.PolicyScore(in.TriggeredRules)
	flags := MandatoryFlags(in.TriggeredRules)
	advisory := ClampAdvisory(in.AdvisoryScore)

	final := p.combiner.Combine(policy, advisory, len(flags) > 0)
	tier := p.classifier.Tier(final, flags)
	timeCritical := p.classifier.TimeCritical(in.TriggeredRules)
	dueBy := p.classifier.DueBy(tier, timeCritical, now)

	card := &domain.Scorecard{
		ID:             uuid.New().String(),
		TransactionID:  in.TransactionID,
		PolicyScore:    policy,
		AdvisoryScore:  advisory,
		FinalScore:     final,
		Strategy:       string(p.combiner.Strategy()),
		Tier:           tier,
		MandatoryFlags: flags,
		TriggeredRules: append([]domain.TriggeredRule(nil), in.TriggeredRules...),
		DueBy:          dueBy,
		CreatedAt:      now,
	}
	card.Rationale = rationale(card, timeCritical)
	return card
}

// MandatoryFlags returns the sorted, de-duplicated indicators of the mandatory triggered rules.
func MandatoryFlags(triggered []domain.TriggeredRule) []string {
	seen := make(map[string]struct{})
	flags := []string{}
	for _, t := range triggered {
		if !t.Mandatory {
			continue
		}
		if _, ok := seen[t.Indicator]; ok {
			continue
		}
		seen[t.Indicator] = struct{}{}
		flags = append(flags, t.Indicator)
	}
	sort.Strings(flags)
	return flags
}

func rationale(c *domain.Scorecard, timeCritical bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier %s: final score %d (policy %d, advisory %.2f, %s)", c.Tier, c.FinalScore, c.PolicyScore, c.AdvisoryScore, c.Strategy)

	if len(c.MandatoryFlags) > 0 {
		fmt.Fprintf(&b, "; mandatory flags %s", strings.Join(c.MandatoryFlags, ", "))
	}
	if len(c.TriggeredRules) > 0 {
		parts := make([]string, 0, len(c.TriggeredRules))
		for _, t := range c.TriggeredRules {
			parts = append(parts, fmt.Sprintf("%s(+%d)", t.RuleID, t.Weight))
		}
		fmt.Fprintf(&b, "; rules %s", strings.Join(parts, ", "))
	} else {
		b.WriteString("; no rules triggered")
	}
	if c.DueBy != nil {
		if timeCritical {
			fmt.Fprintf(&b, "; time-critical report due by %s", c.DueBy.Format(time.RFC3339))
		} else {
			fmt.Fprintf(&b, "; report due by %s", c.DueBy.Format(time.RFC3339))
		}
	}
	return b.String()
}
