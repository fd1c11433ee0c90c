package rules

import (
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input holds everything a rule may look at for one transaction.
type Input struct {
	Tx *domain.Transaction

	// Profile is nil when the sender has no declared profile.
	Profile *domain.PartyProfile

	// History holds recent transactions of the sender; may be empty.
	History []*domain.Transaction

	// VelocityCount is the number of transactions sent by Tx.FromParty in the
	// trailing velocity window: batch-local count plus history, including Tx.
	VelocityCount int
}

// Evaluator runs a catalog against single transactions.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an evaluator bound to a catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Catalog returns the catalog the evaluator reads from.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate runs the current catalog against the input.
func (e *Evaluator) Evaluate(in *Input) []domain.TriggeredRule {
	return EvaluateRules(e.catalog.Snapshot(), in)
}

// EvaluateRules runs the given rule snapshot against the input and returns
// the triggered rules in catalog order.
func EvaluateRules(rules []*Rule, in *Input) []domain.TriggeredRule {
	var triggered []domain.TriggeredRule
	for _, r := range rules {
		hit, ok := evaluateRule(r, in)
		if ok {
			triggered = append(triggered, hit)
		}
	}
	return triggered
}

func evaluateRule(r *Rule, in *Input) (hit domain.TriggeredRule, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("rule panicked",
				"rule_id", r.ID,
				"tx_id", in.Tx.ID,
				"error", rec,
			)
			ok = false
		}
	}()

	fired, evidence := r.Predicate(in)
	if !fired {
		return domain.TriggeredRule{}, false
	}

	weight, severity := r.Weight, r.Severity
	if r.Weigher != nil {
		weight, severity = r.Weigher(in)
	}
	if weight < 0 {
		weight = 0
	}

	return domain.TriggeredRule{
		RuleID:       r.ID,
		Name:         r.Name,
		Indicator:    r.Indicator,
		Evidence:     evidence,
		Weight:       weight,
		Severity:     severity,
		Mandatory:    r.Mandatory,
		TimeCritical: r.TimeCritical,
	}, true
}

// PolicyScore sums the weights of the triggered rules.
func PolicyScore(triggered []domain.TriggeredRule) int {
	total := 0
	for _, t := range triggered {
		total += t.Weight
	}
	return total
}
