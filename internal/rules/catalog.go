// Package rules provides the rule catalog and the per-transaction rule evaluator.
package rules

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Predicate reports whether a rule fires for the input, with evidence text.
type Predicate func(in *Input) (bool, string)

// Weigher computes an input-dependent weight and severity.
type Weigher func(in *Input) (int, domain.Severity)

// Rule is one catalog entry: rule metadata paired with its predicate.
type Rule struct {
	ID           string
	Name         string
	Weight       int
	Severity     domain.Severity
	Mandatory    bool
	TimeCritical bool
	Indicator    string

	Predicate Predicate

	// Weigher overrides Weight and Severity when set.
	Weigher Weigher

	// Source is "builtin" or "expression".
	Source string
}

// Rule sources.
const (
	SourceBuiltin    = "builtin"
	SourceExpression = "expression"
)

// Summary describes a loaded rule for listing.
type Summary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Weight       int             `json:"weight"`
	Severity     domain.Severity `json:"severity"`
	Mandatory    bool            `json:"mandatory"`
	TimeCritical bool            `json:"timeCritical"`
	Indicator    string          `json:"indicator"`
	Source       string          `json:"source"`
}

// Catalog is the registry of enabled rules.
// Reads take a snapshot; Replace swaps the whole set atomically.
type Catalog struct {
	mu    sync.RWMutex
	rules []*Rule
}

// NewCatalog validates rules and builds a catalog.
func NewCatalog(rules []*Rule) (*Catalog, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	return &Catalog{rules: append([]*Rule(nil), rules...)}, nil
}

// Snapshot returns the current rule set. The slice must be treated as read-only.
func (c *Catalog) Snapshot() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Replace validates and installs a new rule set.
// A batch already holding a snapshot keeps evaluating the old set.
func (c *Catalog) Replace(rules []*Rule) error {
	if err := validateRules(rules); err != nil {
		return err
	}
	next := append([]*Rule(nil), rules...)

	c.mu.Lock()
	c.rules = next
	c.mu.Unlock()
	return nil
}

// Len returns the number of loaded rules.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// Get returns a rule by id.
func (c *Catalog) Get(id string) (*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Summaries lists the loaded rules in evaluation order.
func (c *Catalog) Summaries() []Summary {
	rules := c.Snapshot()
	out := make([]Summary, 0, len(rules))
	for _, r := range rules {
		out = append(out, Summary{
			ID:           r.ID,
			Name:         r.Name,
			Weight:       r.Weight,
			Severity:     r.Severity,
			Mandatory:    r.Mandatory,
			TimeCritical: r.TimeCritical,
			Indicator:    r.Indicator,
			Source:       r.Source,
		})
	}
	return out
}

func validateRules(rules []*Rule) error {
	if len(rules) == 0 {
		return &domain.ConfigError{Reason: "rule catalog is empty"}
	}

	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r == nil {
			return &domain.ConfigError{Reason: fmt.Sprintf("rule at position %d is nil", i)}
		}
		if r.ID == "" {
			return &domain.ConfigError{Reason: fmt.Sprintf("rule at position %d has no id", i)}
		}
		if _, dup := seen[r.ID]; dup {
			return &domain.ConfigError{Reason: fmt.Sprintf("duplicate rule id %s", r.ID)}
		}
		seen[r.ID] = struct{}{}

		if r.Predicate == nil {
			return &domain.ConfigError{Reason: fmt.Sprintf("rule %s has no predicate", r.ID)}
		}
		if r.Weight < 0 {
			return &domain.ConfigError{Reason: fmt.Sprintf("rule %s has negative weight %d", r.ID, r.Weight)}
		}
		if !r.Severity.Valid() {
			return &domain.ConfigError{Reason: fmt.Sprintf("rule %s has unknown severity %q", r.ID, r.Severity)}
		}
		if r.Mandatory && r.Indicator == "" {
			return &domain.ConfigError{Reason: fmt.Sprintf("mandatory rule %s has no indicator", r.ID)}
		}
	}
	return nil
}
