package domain

import "time"

// Severity grades how serious a triggered rule is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RuleDefinition is the declarative form of a dynamic catalog rule.
// Definitions are stored in the rule_definitions table or a YAML file
// and compiled into catalog rules at load time.
type RuleDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`

	// CEL expression; must evaluate to bool
	Expression string `json:"expression" yaml:"expression"`

	Weight       int      `json:"weight" yaml:"weight"`
	Severity     Severity `json:"severity" yaml:"severity"`
	Mandatory    bool     `json:"mandatory" yaml:"mandatory"`
	TimeCritical bool     `json:"timeCritical" yaml:"time_critical"`
	Indicator    string   `json:"indicator" yaml:"indicator"`

	// Whether rule is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// TriggeredRule is the outcome of one rule that fired for a transaction.
type TriggeredRule struct {
	RuleID       string   `json:"ruleId"`
	Name         string   `json:"name"`
	Indicator    string   `json:"indicator"`
	Evidence     string   `json:"evidence"`
	Weight       int      `json:"weight"`
	Severity     Severity `json:"severity"`
	Mandatory    bool     `json:"mandatory"`
	TimeCritical bool     `json:"timeCritical"`
}

// Mandatory flag labels raised by the built-in catalog.
const (
	FlagStructuringSuspected = "STRUCTURING_SUSPECTED"
	FlagHighRiskJurisdiction = "HIGH_RISK_JURISDICTION"
	FlagSanctionsHit         = "SANCTIONS_HIT"
)
