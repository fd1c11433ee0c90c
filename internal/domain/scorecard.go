package domain

import (
	"time"
)

// Tier is the compliance classification of a transaction.
type Tier string

const (
	TierNormal Tier = "NORMAL"
	TierEDD    Tier = "EDD" // enhanced due diligence
	TierSMR    Tier = "SMR" // suspicious matter report
)

// Scorecard is the immutable audit record of one analysis of one transaction.
// A new analysis run appends a new scorecard; old ones are never updated.
type Scorecard struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`

	PolicyScore   int     `json:"policyScore"`
	AdvisoryScore float64 `json:"advisoryScore"`
	FinalScore    int     `json:"finalScore"`
	Strategy      string  `json:"strategy"`

	Tier           Tier            `json:"tier"`
	MandatoryFlags []string        `json:"mandatoryFlags"`
	TriggeredRules []TriggeredRule `json:"triggeredRules"`
	DueBy          *time.Time      `json:"dueBy,omitempty"`
	Rationale      string          `json:"rationale"`

	CreatedAt time.Time `json:"createdAt"`
}

// HasFlag reports whether the scorecard carries the given mandatory flag.
func (s *Scorecard) HasFlag(flag string) bool {
	for _, f := range s.MandatoryFlags {
		if f == flag {
			return true
		}
	}
	return false
}
