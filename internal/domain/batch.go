package domain

import "context"

// BatchResult is the outcome of analyzing one batch of transactions.
type BatchResult struct {
	BatchID string `json:"batchId"`

	ProcessedCount int `json:"processedCount"`
	SkippedCount   int `json:"skippedCount"`

	// Scorecards are in input order; quarantined records have none.
	Scorecards  []*Scorecard        `json:"scorecards"`
	Quarantined []QuarantinedRecord `json:"quarantined,omitempty"`

	HighRiskCount     int     `json:"highRiskCount"`
	AverageFinalScore float64 `json:"averageFinalScore"`

	GraphDelta GraphDelta `json:"graphDelta"`

	// Persisted is false when the final write failed; the caller may retry.
	// PendingWrites names the steps still unwritten, in write order.
	Persisted     bool     `json:"persisted"`
	PendingWrites []string `json:"pendingWrites,omitempty"`

	// TimedOut is true when the batch deadline cut evaluation short.
	TimedOut bool `json:"timedOut"`

	DurationMs int64 `json:"durationMs"`
}

// QuarantinedRecord identifies a record that failed validation.
type QuarantinedRecord struct {
	Index         int    `json:"index"`
	TransactionID string `json:"transactionId,omitempty"`
	Reason        string `json:"reason"`
}

// AdvisoryScorer produces a secondary, non-authoritative risk signal in [0,1].
type AdvisoryScorer interface {
	Score(ctx context.Context, tx *Transaction, profile *PartyProfile, history []*Transaction) (float64, error)
}
