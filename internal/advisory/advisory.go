// Package advisory provides the secondary, non-authoritative risk scorers.
//
// An advisory score is a value in [0,1]. It can raise a final score under
// the blended strategy but never replaces a mandatory flag.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// None is the default scorer. It always returns 0.
type None struct{}

// Score returns 0.
func (None) Score(context.Context, *domain.Transaction, *domain.PartyProfile, []*domain.Transaction) (float64, error) {
	return 0, nil
}

// Request is the payload sent to a remote scorer.
type Request struct {
	Transaction  *domain.Transaction  `json:"transaction"`
	Profile      *domain.PartyProfile `json:"profile,omitempty"`
	HistoryCount int                  `json:"historyCount"`
}

// Response is the payload a remote scorer replies with.
type Response struct {
	Score float64 `json:"score"`
}

// BusScorer asks a remote model for a score over the event bus.
type BusScorer struct {
	bus     domain.EventBus
	timeout time.Duration
}

// NewBusScorer creates a scorer that calls TopicAdvisoryScore.
func NewBusScorer(bus domain.EventBus, timeout time.Duration) *BusScorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &BusScorer{bus: bus, timeout: timeout}
}

// Score requests a score for tx. Any failure degrades to 0 and is logged;
// the returned error is informational.
func (s *BusScorer) Score(ctx context.Context, tx *domain.Transaction, profile *domain.PartyProfile, history []*domain.Transaction) (float64, error) {
	payload, err := json.Marshal(&Request{
		Transaction:  tx,
		Profile:      profile,
		HistoryCount: len(history),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal advisory request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.bus.Request(ctx, domain.TopicAdvisoryScore, payload)
	if err != nil {
		slog.Warn("advisory score unavailable",
			"tx_id", tx.ID,
			"error", err,
		)
		return 0, fmt.Errorf("advisory request: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		slog.Warn("advisory reply malformed",
			"tx_id", tx.ID,
			"error", err,
		)
		return 0, fmt.Errorf("decode advisory reply: %w", err)
	}
	return decision.ClampAdvisory(resp.Score), nil
}

// New returns the scorer selected by cfg.Type ("none" or "bus").
func New(cfg domain.AdvisoryConfig, bus domain.EventBus) (domain.AdvisoryScorer, error) {
	switch cfg.Type {
	case "", "none":
		return None{}, nil
	case "bus":
		if bus == nil {
			return nil, &domain.ConfigError{Reason: "advisory type bus requires an event bus"}
		}
		return NewBusScorer(bus, cfg.Timeout), nil
	default:
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("unknown advisory scorer %q", cfg.Type)}
	}
}
