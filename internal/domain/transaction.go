package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents an ingested financial transaction.
// It is immutable once parsed from a TransactionRecord.
type Transaction struct {
	// Core identifiers
	ID         string `json:"id"`
	ExternalID string `json:"externalId,omitempty"`

	// Transaction type (e.g., "transfer", "cash_deposit", "wire")
	Type string `json:"type"`

	// Parties involved
	FromParty string `json:"fromParty"`
	ToParty   string `json:"toParty"`

	// Financial details
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Optional routing details
	OriginCountry string `json:"originCountry,omitempty"`
	DestCountry   string `json:"destCountry,omitempty"`
	Channel       string `json:"channel,omitempty"`
}

// TransactionRecord is the raw inbound form of a transaction.
// Amount and timestamp stay textual until Parse so that a malformed
// record can be quarantined instead of failing the whole batch.
type TransactionRecord struct {
	ID            string `json:"id"`
	ExternalID    string `json:"externalId,omitempty"`
	Type          string `json:"type"`
	FromParty     string `json:"fromParty"`
	ToParty       string `json:"toParty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Timestamp     string `json:"timestamp"`
	OriginCountry string `json:"originCountry,omitempty"`
	DestCountry   string `json:"destCountry,omitempty"`
	Channel       string `json:"channel,omitempty"`
}

// Parse validates the record and converts it to a Transaction.
// Every failure is returned as a *ValidationError.
func (r *TransactionRecord) Parse(now time.Time) (*Transaction, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(r.FromParty) == "" {
		return nil, &ValidationError{TransactionID: id, Field: "fromParty", Reason: "is required"}
	}
	if strings.TrimSpace(r.ToParty) == "" {
		return nil, &ValidationError{TransactionID: id, Field: "toParty", Reason: "is required"}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return nil, &ValidationError{TransactionID: id, Field: "amount", Reason: fmt.Sprintf("not a number: %q", r.Amount)}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{TransactionID: id, Field: "amount", Reason: "must be positive"}
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(r.Timestamp))
	if err != nil {
		return nil, &ValidationError{TransactionID: id, Field: "timestamp", Reason: fmt.Sprintf("not RFC 3339: %q", r.Timestamp)}
	}

	currency := strings.ToUpper(strings.TrimSpace(r.Currency))
	if currency != "" && len(currency) != 3 {
		return nil, &ValidationError{TransactionID: id, Field: "currency", Reason: "must be a 3-letter code"}
	}

	return &Transaction{
		ID:            id,
		ExternalID:    strings.TrimSpace(r.ExternalID),
		Type:          strings.ToLower(strings.TrimSpace(r.Type)),
		FromParty:     strings.TrimSpace(r.FromParty),
		ToParty:       strings.TrimSpace(r.ToParty),
		Amount:        amount,
		Currency:      currency,
		Timestamp:     ts.UTC(),
		CreatedAt:     now.UTC(),
		OriginCountry: strings.ToUpper(strings.TrimSpace(r.OriginCountry)),
		DestCountry:   strings.ToUpper(strings.TrimSpace(r.DestCountry)),
		Channel:       strings.ToLower(strings.TrimSpace(r.Channel)),
	}, nil
}

// IncomeBracket is a declared customer income band.
type IncomeBracket string

const (
	IncomeLow      IncomeBracket = "low"
	IncomeMedium   IncomeBracket = "medium"
	IncomeHigh     IncomeBracket = "high"
	IncomeVeryHigh IncomeBracket = "very_high"
)

// PartyProfile holds the declared customer data used by profile rules.
type PartyProfile struct {
	PartyID       string        `json:"partyId"`
	Name          string        `json:"name,omitempty"`
	Occupation    string        `json:"occupation,omitempty"`
	IncomeBracket IncomeBracket `json:"incomeBracket,omitempty"`
	Country       string        `json:"country,omitempty"`
	PEP           bool          `json:"pep"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
