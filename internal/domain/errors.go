package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// ValidationError reports a malformed transaction record.
// The record is quarantined and the batch continues.
type ValidationError struct {
	TransactionID string
	Field         string
	Reason        string
}

func (e *ValidationError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: transaction %s: %s %s", e.TransactionID, e.Field, e.Reason)
}

// LookupError reports a failed historical or profile query.
// Evaluation degrades to an empty history and continues.
type LookupError struct {
	Op      string
	PartyID string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s for party %s: %v", e.Op, e.PartyID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write at the end of a batch.
// The in-memory results are still returned, marked unpersisted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigError reports an empty or malformed rule catalog or engine configuration.
// It is fatal: no transaction is processed.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }
