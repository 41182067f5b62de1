package launch

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports bad input. No platform transaction was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EncodingError reports an ABI encoding failure for a factory call.
type EncodingError struct {
	Method string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Method, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// TimeoutError reports that no receipt (or not enough confirmations) arrived
// within the wait budget. The caller may retry with the same hash.
type TimeoutError struct {
	TxHash string
	After  time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s", e.TxHash, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Retryable is always true: the transaction may still be mined.
func (e *TimeoutError) Retryable() bool { return true }

// RevertedError reports a mined transaction with status 0.
type RevertedError struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %d (gas used %d)", e.TxHash, e.BlockNumber, e.GasUsed)
}

// TokenAddressUnresolvedError reports a successful creation transaction whose
// token address no extraction strategy could determine. The chain state needs
// manual reconciliation.
type TokenAddressUnresolvedError struct {
	TxHash      string
	BlockNumber uint64
	Attempts    []StrategyAttempt
}

// StrategyAttempt records why one extraction strategy produced nothing.
type StrategyAttempt struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

func (e *TokenAddressUnresolvedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Strategy+": "+a.Reason)
	}
	return fmt.Sprintf("token address unresolved for %s (block %d): %s", e.TxHash, e.BlockNumber, strings.Join(parts, "; "))
}

// Warning is a non-fatal failure of a step after creation confirmed.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

func (w Warning) String() string { return w.Step + ": " + w.Message }
