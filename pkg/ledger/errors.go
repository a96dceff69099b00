package ledger

import "errors"

var (
	// ErrNotFound is returned when a mutation references an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a transaction or account list breaks a
	// ledger invariant. It is always wrapped with the offending detail.
	ErrValidation = errors.New("validation failed")
)
