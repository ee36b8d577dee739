package database

import "errors"

// Set of error variables for validating and storing blocks and transactions.
// Callers use errors.Is to classify a failure.
var (
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrInvalidTransaction   = errors.New("transaction invalid")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrChainLinkMismatch    = errors.New("chain link mismatch")
	ErrBlockTooLarge        = errors.New("block too large")
	ErrFeeMismatch          = errors.New("fee mismatch")
	ErrStorageFailure       = errors.New("storage failure")
	ErrBlockNotFound        = errors.New("block not found")
)
