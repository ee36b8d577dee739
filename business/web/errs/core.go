package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
)

// NewCore wraps an error returned by the blockchain core with the HTTP
// status code the client receives. Errors the core doesn't define are left
// untouched and end up as internal errors.
func NewCore(err error) error {
	if status, ok := coreStatus(err); ok {
		return NewTrusted(err, status)
	}
	return err
}

func coreStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, admission.ErrRateLimited):
		return http.StatusTooManyRequests, true

	case errors.Is(err, admission.ErrBanned):
		return http.StatusForbidden, true

	case errors.Is(err, database.ErrStorageFailure):
		return http.StatusInternalServerError, true

	case errors.Is(err, database.ErrBlockNotFound),
		errors.Is(err, state.ErrAccountNotFound):
		return http.StatusNotFound, true

	case errors.Is(err, database.ErrSignatureInvalid),
		errors.Is(err, database.ErrInvalidTransaction),
		errors.Is(err, database.ErrDuplicateTransaction),
		errors.Is(err, database.ErrChainLinkMismatch),
		errors.Is(err, database.ErrBlockTooLarge),
		errors.Is(err, database.ErrFeeMismatch),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrFeeMismatch),
		errors.Is(err, ledger.ErrOverflow):
		return http.StatusBadRequest, true
	}

	return 0, false
}
