package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Administrative guard errors
	ErrDuplicateName          = errors.New("funding target with this name already exists")
	ErrClosedEntityEdit       = errors.New("closed funding target cannot be edited")
	ErrAmountBelowInvested    = errors.New("full amount cannot be less than the invested amount")
	ErrNonEmptyTargetDeletion = errors.New("funding target with invested funds cannot be deleted")

	// Request shape errors
	ErrInvalidInput = errors.New("invalid input")

	// Engine defects. Never a caller error.
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// IsValidationError reports whether err is a rejected request rather than
// an engine defect or an infrastructure failure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrDuplicateName,
		ErrClosedEntityEdit,
		ErrAmountBelowInvested,
		ErrNonEmptyTargetDeletion,
		ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
