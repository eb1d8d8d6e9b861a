package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned by Consume when neither free
	// allowance nor purchased credits remain. User-correctable.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidCustomerID is returned when a client-supplied customer id
	// normalizes to the empty string.
	ErrInvalidCustomerID = errors.New("invalid customer id")
)
