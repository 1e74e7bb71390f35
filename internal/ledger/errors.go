package ledger

import (
	"errors"
	"fmt"

	"food_rescue/internal/model"
)

// Error kinds returned by ledger operations. Callers match them with errors.Is;
// the concrete error carries the details.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidPickupTime      = errors.New("invalid pickup time")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrExpired                = errors.New("expired")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidInput           = errors.New("invalid input")
)

var reasons = []struct {
	kind error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrInvalidPickupTime, "invalid_pickup_time"},
	{ErrInvalidStateTransition, "invalid_state_transition"},
	{ErrExpired, "expired"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidInput, "invalid_input"},
}

// Reason returns a stable code for the error kind of err, or "internal".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.kind) {
			return r.code
		}
	}
	return "internal"
}

// IsRejection reports whether err is one of the ledger's rejection kinds
// rather than a storage failure.
func IsRejection(err error) bool {
	return err != nil && Reason(err) != "internal"
}

// Authorizer is the precondition hook the surrounding layer passes to
// mutating operations. reservation is nil for listing-level operations.
type Authorizer func(listing *model.FoodListing, reservation *model.Reservation) error

func authorize(auth Authorizer, l *model.FoodListing, r *model.Reservation) error {
	if auth == nil {
		return nil
	}
	err := auth(l, r)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}
