package admission

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity     = errors.New("admission: quantity must be a positive integer")
	ErrEventNotFound       = errors.New("admission: event not found")
	ErrUpstreamUnavailable = errors.New("admission: events service unavailable")
	ErrPurchaseNotFound    = errors.New("admission: purchase not found")
	ErrForbidden           = errors.New("admission: purchase belongs to another user")
	ErrAlreadyPaid         = errors.New("admission: purchase already paid")
)

// CapacityError rejects a request that exceeds the remaining capacity. It
// carries the numbers reported back to the caller.
type CapacityError struct {
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("admission: insufficient capacity: requested %d, available %d", e.Requested, e.Available)
}
