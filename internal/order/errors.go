package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrEmptyCart = errors.New("cart is empty")

	// ErrForbidden is deliberately field-free: permission failures must not
	// reveal whether the attempted change would otherwise have been valid.
	ErrForbidden = errors.New("not permitted")

	// ErrReferenceConflict is returned when the bounded retry loop cannot
	// allocate a reference that clears the storage uniqueness constraint.
	ErrReferenceConflict = errors.New("could not allocate a unique order reference")

	// ErrCartChanged is returned when cart lines snapshotted at the start
	// of checkout were consumed or removed before the transaction could
	// claim them. The client can simply retry against the current cart.
	ErrCartChanged = errors.New("cart changed during checkout, try again")

	// ErrCheckoutConflict is returned when the checkout transaction loses
	// a serializable conflict with a concurrent request. Retryable.
	ErrCheckoutConflict = errors.New("checkout conflicted with a concurrent request, try again")
)

// ValidationError names every failing field so checkout errors are
// actionable for the client.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) add(field, msg string) { e.Fields[field] = msg }

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
