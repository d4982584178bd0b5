package intake

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol    = errors.New("symbol not configured")
	ErrSymbolDisabled   = errors.New("symbol disabled")
	ErrInvalidPrecision = errors.New("too many decimal places")
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrPriceOutOfRange  = errors.New("price out of range")
	ErrDuplicateOrder   = errors.New("duplicate order number")
	ErrOrderNotFound    = errors.New("order not found")
)

// ValidationError is a synchronous rejection of a request field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
