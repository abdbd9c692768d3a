package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the services is one of these (possibly wrapped), a
// *ValidationError, or an infrastructure failure.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

var (
	ErrIllegalTransition    = fmt.Errorf("%w: illegal status transition", ErrConflict)
	ErrQuotationExpired     = fmt.Errorf("%w: quotation expired", ErrConflict)
	ErrNotEditable          = fmt.Errorf("%w: order can no longer be edited", ErrConflict)
	ErrPendingPaymentExists = fmt.Errorf("%w: order already has a pending payment", ErrConflict)
	ErrPaymentNotPending    = fmt.Errorf("%w: payment is not pending", ErrConflict)
	ErrDuplicateRecord      = fmt.Errorf("%w: inventory record already exists for product/location/warehouse", ErrConflict)
	ErrInsufficientStock    = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrNegativeStock        = fmt.Errorf("%w: movement would make quantity negative", ErrConflict)
	ErrTransferNotAllowed   = fmt.Errorf("%w: transfer must be recorded as an out and an in movement", ErrConflict)
	ErrRecordNotEmpty       = fmt.Errorf("%w: inventory record still holds stock", ErrConflict)
	ErrOrderHasDependents   = fmt.Errorf("%w: order has payments or inventory movements", ErrConflict)
	ErrStaleWrite           = fmt.Errorf("%w: record was modified concurrently", ErrConflict)
	ErrDuplicateSKU         = fmt.Errorf("%w: sku already exists", ErrConflict)
)

// ValidationError reports malformed input before any state change.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func Invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientStockError carries how much of a FIFO allocation could be satisfied.
type InsufficientStockError struct {
	ProductID string
	Required  int
	Allocated int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, allocated %d", e.ProductID, e.Required, e.Allocated)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
