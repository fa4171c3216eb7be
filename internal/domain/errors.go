package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrBusy              = errors.New("resource busy, retry later")
	ErrNotFound          = errors.New("not found")
	ErrSKUExhausted      = errors.New("could not generate a unique sku")

	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound   = fmt.Errorf("payment %w", ErrNotFound)
	ErrInventoryNotFound = fmt.Errorf("inventory %w", ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("product %w", ErrNotFound)
	ErrAddressNotFound   = fmt.Errorf("address %w", ErrNotFound)
	ErrCategoryNotFound  = fmt.Errorf("category %w", ErrNotFound)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
