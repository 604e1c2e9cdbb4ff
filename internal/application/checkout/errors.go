package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("checkout: invalid request")
	// ErrPaymentInFlight refuses a cancel while the gateway may still confirm.
	ErrPaymentInFlight = errors.New("checkout: payment verification in progress")
	ErrRepository      = errors.New("checkout: repository failure")
)

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func repositoryError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}
