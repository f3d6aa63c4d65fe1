package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount: must be greater than 0")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrQuotaExhausted      = errors.New("free quota exhausted")
	ErrAlreadyResolved     = errors.New("transaction already resolved")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrMissingReference    = errors.New("reference is required")
	ErrInternal            = errors.New("internal error")
)

// InsufficientFundsError carries the numbers needed to tell the user how much is missing.
// It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Shortfall is the amount the user still has to deposit.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
