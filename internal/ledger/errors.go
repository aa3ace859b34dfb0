package ledger

import (
	"errors"

	"github.com/webxv/backend/internal/repository"
)

// Validation errors are rejected before any storage access.
var (
	ErrSelfTransfer     = errors.New("cannot transfer to yourself")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidFee       = errors.New("fee must be non-negative")
	ErrFeeExceedsAmount = errors.New("fee cannot equal or exceed the transfer amount")
	ErrInvalidGasFee    = errors.New("gas fee must be non-negative")
)

// ErrSystemAccountNotFound indicates the fee system account is missing or
// misconfigured. This is operator error, not caller error.
var ErrSystemAccountNotFound = errors.New("system account not found")

// ErrInsufficientBalance and ErrAccountNotFound are raised by the balance
// store; re-exported so callers depend on the ledger package alone.
var (
	ErrInsufficientBalance = repository.ErrInsufficientBalance
	ErrAccountNotFound     = repository.ErrAccountNotFound
)
