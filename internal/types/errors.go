package types

import (
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Every error returned by a service wraps one
// of the base sentinels so HTTP adapters can map severity without string
// matching. Any step failing inside a transaction rolls the whole mutation
// back; no partial writes are ever committed.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInternal           = errors.New("internal error")
)

// Common wrapped errors.
var (
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrFailedPrecondition)
	ErrInsufficientShares  = fmt.Errorf("%w: insufficient shares", ErrFailedPrecondition)
	ErrPositionClosed      = fmt.Errorf("%w: position already closed", ErrFailedPrecondition)
	ErrMarketNotFound      = fmt.Errorf("%w: market", ErrNotFound)
	ErrPositionNotFound    = fmt.Errorf("%w: position", ErrNotFound)
	ErrPoolNotFound        = fmt.Errorf("%w: pool", ErrNotFound)
	ErrAccountNotFound     = fmt.Errorf("%w: account", ErrNotFound)
	ErrDuplicateDeposit    = fmt.Errorf("%w: deposit already credited", ErrAlreadyExists)
)

// InvalidArgumentf builds an ErrInvalidArgument with a formatted reason.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
