package custody

import (
	"errors"

	"github.com/congo-pay/vault/internal/ledger"
)

var (
	// ErrUnauthorized is returned when a non-owner calls an owner-only operation.
	ErrUnauthorized = errors.New("caller is not the vault owner")
	// ErrNotAuthorized is returned when a non-owner without an active
	// authorization tries to spend.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrLimitExceeded is returned when a spend would push the spender past
	// its daily limit.
	ErrLimitExceeded = errors.New("exceeds daily spending limit")
	// ErrInsufficientBalance is returned when the vault cannot cover a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrArityMismatch is returned when batch argument lists differ in length.
	ErrArityMismatch = errors.New("batch arrays length mismatch")
	// ErrTransferFailed wraps failures reported by the host ledger.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrInvalidAmount rejects zero transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidAddress rejects the zero address where an account is required.
	ErrInvalidAddress = errors.New("invalid address")
)

// Code maps an error returned by the vault to a stable identifier suitable
// for API responses and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrArityMismatch):
		return "arity_mismatch"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
