package transactions

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rejection reasons. A *RejectionError unwraps to exactly one of these.
var (
	ErrDuplicateTransactionID          = errors.New("duplicate transaction id")
	ErrNegativeAmount                  = errors.New("negative amount not allowed")
	ErrAccountLocked                   = errors.New("account locked")
	ErrInsufficientFunds               = errors.New("insufficient funds")
	ErrDisputedTransactionDoesNotExist = errors.New("disputed transaction does not exist")
	ErrTransactionAlreadyDisputed      = errors.New("transaction already disputed")
	ErrTransactionNotDisputed          = errors.New("transaction not disputed")
	ErrUnknownType                     = errors.New("unknown transaction type")
)

// RejectionError is returned by Processor.Apply when a transaction is refused.
// A rejection is a final verdict on that transaction; the processor remains
// usable for the next one.
type RejectionError struct {
	Reason error
	Type   Type
	Client uint16
	TX     uint32
	// Shortfall is set for ErrInsufficientFunds only
	Shortfall decimal.Decimal
}

func reject(reason error, t Transaction) *RejectionError {
	return &RejectionError{Reason: reason, Type: t.Type, Client: t.Client, TX: t.TX}
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ErrDuplicateTransactionID, ErrDisputedTransactionDoesNotExist,
		ErrTransactionAlreadyDisputed, ErrTransactionNotDisputed:
		return fmt.Sprintf("%s: %d", e.Reason, e.TX)
	case ErrAccountLocked:
		return fmt.Sprintf("%s: client %d", e.Reason, e.Client)
	case ErrInsufficientFunds:
		return fmt.Sprintf("%s: short by %s", e.Reason, e.Shortfall)
	default:
		return e.Reason.Error()
	}
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}
