package transactions

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Type represents the kind of a ledger transaction
type Type string

const (
	// Deposit credits the client's account
	Deposit Type = "deposit"
	// Withdrawal debits the client's account
	Withdrawal Type = "withdrawal"
	// Dispute holds the funds of an earlier deposit
	Dispute Type = "dispute"
	// Resolve releases the funds held by a dispute
	Resolve Type = "resolve"
	// Chargeback reverses a disputed deposit and locks the account
	Chargeback Type = "chargeback"
)

// ParseType converts the textual kind of an input record into a Type
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Deposit, Withdrawal, Dispute, Resolve, Chargeback:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// carriesAmount reports whether transactions of this kind move money by themselves
func (t Type) carriesAmount() bool {
	return t == Deposit || t == Withdrawal
}

// Transaction represents one immutable input record.
//
// Amount is only meaningful for deposits and withdrawals. Disputes,
// resolves and chargebacks reference an earlier deposit through TX.
type Transaction struct {
	Type   Type
	Client uint16
	TX     uint32
	Amount decimal.Decimal
}

// NewDeposit creates a deposit of amount into the client's account
func NewDeposit(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return Transaction{Type: Deposit, Client: client, TX: tx, Amount: amount}
}

// NewWithdrawal creates a withdrawal of amount from the client's account
func NewWithdrawal(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return Transaction{Type: Withdrawal, Client: client, TX: tx, Amount: amount}
}

// NewDispute creates a dispute against deposit tx
func NewDispute(client uint16, tx uint32) Transaction {
	return Transaction{Type: Dispute, Client: client, TX: tx}
}

// NewResolve creates a resolve of the dispute against deposit tx
func NewResolve(client uint16, tx uint32) Transaction {
	return Transaction{Type: Resolve, Client: client, TX: tx}
}

// NewChargeback creates a chargeback of the disputed deposit tx
func NewChargeback(client uint16, tx uint32) Transaction {
	return Transaction{Type: Chargeback, Client: client, TX: tx}
}

// HasAmount reports whether the transaction carries an amount
func (t Transaction) HasAmount() bool {
	return t.Type.carriesAmount()
}

func (t Transaction) String() string {
	if t.HasAmount() {
		return fmt.Sprintf("%s{client:%d,tx:%d,amount:%s}", t.Type, t.Client, t.TX, t.Amount)
	}
	return fmt.Sprintf("%s{client:%d,tx:%d}", t.Type, t.Client, t.TX)
}
