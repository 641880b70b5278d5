package transactions

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Balance is the exported state of one client account
type Balance struct {
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Equal compares balances numerically, ignoring decimal exponents
func (b Balance) Equal(o Balance) bool {
	return b.Available.Equal(o.Available) &&
		b.Held.Equal(o.Held) &&
		b.Total.Equal(o.Total) &&
		b.Locked == o.Locked
}

// ClientBalance pairs a balance with the client it belongs to
type ClientBalance struct {
	Client uint16
	Balance
}

// Snapshot is an independent copy of the ledger balances, keyed by client id
type Snapshot map[uint16]Balance

// Equal reports whether both snapshots hold the same clients with equal balances
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for client, b := range s {
		other, ok := o[client]
		if !ok || !b.Equal(other) {
			return false
		}
	}
	return true
}

// Sorted returns the balances ordered by client id
func (s Snapshot) Sorted() []ClientBalance {
	out := make([]ClientBalance, 0, len(s))
	for client, b := range s {
		out = append(out, ClientBalance{Client: client, Balance: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}
