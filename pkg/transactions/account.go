package transactions

import (
	"sort"

	"github.com/shopspring/decimal"
)

// account holds the balance state of a single client.
//
// total always equals available plus held: every mutation below moves
// both sides of that equation together.
type account struct {
	available decimal.Decimal
	held      decimal.Decimal
	total     decimal.Decimal
	locked    bool

	disputed map[uint32]struct{}
}

func newAccount() *account {
	return &account{
		available: decimal.Zero,
		held:      decimal.Zero,
		total:     decimal.Zero,
		disputed:  make(map[uint32]struct{}),
	}
}

func (a *account) deposit(amount decimal.Decimal) {
	a.available = a.available.Add(amount)
	a.total = a.total.Add(amount)
}

func (a *account) withdraw(amount decimal.Decimal) {
	a.available = a.available.Sub(amount)
	a.total = a.total.Sub(amount)
}

func (a *account) hold(tx uint32, amount decimal.Decimal) {
	a.available = a.available.Sub(amount)
	a.held = a.held.Add(amount)
	a.disputed[tx] = struct{}{}
}

func (a *account) release(tx uint32, amount decimal.Decimal) {
	a.available = a.available.Add(amount)
	a.held = a.held.Sub(amount)
	delete(a.disputed, tx)
}

func (a *account) chargeback(tx uint32, amount decimal.Decimal) {
	a.held = a.held.Sub(amount)
	a.total = a.total.Sub(amount)
	delete(a.disputed, tx)
	a.locked = true
}

func (a *account) isDisputed(tx uint32) bool {
	_, ok := a.disputed[tx]
	return ok
}

func (a *account) disputedIDs() []uint32 {
	ids := make([]uint32, 0, len(a.disputed))
	for tx := range a.disputed {
		ids = append(ids, tx)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *account) balance() Balance {
	return Balance{
		Available: a.available,
		Held:      a.held,
		Total:     a.total,
		Locked:    a.locked,
	}
}

// Ledger maps client ids to their accounts. Entries are never removed.
//
// Outside the package a Ledger is read-only: accessors hand out copies.
type Ledger struct {
	accounts map[uint16]*account
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[uint16]*account)}
}

// Balance returns a copy of the client's balances and whether the client
// was ever referenced
func (l *Ledger) Balance(client uint16) (Balance, bool) {
	acc, ok := l.accounts[client]
	if !ok {
		return Balance{}, false
	}
	return acc.balance(), true
}

// Disputed returns the client's tx ids under active dispute, in ascending
// order. Unknown clients have none.
func (l *Ledger) Disputed(client uint16) []uint32 {
	acc, ok := l.accounts[client]
	if !ok {
		return nil
	}
	return acc.disputedIDs()
}

func (l *Ledger) get(client uint16) *account {
	return l.accounts[client]
}

// getOrCreate returns the client's account, creating a zeroed one on first use
func (l *Ledger) getOrCreate(client uint16) *account {
	acc, ok := l.accounts[client]
	if !ok {
		acc = newAccount()
		l.accounts[client] = acc
	}
	return acc
}

// Len returns the number of accounts in the ledger
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Snapshot copies the current balances of every account
func (l *Ledger) Snapshot() Snapshot {
	snap := make(Snapshot, len(l.accounts))
	for client, acc := range l.accounts {
		snap[client] = acc.balance()
	}
	return snap
}
