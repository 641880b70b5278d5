package transactions

// History keeps deposits and withdrawals by transaction id so that later
// disputes can find the amount they refer to. Entries are never removed.
type History struct {
	entries map[uint32]Transaction
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{entries: make(map[uint32]Transaction)}
}

// Get returns the transaction recorded under tx
func (h *History) Get(tx uint32) (Transaction, bool) {
	t, ok := h.entries[tx]
	return t, ok
}

// Contains reports whether tx has already been recorded
func (h *History) Contains(tx uint32) bool {
	_, ok := h.entries[tx]
	return ok
}

// Len returns the number of recorded transactions
func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) record(t Transaction) {
	h.entries[t.TX] = t
}
