package models

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
	"github.com/shopspring/decimal"
)

// BalanceRecord represents one client's balances as persisted by a store
type BalanceRecord struct {
	// RunID identifies the processing run that produced the snapshot
	RunID string `json:"runId" dynamodbav:"runId"`

	// Client is the client id
	Client uint16 `json:"client" dynamodbav:"client"`

	// Amounts are kept as decimal strings so no store rounds them
	Available string `json:"available" dynamodbav:"available"`
	Held      string `json:"held" dynamodbav:"held"`
	Total     string `json:"total" dynamodbav:"total"`

	Locked bool `json:"locked" dynamodbav:"locked"`
}

// ClientKey returns the client id as the string used by stores keyed on text
func (r BalanceRecord) ClientKey() string {
	return strconv.FormatUint(uint64(r.Client), 10)
}

// RecordsFromSnapshot converts a snapshot to records ordered by client
func RecordsFromSnapshot(runID string, snap transactions.Snapshot) []BalanceRecord {
	sorted := snap.Sorted()
	records := make([]BalanceRecord, 0, len(sorted))
	for _, b := range sorted {
		records = append(records, BalanceRecord{
			RunID:     runID,
			Client:    b.Client,
			Available: b.Available.String(),
			Held:      b.Held.String(),
			Total:     b.Total.String(),
			Locked:    b.Locked,
		})
	}
	return records
}

// SnapshotFromRecords converts stored records back into a snapshot
func SnapshotFromRecords(records []BalanceRecord) (transactions.Snapshot, error) {
	snap := make(transactions.Snapshot, len(records))
	for _, r := range records {
		if _, dup := snap[r.Client]; dup {
			return nil, fmt.Errorf("duplicate record for client %d", r.Client)
		}

		var (
			b   transactions.Balance
			err error
		)
		if b.Available, err = decimal.NewFromString(r.Available); err != nil {
			return nil, fmt.Errorf("client %d: invalid available %q: %w", r.Client, r.Available, err)
		}
		if b.Held, err = decimal.NewFromString(r.Held); err != nil {
			return nil, fmt.Errorf("client %d: invalid held %q: %w", r.Client, r.Held, err)
		}
		if b.Total, err = decimal.NewFromString(r.Total); err != nil {
			return nil, fmt.Errorf("client %d: invalid total %q: %w", r.Client, r.Total, err)
		}
		b.Locked = r.Locked
		snap[r.Client] = b
	}
	return snap, nil
}

// SortByClient orders records by client id in place
func SortByClient(records []BalanceRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Client < records[j].Client
	})
}
