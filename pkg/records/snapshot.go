package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
	"github.com/shopspring/decimal"
)

// ErrInvalidSnapshot is returned by ReadSnapshot for input that WriteSnapshot
// could not have produced
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// SnapshotHeader is the fixed header row of the balance output
var SnapshotHeader = []string{"client", "available", "held", "total", "locked"}

// WriteSnapshot writes one row per client, ordered by client id
func WriteSnapshot(w io.Writer, snap transactions.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SnapshotHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, b := range snap.Sorted() {
		row := []string{
			strconv.FormatUint(uint64(b.Client), 10),
			b.Available.String(),
			b.Held.String(),
			b.Total.String(),
			strconv.FormatBool(b.Locked),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write client %d: %w", b.Client, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadSnapshot parses the output of WriteSnapshot back into a Snapshot
func ReadSnapshot(r io.Reader) (transactions.Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(SnapshotHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidSnapshot, err)
	}
	if strings.Join(header, ",") != strings.Join(SnapshotHeader, ",") {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrInvalidSnapshot, strings.Join(header, ","))
	}

	snap := make(transactions.Snapshot)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return snap, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}

		line, _ := cr.FieldPos(0)
		client, balance, err := parseBalance(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSnapshot, line, err)
		}
		if _, dup := snap[client]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate client %d", ErrInvalidSnapshot, line, client)
		}
		snap[client] = balance
	}
}

func parseBalance(row []string) (uint16, transactions.Balance, error) {
	var b transactions.Balance

	client, err := strconv.ParseUint(strings.TrimSpace(row[0]), 10, 16)
	if err != nil {
		return 0, b, fmt.Errorf("invalid client: %w", err)
	}

	amounts := []*decimal.Decimal{&b.Available, &b.Held, &b.Total}
	for i, dst := range amounts {
		*dst, err = decimal.NewFromString(strings.TrimSpace(row[i+1]))
		if err != nil {
			return 0, b, fmt.Errorf("invalid %s: %w", SnapshotHeader[i+1], err)
		}
	}

	b.Locked, err = strconv.ParseBool(strings.TrimSpace(row[4]))
	if err != nil {
		return 0, b, fmt.Errorf("invalid locked: %w", err)
	}
	return uint16(client), b, nil
}
