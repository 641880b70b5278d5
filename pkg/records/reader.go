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

var (
	// ErrMalformedRecord marks a row that cannot be turned into a transaction.
	// The row should be skipped; the reader stays usable.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInvalidHeader is returned when the input does not start with a
	// header naming the type, client and tx columns
	ErrInvalidHeader = errors.New("invalid header")
)

// Column names of the transaction input
const (
	ColumnType   = "type"
	ColumnClient = "client"
	ColumnTX     = "tx"
	ColumnAmount = "amount"
)

// Reader decodes transactions from CSV input with a
// type,client,tx,amount header
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
}

// NewReader creates a transaction reader over r
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	return &Reader{csv: cr}
}

// Read returns the next transaction.
//
// It returns io.EOF once the input is exhausted. Errors wrapping
// ErrMalformedRecord concern one row only and reading may continue;
// any other error is fatal.
func (r *Reader) Read() (transactions.Transaction, error) {
	if r.columns == nil {
		if err := r.readHeader(); err != nil {
			return transactions.Transaction{}, err
		}
	}

	record, err := r.csv.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return transactions.Transaction{}, fmt.Errorf("line %d: %w: %v", parseErr.Line, ErrMalformedRecord, parseErr.Err)
		}
		return transactions.Transaction{}, err
	}

	line, _ := r.csv.FieldPos(0)
	tx, err := r.parse(record)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRecord, err)
	}
	return tx, nil
}

func (r *Reader) readHeader() error {
	header, err := r.csv.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColumnType, ColumnClient, ColumnTX} {
		if _, ok := columns[required]; !ok {
			return fmt.Errorf("%w: missing column %q", ErrInvalidHeader, required)
		}
	}

	r.columns = columns
	return nil
}

// field returns the trimmed value of the named column, or "" when the
// row is too short to hold it
func (r *Reader) field(record []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (r *Reader) parse(record []string) (transactions.Transaction, error) {
	typ, err := transactions.ParseType(r.field(record, ColumnType))
	if err != nil {
		return transactions.Transaction{}, err
	}

	client, err := strconv.ParseUint(r.field(record, ColumnClient), 10, 16)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("invalid client: %w", err)
	}

	tx, err := strconv.ParseUint(r.field(record, ColumnTX), 10, 32)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("invalid tx: %w", err)
	}

	t := transactions.Transaction{Type: typ, Client: uint16(client), TX: uint32(tx)}
	if !t.HasAmount() {
		return t, nil
	}

	raw := r.field(record, ColumnAmount)
	if raw == "" {
		return transactions.Transaction{}, fmt.Errorf("missing amount for %s", typ)
	}
	t.Amount, err = decimal.NewFromString(raw)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("invalid amount %q", raw)
	}
	return t, nil
}

// ReadAll reads transactions until EOF, passing malformed rows to skip.
// A nil skip drops them silently.
func (r *Reader) ReadAll(skip func(error)) ([]transactions.Transaction, error) {
	var out []transactions.Transaction
	for {
		tx, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if errors.Is(err, ErrMalformedRecord) {
			if skip != nil {
				skip(err)
			}
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, tx)
	}
}
