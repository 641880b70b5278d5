package immudb

import (
	"context"
	"fmt"

	"github.com/codenotary/immudb/pkg/api/schema"
	"github.com/codenotary/immudb/pkg/client"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
)

func init() {
	databases.Register("immudb", NewImmuDBFactory())
}

// Statement is one parameterized SQL statement
type Statement struct {
	SQL    string
	Params map[string]interface{}
}

// Session is the part of an immudb session the store needs
type Session interface {
	Exec(ctx context.Context, stmt Statement) error
	// ExecTx runs all statements inside one SQL transaction
	ExecTx(ctx context.Context, stmts []Statement) error
	Query(ctx context.Context, stmt Statement) ([]*schema.Row, error)
	Close(ctx context.Context) error
}

// Opener opens a Session with the adapter's options
type Opener func(ctx context.Context, opts *client.Options) (Session, error)

// ImmuDBAdapter implements the BalanceStore interface for immudb
type ImmuDBAdapter struct {
	session   Session
	open      Opener
	options   *client.Options
	tableName string
}

// ImmuDBFactory creates immudb stores
type ImmuDBFactory struct{}

// NewImmuDBFactory creates a new factory for immudb
func NewImmuDBFactory() *ImmuDBFactory {
	return &ImmuDBFactory{}
}

// CreateStore creates a new immudb adapter; the connection is opened by Initialize
func (f *ImmuDBFactory) CreateStore(config databases.Config) (databases.BalanceStore, error) {
	return NewImmuDBAdapter(config, OpenSession), nil
}

// NewImmuDBAdapter creates an adapter that connects through open
func NewImmuDBAdapter(config databases.Config, open Opener) *ImmuDBAdapter {
	options := client.DefaultOptions().
		WithAddress(databases.GetParam(config, "address", "127.0.0.1")).
		WithPort(databases.GetInt(config, "port", 3322)).
		WithUsername(databases.GetParam(config, "username", "immudb")).
		WithPassword(databases.GetParam(config, "password", "immudb"))
	options.Database = databases.GetParam(config, "database", "defaultdb")

	return &ImmuDBAdapter{
		open:      open,
		options:   options,
		tableName: databases.GetParam(config, "tableName", "balances"),
	}
}

// Initialize opens a session and ensures the balances table exists
func (a *ImmuDBAdapter) Initialize(ctx context.Context) error {
	if a.session != nil {
		return nil
	}

	session, err := a.open(ctx, a.options)
	if err != nil {
		return fmt.Errorf("failed to connect to immudb: %w", err)
	}

	err = session.Exec(ctx, Statement{SQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"run_id VARCHAR[64] NOT NULL, "+
		"client INTEGER NOT NULL, "+
		"available VARCHAR[64] NOT NULL, "+
		"held VARCHAR[64] NOT NULL, "+
		"total VARCHAR[64] NOT NULL, "+
		"locked BOOLEAN NOT NULL, "+
		"PRIMARY KEY (run_id, client)"+
		")", a.tableName)})
	if err != nil {
		session.Close(ctx)
		return fmt.Errorf("failed to create table: %w", err)
	}

	a.session = session
	return nil
}

// Close closes the immudb session
func (a *ImmuDBAdapter) Close() error {
	if a.session == nil {
		return nil
	}
	err := a.session.Close(context.Background())
	a.session = nil
	return err
}

// WriteSnapshot upserts every balance of the run in a single SQL transaction
func (a *ImmuDBAdapter) WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error {
	if a.session == nil {
		return databases.ErrNotInitialized
	}
	if len(balances) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPSERT INTO %s (run_id, client, available, held, total, locked) "+
			"VALUES (@run_id, @client, @available, @held, @total, @locked)",
		a.tableName,
	)

	stmts := make([]Statement, 0, len(balances))
	for _, b := range balances {
		stmts = append(stmts, Statement{SQL: query, Params: map[string]interface{}{
			"run_id":    runID,
			"client":    int64(b.Client),
			"available": b.Available,
			"held":      b.Held,
			"total":     b.Total,
			"locked":    b.Locked,
		}})
	}

	if err := a.session.ExecTx(ctx, stmts); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot returns the balances stored for runID
func (a *ImmuDBAdapter) ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error) {
	if a.session == nil {
		return nil, databases.ErrNotInitialized
	}

	rows, err := a.session.Query(ctx, Statement{
		SQL: fmt.Sprintf("SELECT run_id, client, available, held, total, locked FROM %s "+
			"WHERE run_id = @run_id ORDER BY client", a.tableName),
		Params: map[string]interface{}{"run_id": runID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", databases.ErrSnapshotNotFound, runID)
	}

	records := make([]models.BalanceRecord, 0, len(rows))
	for _, row := range rows {
		if len(row.Values) < 6 {
			return nil, fmt.Errorf("invalid result format")
		}
		records = append(records, models.BalanceRecord{
			RunID:     row.Values[0].GetS(),
			Client:    uint16(row.Values[1].GetN()),
			Available: row.Values[2].GetS(),
			Held:      row.Values[3].GetS(),
			Total:     row.Values[4].GetS(),
			Locked:    row.Values[5].GetB(),
		})
	}
	models.SortByClient(records)
	return records, nil
}

// immuSession is a Session over the immudb gRPC client
type immuSession struct {
	client client.ImmuClient
}

// OpenSession connects to the immudb server described by opts
func OpenSession(ctx context.Context, opts *client.Options) (Session, error) {
	c := client.NewClient().WithOptions(opts)

	err := c.OpenSession(ctx, []byte(opts.Username), []byte(opts.Password), opts.Database)
	if err != nil {
		return nil, err
	}
	return &immuSession{client: c}, nil
}

func (s *immuSession) Exec(ctx context.Context, stmt Statement) error {
	_, err := s.client.SQLExec(ctx, stmt.SQL, stmt.Params)
	return err
}

func (s *immuSession) ExecTx(ctx context.Context, stmts []Statement) error {
	tx, err := s.client.NewTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	for _, stmt := range stmts {
		if err := tx.SQLExec(ctx, stmt.SQL, stmt.Params); err != nil {
			tx.Rollback(ctx)
			return err
		}
	}

	if _, err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *immuSession) Query(ctx context.Context, stmt Statement) ([]*schema.Row, error) {
	result, err := s.client.SQLQuery(ctx, stmt.SQL, stmt.Params, true)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (s *immuSession) Close(ctx context.Context) error {
	return s.client.CloseSession(ctx)
}
