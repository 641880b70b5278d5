// Package engine runs one pass of a transaction stream through a fresh
// processor and hands the resulting balances to an optional store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pedro-hbl/transaction-manager/internal/metrics"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
	"github.com/sirupsen/logrus"
)

// Options configures a run
type Options struct {
	// RunID names the run; a random UUID is used when empty
	RunID string

	// Logger receives skip and rejection warnings. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger

	// Collector records apply metrics; a private one is used when nil
	Collector *metrics.Collector

	// Store, when set, receives the final snapshot. It must already be
	// initialized.
	Store databases.BalanceStore
}

// Result is the outcome of a completed run
type Result struct {
	RunID    string
	Snapshot transactions.Snapshot
	Metrics  *metrics.RunResult
}

// Records returns the snapshot in the form stores persist it
func (r *Result) Records() []models.BalanceRecord {
	return models.RecordsFromSnapshot(r.RunID, r.Snapshot)
}

// Run reads transactions from input until EOF and applies them in order.
//
// Malformed rows and rejected transactions are logged and skipped; neither
// stops the run. Run fails only when input cannot be read, ctx is done, or
// the store refuses the snapshot.
func Run(ctx context.Context, input io.Reader, opts Options) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}

	log := logrus.NewEntry(logger)
	log.WithField("run", runID).Info("run started")

	collector.StartRun(runID)
	processor := transactions.NewProcessor(transactions.WithLogger(log))
	reader := records.NewReader(input)

	for {
		if err := ctx.Err(); err != nil {
			collector.EndRun(runID)
			return nil, err
		}

		tx, err := reader.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, records.ErrMalformedRecord) {
			log.WithError(err).Warn("skipping record")
			collector.RecordSkipped()
			continue
		}
		if err != nil {
			collector.EndRun(runID)
			return nil, fmt.Errorf("failed to read input: %w", err)
		}

		err = collector.MeasureApply(tx.Type, func() error {
			return processor.Apply(tx)
		})
		if err != nil {
			log.WithFields(logrus.Fields{
				"type":   tx.Type,
				"client": tx.Client,
				"tx":     tx.TX,
			}).WithError(err).Warn("transaction rejected")
		}
	}

	result := &Result{
		RunID:    runID,
		Snapshot: processor.Snapshot(),
		Metrics:  collector.EndRun(runID),
	}
	log.WithFields(logrus.Fields{
		"run":      runID,
		"clients":  len(result.Snapshot),
		"applied":  result.Metrics.Counter("applied"),
		"rejected": result.Metrics.Counter("rejected"),
		"skipped":  result.Metrics.Counter("skipped"),
	}).Info("run finished")

	if opts.Store != nil {
		if err := opts.Store.WriteSnapshot(ctx, runID, result.Records()); err != nil {
			return result, fmt.Errorf("failed to export snapshot: %w", err)
		}
		log.WithField("run", runID).Info("snapshot exported")
	}
	return result, nil
}
