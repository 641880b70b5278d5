package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pedro-hbl/transaction-manager/internal/engine"
	"github.com/pedro-hbl/transaction-manager/internal/report"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/dynamodb"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/immudb"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/timestream"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
	"github.com/sirupsen/logrus"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// paramList collects repeated -db key=value flags
type paramList []string

func (p *paramList) String() string {
	return strings.Join(*p, ",")
}

func (p *paramList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func main() {
	os.Exit(run())
}

// newLogger builds the stderr logger. DEBUG=1 forces debug level.
func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if os.Getenv("DEBUG") == "1" {
		lvl = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	return logger, nil
}

func run() int {
	fs := flag.NewFlagSet("txmanager", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var dbParams paramList
	format := fs.String("format", "csv", "Output format: csv, table")
	summary := fs.Bool("summary", false, "Print run metrics to stderr")
	export := fs.String("export", "", "Store the snapshot in: "+strings.Join(databases.Kinds(), ", "))
	fs.Var(&dbParams, "db", "Store setting as key=value (repeatable)")
	chartPath := fs.String("chart", "", "Write a PNG bar chart of client balances to this file")
	logLevel := fs.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	runID := fs.String("run-id", "", "Run identifier (default: random UUID)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: txmanager [flags] <input.csv>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	if *format != "csv" && *format != "table" {
		fmt.Fprintf(os.Stderr, "txmanager: unsupported format %q\n", *format)
		return exitUsage
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "txmanager: %v\n", err)
		return exitUsage
	}

	ctx := context.Background()
	opts := engine.Options{RunID: *runID, Logger: logger}

	if *export != "" {
		params, err := databases.ParseParams(dbParams)
		if err != nil {
			fmt.Fprintf(os.Stderr, "txmanager: %v\n", err)
			return exitUsage
		}

		store, err := databases.NewBalanceStore(*export, databases.FromEnv().Merge(params))
		if err != nil {
			logger.WithError(err).Error("failed to create store")
			return exitError
		}
		if err := store.Initialize(ctx); err != nil {
			logger.WithError(err).Error("failed to initialize store")
			return exitError
		}
		defer store.Close()
		opts.Store = store
	}

	input, err := os.Open(fs.Arg(0))
	if err != nil {
		logger.WithError(err).Error("failed to open input")
		return exitError
	}
	defer input.Close()

	result, err := engine.Run(ctx, input, opts)
	if err != nil {
		logger.WithError(err).Error("processing failed")
		return exitError
	}

	switch *format {
	case "table":
		report.WriteBalanceTable(os.Stdout, result.Snapshot)
	default:
		if err := records.WriteSnapshot(os.Stdout, result.Snapshot); err != nil {
			logger.WithError(err).Error("failed to write output")
			return exitError
		}
	}

	if *summary {
		report.WriteSummaryTable(os.Stderr, result.Metrics)
	}

	if *chartPath != "" {
		if err := writeChart(*chartPath, result); err != nil {
			logger.WithError(err).Error("failed to write chart")
			return exitError
		}
	}
	return exitOK
}

func writeChart(path string, result *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return report.RenderBalanceChart(f, "Balances of run "+result.RunID, result.Snapshot)
}
