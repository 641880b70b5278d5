package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pedro-hbl/transaction-manager/internal/engine"
	"github.com/pedro-hbl/transaction-manager/internal/metrics"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/dynamodb"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/immudb"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/timestream"
	"github.com/sirupsen/logrus"
)

// ProcessRequest carries a CSV transaction stream to process
type ProcessRequest struct {
	CSV        string                 `json:"csv"`
	RunID      string                 `json:"runId,omitempty"`
	Export     string                 `json:"export,omitempty"` // dynamodb, immudb, timestream
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ProcessResponse represents the result of one processing run
type ProcessResponse struct {
	RunID        string                 `json:"runId"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	Balances     []models.BalanceRecord `json:"balances"`
	Applied      int64                  `json:"applied"`
	Rejected     int64                  `json:"rejected"`
	Skipped      int64                  `json:"skipped"`
	IsColdStart  bool                   `json:"isColdStart"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

// storeFunc creates a balance store; replaced in tests
type storeFunc func(kind string, config databases.Config) (databases.BalanceStore, error)

// handler keeps the state shared by invocations of one Lambda instance
type handler struct {
	collector   *metrics.Collector
	logger      *logrus.Logger
	newStore    storeFunc
	isColdStart bool
}

func newHandler() *handler {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if os.Getenv("DEBUG") == "1" {
		logger.SetLevel(logrus.DebugLevel)
	}

	return &handler{
		collector:   metrics.NewCollector(),
		logger:      logger,
		newStore:    databases.NewBalanceStore,
		isColdStart: true,
	}
}

// openStore creates and initializes the export store. Request parameters
// prefixed with "db." override the environment.
func (h *handler) openStore(ctx context.Context, kind string, params map[string]interface{}) (databases.BalanceStore, error) {
	config := databases.FromEnv().Merge(databases.StripPrefix(params))

	store, err := h.newStore(kind, config)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("error initializing store: %w", err)
	}
	return store, nil
}

// handleRequest is the Lambda handler function
func (h *handler) handleRequest(ctx context.Context, request ProcessRequest) (ProcessResponse, error) {
	startTime := time.Now()
	response := ProcessResponse{IsColdStart: h.isColdStart}
	h.isColdStart = false

	opts := engine.Options{
		RunID:     request.RunID,
		Logger:    h.logger,
		Collector: h.collector,
	}

	if request.Export != "" {
		store, err := h.openStore(ctx, request.Export, request.Parameters)
		if err != nil {
			response.ErrorMessage = fmt.Sprintf("Failed to create store: %v", err)
			h.logger.Error(response.ErrorMessage)
			return response, nil
		}
		defer store.Close()
		opts.Store = store
	}

	result, err := engine.Run(ctx, strings.NewReader(request.CSV), opts)
	if result != nil {
		response.RunID = result.RunID
		response.Balances = result.Records()
		response.Applied = result.Metrics.Counter("applied")
		response.Rejected = result.Metrics.Counter("rejected")
		response.Skipped = result.Metrics.Counter("skipped")
		response.Metrics = result.Metrics.Summary
	}
	if err != nil {
		response.ErrorMessage = fmt.Sprintf("Processing failed: %v", err)
		h.logger.Error(response.ErrorMessage)
		return response, nil
	}

	response.Success = true
	h.logger.WithFields(logrus.Fields{
		"run":     response.RunID,
		"elapsed": time.Since(startTime).String(),
	}).Info("run completed")
	return response, nil
}

func main() {
	h := newHandler()

	// Run as Lambda function if in AWS environment
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.handleRequest)
		return
	}

	h.logger.Info("Running in local mode")

	input := flag.String("input", "", "CSV file to process")
	export := flag.String("export", "", "Store to export the snapshot to")
	flag.Parse()

	request := ProcessRequest{
		CSV: "type,client,tx,amount\ndeposit,1,1,32.0\nwithdrawal,1,2,20.0\n",
		Parameters: map[string]interface{}{
			"db.endpoint":    "http://localhost:8000", // Local DynamoDB
			"db.tableName":   "Balances",
			"db.region":      "us-east-1",
			"db.createTable": true,
		},
		Export: *export,
	}
	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			h.logger.WithError(err).Fatal("failed to read input")
		}
		request.CSV = string(data)
	}

	response, err := h.handleRequest(context.Background(), request)
	if err != nil {
		h.logger.WithError(err).Fatal("request failed")
	}

	jsonResponse, _ := json.MarshalIndent(response, "", "  ")
	fmt.Println(string(jsonResponse))
}
