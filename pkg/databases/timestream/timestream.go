package timestream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	querytypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
)

// maxRecordsPerWrite is the WriteRecords limit
const maxRecordsPerWrite = 100

// measureName names the multi-measure record holding one client's balances
const measureName = "balance"

func init() {
	databases.Register("timestream", NewTimestreamFactory())
}

// WriteAPI is the subset of the Timestream write client used by the store
type WriteAPI interface {
	DescribeDatabase(ctx context.Context, params *timestreamwrite.DescribeDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeDatabaseOutput, error)
	CreateDatabase(ctx context.Context, params *timestreamwrite.CreateDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateDatabaseOutput, error)
	DescribeTable(ctx context.Context, params *timestreamwrite.DescribeTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *timestreamwrite.CreateTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateTableOutput, error)
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

// TimestreamStore keeps balance snapshots as multi-measure records in AWS Timestream
type TimestreamStore struct {
	writeClient WriteAPI
	queryClient timestreamquery.QueryAPIClient
	config      TimestreamConfig
	now         func() time.Time
	initialized bool
}

// TimestreamConfig holds configuration for the Timestream store
type TimestreamConfig struct {
	Region       string
	DatabaseName string
	TableName    string
	Endpoint     string
}

// TimestreamFactory creates Timestream stores
type TimestreamFactory struct{}

// NewTimestreamFactory creates a new Timestream factory
func NewTimestreamFactory() *TimestreamFactory {
	return &TimestreamFactory{}
}

// ConfigFrom reads a TimestreamConfig from generic store settings
func ConfigFrom(config databases.Config) TimestreamConfig {
	return TimestreamConfig{
		Region:       databases.GetParam(config, "region", "us-east-1"),
		DatabaseName: databases.GetParam(config, "databaseName", "TransactionManager"),
		TableName:    databases.GetParam(config, "tableName", "Balances"),
		Endpoint:     databases.GetParam(config, "endpoint", ""),
	}
}

// CreateStore implements the StoreFactory interface
func (f *TimestreamFactory) CreateStore(config databases.Config) (databases.BalanceStore, error) {
	return NewTimestreamStore(context.Background(), ConfigFrom(config))
}

// NewTimestreamStore creates a store backed by the AWS SDK clients
func NewTimestreamStore(ctx context.Context, cfg TimestreamConfig) (*TimestreamStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	writeClient := timestreamwrite.NewFromConfig(awsCfg, func(o *timestreamwrite.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	queryClient := timestreamquery.NewFromConfig(awsCfg, func(o *timestreamquery.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTimestreamStoreWithClients(writeClient, queryClient, cfg), nil
}

// NewTimestreamStoreWithClients creates a store over existing clients
func NewTimestreamStoreWithClients(writeClient WriteAPI, queryClient timestreamquery.QueryAPIClient, cfg TimestreamConfig) *TimestreamStore {
	return &TimestreamStore{
		writeClient: writeClient,
		queryClient: queryClient,
		config:      cfg,
		now:         time.Now,
	}
}

// Initialize implements the BalanceStore interface
func (s *TimestreamStore) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	if err := s.ensureDatabaseExists(ctx); err != nil {
		return fmt.Errorf("failed to ensure database exists: %w", err)
	}
	if err := s.ensureTableExists(ctx); err != nil {
		return fmt.Errorf("failed to ensure table exists: %w", err)
	}

	s.initialized = true
	return nil
}

// Close implements the BalanceStore interface
func (s *TimestreamStore) Close() error {
	// Timestream doesn't require explicit connection closing
	s.initialized = false
	return nil
}

// WriteSnapshot implements the BalanceStore interface
func (s *TimestreamStore) WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error {
	if !s.initialized {
		return databases.ErrNotInitialized
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	for i := 0; i < len(balances); i += maxRecordsPerWrite {
		end := i + maxRecordsPerWrite
		if end > len(balances) {
			end = len(balances)
		}

		records := make([]types.Record, 0, end-i)
		for _, b := range balances[i:end] {
			records = append(records, balanceRecord(runID, ts, b))
		}

		_, err := s.writeClient.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
			DatabaseName: aws.String(s.config.DatabaseName),
			TableName:    aws.String(s.config.TableName),
			Records:      records,
		})
		if err != nil {
			return fmt.Errorf("WriteRecords operation failed: %w", err)
		}
	}
	return nil
}

// balanceRecord builds the multi-measure record for one client. Amounts are
// varchar measures so that no precision is lost.
func balanceRecord(runID, ts string, b models.BalanceRecord) types.Record {
	return types.Record{
		Dimensions: []types.Dimension{
			{Name: aws.String("run_id"), Value: aws.String(runID)},
			{Name: aws.String("client"), Value: aws.String(b.ClientKey())},
		},
		MeasureName:      aws.String(measureName),
		MeasureValueType: types.MeasureValueTypeMulti,
		MeasureValues: []types.MeasureValue{
			{Name: aws.String("available"), Value: aws.String(b.Available), Type: types.MeasureValueTypeVarchar},
			{Name: aws.String("held"), Value: aws.String(b.Held), Type: types.MeasureValueTypeVarchar},
			{Name: aws.String("total"), Value: aws.String(b.Total), Type: types.MeasureValueTypeVarchar},
			{Name: aws.String("locked"), Value: aws.String(strconv.FormatBool(b.Locked)), Type: types.MeasureValueTypeBoolean},
		},
		Time:     aws.String(ts),
		TimeUnit: types.TimeUnitMilliseconds,
	}
}

// ReadSnapshot implements the BalanceStore interface
func (s *TimestreamStore) ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error) {
	if !s.initialized {
		return nil, databases.ErrNotInitialized
	}

	query := fmt.Sprintf(`
		SELECT run_id, client, available, held, total, locked
		FROM "%s"."%s"
		WHERE measure_name = '%s' AND run_id = '%s'
	`, s.config.DatabaseName, s.config.TableName, measureName, strings.ReplaceAll(runID, "'", "''"))

	paginator := timestreamquery.NewQueryPaginator(s.queryClient, &timestreamquery.QueryInput{
		QueryString: aws.String(query),
	})

	var records []models.BalanceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		for _, row := range page.Rows {
			record, err := parseRow(page.ColumnInfo, row)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", databases.ErrSnapshotNotFound, runID)
	}
	models.SortByClient(records)
	return records, nil
}

// parseRow maps a query row onto a BalanceRecord by column name
func parseRow(columns []querytypes.ColumnInfo, row querytypes.Row) (models.BalanceRecord, error) {
	var record models.BalanceRecord
	if len(row.Data) < len(columns) {
		return record, fmt.Errorf("invalid result format")
	}

	for i, col := range columns {
		if col.Name == nil || row.Data[i].ScalarValue == nil {
			continue
		}
		value := *row.Data[i].ScalarValue

		switch *col.Name {
		case "run_id":
			record.RunID = value
		case "client":
			client, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return record, fmt.Errorf("invalid client %q: %w", value, err)
			}
			record.Client = uint16(client)
		case "available":
			record.Available = value
		case "held":
			record.Held = value
		case "total":
			record.Total = value
		case "locked":
			locked, err := strconv.ParseBool(value)
			if err != nil {
				return record, fmt.Errorf("invalid locked %q: %w", value, err)
			}
			record.Locked = locked
		}
	}
	return record, nil
}

// ensureDatabaseExists checks if the database exists and creates it if it doesn't
func (s *TimestreamStore) ensureDatabaseExists(ctx context.Context) error {
	_, err := s.writeClient.DescribeDatabase(ctx, &timestreamwrite.DescribeDatabaseInput{
		DatabaseName: aws.String(s.config.DatabaseName),
	})
	if err == nil {
		return nil
	}

	var notFoundErr *types.ResourceNotFoundException
	if !errors.As(err, &notFoundErr) {
		return fmt.Errorf("error checking database existence: %w", err)
	}

	_, err = s.writeClient.CreateDatabase(ctx, &timestreamwrite.CreateDatabaseInput{
		DatabaseName: aws.String(s.config.DatabaseName),
	})
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

// ensureTableExists checks if the table exists and creates it if it doesn't
func (s *TimestreamStore) ensureTableExists(ctx context.Context) error {
	_, err := s.writeClient.DescribeTable(ctx, &timestreamwrite.DescribeTableInput{
		DatabaseName: aws.String(s.config.DatabaseName),
		TableName:    aws.String(s.config.TableName),
	})
	if err == nil {
		return nil
	}

	var notFoundErr *types.ResourceNotFoundException
	if !errors.As(err, &notFoundErr) {
		return fmt.Errorf("error checking table existence: %w", err)
	}

	_, err = s.writeClient.CreateTable(ctx, &timestreamwrite.CreateTableInput{
		DatabaseName: aws.String(s.config.DatabaseName),
		TableName:    aws.String(s.config.TableName),
		RetentionProperties: &types.RetentionProperties{
			MagneticStoreRetentionPeriodInDays: aws.Int64(365),
			MemoryStoreRetentionPeriodInHours:  aws.Int64(24),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
