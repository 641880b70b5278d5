package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
)

// maxBatchSize is the BatchWriteItem limit
const maxBatchSize = 25

func init() {
	databases.Register("dynamodb", NewDynamoDBFactory())
}

// API is the subset of the DynamoDB client used by the store
type API interface {
	dynamodb.QueryAPIClient
	dynamodb.DescribeTableAPIClient
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBStore keeps balance snapshots in a DynamoDB table keyed by
// runId (hash) and client (range)
type DynamoDBStore struct {
	client      API
	config      DynamoDBConfig
	initialized bool
}

// DynamoDBConfig holds the configuration for a DynamoDB store
type DynamoDBConfig struct {
	Region          string
	TableName       string
	Endpoint        string
	ProvisionedRCUs int64
	ProvisionedWCUs int64
	CreateTable     bool
}

// DynamoDBFactory creates DynamoDB stores
type DynamoDBFactory struct{}

// NewDynamoDBFactory creates a new DynamoDB factory
func NewDynamoDBFactory() *DynamoDBFactory {
	return &DynamoDBFactory{}
}

// ConfigFrom reads a DynamoDBConfig from generic store settings
func ConfigFrom(config databases.Config) DynamoDBConfig {
	return DynamoDBConfig{
		Region:          databases.GetParam(config, "region", "us-east-1"),
		TableName:       databases.GetParam(config, "tableName", "Balances"),
		Endpoint:        databases.GetParam(config, "endpoint", ""),
		ProvisionedRCUs: int64(databases.GetInt(config, "provisionedRCUs", 5)),
		ProvisionedWCUs: int64(databases.GetInt(config, "provisionedWCUs", 5)),
		CreateTable:     databases.GetBool(config, "createTable", false),
	}
}

// CreateStore implements the StoreFactory interface
func (f *DynamoDBFactory) CreateStore(config databases.Config) (databases.BalanceStore, error) {
	return NewDynamoDBStore(context.Background(), ConfigFrom(config))
}

// NewDynamoDBStore creates a store backed by the AWS SDK client
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoDBStoreWithClient(client, cfg), nil
}

// NewDynamoDBStoreWithClient creates a store over an existing client
func NewDynamoDBStoreWithClient(client API, cfg DynamoDBConfig) *DynamoDBStore {
	return &DynamoDBStore{client: client, config: cfg}
}

// Initialize implements the BalanceStore interface
func (s *DynamoDBStore) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	})
	if err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if !errors.As(err, &notFoundErr) {
			return fmt.Errorf("error checking table: %w", err)
		}
		if !s.config.CreateTable {
			return fmt.Errorf("table %s does not exist", s.config.TableName)
		}
		if err := s.createBalanceTable(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	s.initialized = true
	return nil
}

// Close implements the BalanceStore interface
func (s *DynamoDBStore) Close() error {
	// DynamoDB doesn't require explicit connection closing
	s.initialized = false
	return nil
}

// WriteSnapshot implements the BalanceStore interface
func (s *DynamoDBStore) WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error {
	if !s.initialized {
		return databases.ErrNotInitialized
	}

	unprocessed := 0
	for i := 0; i < len(balances); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(balances) {
			end = len(balances)
		}

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for _, record := range balances[i:end] {
			record.RunID = runID
			item, err := attributevalue.MarshalMap(record)
			if err != nil {
				return fmt.Errorf("failed to marshal balance of client %d: %w", record.Client, err)
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.config.TableName: writeRequests,
			},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem operation failed: %w", err)
		}
		unprocessed += len(result.UnprocessedItems[s.config.TableName])
	}

	if unprocessed > 0 {
		return fmt.Errorf("%d balances were not processed", unprocessed)
	}
	return nil
}

// ReadSnapshot implements the BalanceStore interface
func (s *DynamoDBStore) ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error) {
	if !s.initialized {
		return nil, databases.ErrNotInitialized
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("runId = :runId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":runId": &types.AttributeValueMemberS{Value: runID},
		},
		ConsistentRead: aws.Bool(true),
	})

	var records []models.BalanceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("Query operation failed: %w", err)
		}

		var batch []models.BalanceRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal balances: %w", err)
		}
		records = append(records, batch...)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", databases.ErrSnapshotNotFound, runID)
	}
	models.SortByClient(records)
	return records, nil
}

// createBalanceTable creates the balances table and waits for it to become active
func (s *DynamoDBStore) createBalanceTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.TableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("runId"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("client"),
				AttributeType: types.ScalarAttributeTypeN,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("runId"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("client"),
				KeyType:       types.KeyTypeRange,
			},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(s.config.ProvisionedRCUs),
			WriteCapacityUnits: aws.Int64(s.config.ProvisionedWCUs),
		},
	})
	if err != nil {
		var inUseErr *types.ResourceInUseException
		if errors.As(err, &inUseErr) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	}, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}
	return nil
}
