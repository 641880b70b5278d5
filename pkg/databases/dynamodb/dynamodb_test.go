package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient keeps items in memory and serves queries in pages of pageSize
type fakeClient struct {
	tableExists bool
	createCalls int
	batchSizes  []int
	unprocessed int
	pageSize    int
	items       []map[string]types.AttributeValue
}

func (f *fakeClient) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.createCalls++
	return nil, &types.ResourceInUseException{Message: aws.String("in use")}
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		f.batchSizes = append(f.batchSizes, len(reqs))
		for i, req := range reqs {
			if i < f.unprocessed {
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			f.items = append(f.items, req.PutRequest.Item)
		}
	}
	return out, nil
}

func (f *fakeClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	runID := in.ExpressionAttributeValues[":runId"].(*types.AttributeValueMemberS).Value

	var matching []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["runId"].(*types.AttributeValueMemberS).Value == runID {
			matching = append(matching, item)
		}
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		fmt.Sscan(in.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value, &start)
	}
	end := start + f.pageSize
	if end > len(matching) {
		end = len(matching)
	}

	out := &dynamodb.QueryOutput{Items: matching[start:end]}
	if end < len(matching) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: fmt.Sprint(end)},
		}
	}
	return out, nil
}

func newTestStore(t *testing.T, client *fakeClient) *DynamoDBStore {
	t.Helper()
	client.tableExists = true
	if client.pageSize == 0 {
		client.pageSize = 10
	}
	store := NewDynamoDBStoreWithClient(client, DynamoDBConfig{TableName: "Balances"})
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func balances(n int) []models.BalanceRecord {
	records := make([]models.BalanceRecord, 0, n)
	for i := n; i > 0; i-- {
		records = append(records, models.BalanceRecord{
			Client:    uint16(i),
			Available: fmt.Sprintf("%d.5", i),
			Held:      "0",
			Total:     fmt.Sprintf("%d.5", i),
			Locked:    i%7 == 0,
		})
	}
	return records
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(databases.Config{
		"tableName":       "Custom",
		"endpoint":        "http://localhost:8000",
		"provisionedRCUs": "10",
		"createTable":     "true",
	})
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "Custom", cfg.TableName)
	assert.Equal(t, "http://localhost:8000", cfg.Endpoint)
	assert.Equal(t, int64(10), cfg.ProvisionedRCUs)
	assert.Equal(t, int64(5), cfg.ProvisionedWCUs)
	assert.True(t, cfg.CreateTable)
}

func TestRequiresInitialize(t *testing.T) {
	store := NewDynamoDBStoreWithClient(&fakeClient{}, DynamoDBConfig{TableName: "Balances"})

	err := store.WriteSnapshot(context.Background(), "run", balances(1))
	assert.ErrorIs(t, err, databases.ErrNotInitialized)

	_, err = store.ReadSnapshot(context.Background(), "run")
	assert.ErrorIs(t, err, databases.ErrNotInitialized)
}

func TestInitializeMissingTable(t *testing.T) {
	client := &fakeClient{}
	store := NewDynamoDBStoreWithClient(client, DynamoDBConfig{TableName: "Balances"})
	err := store.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	store = NewDynamoDBStoreWithClient(client, DynamoDBConfig{TableName: "Balances", CreateTable: true})
	require.NoError(t, store.Initialize(context.Background()))
	assert.Equal(t, 1, client.createCalls)
}

func TestWriteSnapshotBatches(t *testing.T) {
	client := &fakeClient{}
	store := newTestStore(t, client)

	require.NoError(t, store.WriteSnapshot(context.Background(), "run-1", balances(60)))
	assert.Equal(t, []int{25, 25, 10}, client.batchSizes)
	require.Len(t, client.items, 60)

	var first models.BalanceRecord
	require.NoError(t, attributevalue.UnmarshalMap(client.items[0], &first))
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, uint16(60), first.Client)
	assert.Equal(t, "60.5", first.Available)
}

func TestWriteSnapshotReportsUnprocessed(t *testing.T) {
	client := &fakeClient{unprocessed: 2}
	store := newTestStore(t, client)

	err := store.WriteSnapshot(context.Background(), "run-1", balances(30))
	require.Error(t, err)
	assert.Equal(t, "4 balances were not processed", err.Error())
}

func TestReadSnapshotPaginatesAndSorts(t *testing.T) {
	client := &fakeClient{pageSize: 4}
	store := newTestStore(t, client)
	ctx := context.Background()

	require.NoError(t, store.WriteSnapshot(ctx, "run-1", balances(9)))
	require.NoError(t, store.WriteSnapshot(ctx, "run-2", balances(3)))

	got, err := store.ReadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 9)
	for i, r := range got {
		assert.Equal(t, uint16(i+1), r.Client)
		assert.Equal(t, "run-1", r.RunID)
	}
	assert.True(t, got[6].Locked)

	snap, err := models.SnapshotFromRecords(got)
	require.NoError(t, err)
	assert.Equal(t, "9.5", snap[9].Total.String())
}

func TestReadSnapshotNotFound(t *testing.T) {
	store := newTestStore(t, &fakeClient{})
	_, err := store.ReadSnapshot(context.Background(), "missing")
	assert.True(t, errors.Is(err, databases.ErrSnapshotNotFound))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, databases.Kinds(), "dynamodb")
}
