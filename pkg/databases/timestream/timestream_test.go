package timestream

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	querytypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	databaseExists bool
	tableExists    bool
	created        []string
	writes         [][]types.Record
}

func (f *fakeWriter) DescribeDatabase(ctx context.Context, in *timestreamwrite.DescribeDatabaseInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeDatabaseOutput, error) {
	if !f.databaseExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &timestreamwrite.DescribeDatabaseOutput{}, nil
}

func (f *fakeWriter) CreateDatabase(ctx context.Context, in *timestreamwrite.CreateDatabaseInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateDatabaseOutput, error) {
	f.created = append(f.created, "database:"+aws.ToString(in.DatabaseName))
	return &timestreamwrite.CreateDatabaseOutput{}, nil
}

func (f *fakeWriter) DescribeTable(ctx context.Context, in *timestreamwrite.DescribeTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeTableOutput, error) {
	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &timestreamwrite.DescribeTableOutput{}, nil
}

func (f *fakeWriter) CreateTable(ctx context.Context, in *timestreamwrite.CreateTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateTableOutput, error) {
	f.created = append(f.created, "table:"+aws.ToString(in.TableName))
	return &timestreamwrite.CreateTableOutput{}, nil
}

func (f *fakeWriter) WriteRecords(ctx context.Context, in *timestreamwrite.WriteRecordsInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error) {
	f.writes = append(f.writes, in.Records)
	return &timestreamwrite.WriteRecordsOutput{}, nil
}

// fakeQuerier answers every query from the records written to w, two rows per page
type fakeQuerier struct {
	w       *fakeWriter
	queries []string
}

func (f *fakeQuerier) Query(ctx context.Context, in *timestreamquery.QueryInput, _ ...func(*timestreamquery.Options)) (*timestreamquery.QueryOutput, error) {
	f.queries = append(f.queries, aws.ToString(in.QueryString))

	columns := []querytypes.ColumnInfo{
		{Name: aws.String("run_id")},
		{Name: aws.String("client")},
		{Name: aws.String("available")},
		{Name: aws.String("held")},
		{Name: aws.String("total")},
		{Name: aws.String("locked")},
	}

	var rows []querytypes.Row
	for _, batch := range f.w.writes {
		for _, r := range batch {
			if !strings.Contains(aws.ToString(in.QueryString), "run_id = '"+aws.ToString(r.Dimensions[0].Value)+"'") {
				continue
			}
			data := []querytypes.Datum{
				{ScalarValue: r.Dimensions[0].Value},
				{ScalarValue: r.Dimensions[1].Value},
			}
			for _, m := range r.MeasureValues {
				data = append(data, querytypes.Datum{ScalarValue: m.Value})
			}
			rows = append(rows, querytypes.Row{Data: data})
		}
	}

	start := 0
	if in.NextToken != nil {
		start = len(aws.ToString(in.NextToken))
	}
	end := start + 2
	if end > len(rows) {
		end = len(rows)
	}

	out := &timestreamquery.QueryOutput{ColumnInfo: columns, Rows: rows[start:end]}
	if end < len(rows) {
		out.NextToken = aws.String(strings.Repeat("x", end))
	}
	return out, nil
}

func newTestStore(t *testing.T) (*TimestreamStore, *fakeWriter, *fakeQuerier) {
	t.Helper()
	w := &fakeWriter{databaseExists: true, tableExists: true}
	q := &fakeQuerier{w: w}
	store := NewTimestreamStoreWithClients(w, q, TimestreamConfig{DatabaseName: "TM", TableName: "Balances"})
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, store.Initialize(context.Background()))
	return store, w, q
}

func TestInitializeCreatesMissingResources(t *testing.T) {
	w := &fakeWriter{}
	store := NewTimestreamStoreWithClients(w, &fakeQuerier{w: w}, ConfigFrom(databases.Config{}))
	require.NoError(t, store.Initialize(context.Background()))
	assert.Equal(t, []string{"database:TransactionManager", "table:Balances"}, w.created)
}

func TestBalanceRecordUsesMultiMeasure(t *testing.T) {
	r := balanceRecord("run-1", "42", models.BalanceRecord{Client: 7, Available: "1.2345", Held: "0", Total: "1.2345", Locked: true})

	assert.Equal(t, types.MeasureValueTypeMulti, r.MeasureValueType)
	assert.Equal(t, "7", aws.ToString(r.Dimensions[1].Value))
	require.Len(t, r.MeasureValues, 4)
	assert.Equal(t, "1.2345", aws.ToString(r.MeasureValues[0].Value))
	assert.Equal(t, types.MeasureValueTypeVarchar, r.MeasureValues[0].Type)
	assert.Equal(t, "true", aws.ToString(r.MeasureValues[3].Value))
	assert.Equal(t, "42", aws.ToString(r.Time))
}

func TestWriteAndReadSnapshot(t *testing.T) {
	store, w, q := newTestStore(t)
	ctx := context.Background()

	records := make([]models.BalanceRecord, 0, 150)
	for i := 150; i > 0; i-- {
		records = append(records, models.BalanceRecord{Client: uint16(i), Available: "1", Held: "0", Total: "1"})
	}
	records[149].Locked = true

	require.NoError(t, store.WriteSnapshot(ctx, "run-1", records))
	require.Len(t, w.writes, 2)
	assert.Len(t, w.writes[0], 100)
	assert.Len(t, w.writes[1], 50)

	got, err := store.ReadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 150)
	assert.Equal(t, uint16(1), got[0].Client)
	assert.True(t, got[0].Locked)
	assert.Equal(t, uint16(150), got[149].Client)
	assert.Equal(t, "run-1", got[149].RunID)
	assert.Contains(t, q.queries[0], `FROM "TM"."Balances"`)
}

func TestReadSnapshotNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.ReadSnapshot(context.Background(), "it's-missing")
	assert.ErrorIs(t, err, databases.ErrSnapshotNotFound)
}

func TestParseRowRejectsBadClient(t *testing.T) {
	_, err := parseRow(
		[]querytypes.ColumnInfo{{Name: aws.String("client")}},
		querytypes.Row{Data: []querytypes.Datum{{ScalarValue: aws.String("x")}}},
	)
	assert.Error(t, err)
}
