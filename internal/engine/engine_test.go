package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pedro-hbl/transaction-manager/internal/metrics"
	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	runID   string
	written []models.BalanceRecord
	err     error
}

func (s *recordingStore) Initialize(ctx context.Context) error { return nil }
func (s *recordingStore) Close() error                         { return nil }
func (s *recordingStore) WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error {
	s.runID = runID
	s.written = balances
	return s.err
}
func (s *recordingStore) ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error) {
	return s.written, nil
}

const disputeInput = `type,client,tx,amount
deposit,1,1,1.0
deposit,2,2,2.0
deposit,1,3,2.0
withdrawal,1,4,1.5
withdrawal,2,5,3.0
dispute,1,1,
chargeback,1,1,
deposit,1,6,5.0
deposit,2,7
bogus,2,8,1
`

func TestRunAppliesAndLogsRejections(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	result, err := Run(context.Background(), strings.NewReader(disputeInput), Options{RunID: "run-1", Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)

	expected := transactions.Snapshot{
		1: {Available: decimal.RequireFromString("0.5"), Held: decimal.Zero, Total: decimal.RequireFromString("0.5"), Locked: true},
		2: {Available: decimal.RequireFromString("2"), Held: decimal.Zero, Total: decimal.RequireFromString("2")},
	}
	assert.True(t, expected.Equal(result.Snapshot), "got %v", result.Snapshot)

	assert.Equal(t, int64(6), result.Metrics.Counter("applied"))
	assert.Equal(t, int64(2), result.Metrics.Counter("rejected"))
	assert.Equal(t, int64(2), result.Metrics.Counter("skipped"))

	var skipped, rejected []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level != logrus.WarnLevel {
			continue
		}
		switch e.Message {
		case "skipping record":
			skipped = append(skipped, e)
		case "transaction rejected":
			rejected = append(rejected, e)
		}
	}
	require.Len(t, skipped, 2)
	assert.ErrorIs(t, skipped[0].Data[logrus.ErrorKey].(error), records.ErrMalformedRecord)

	require.Len(t, rejected, 2)
	assert.Equal(t, uint16(2), rejected[0].Data["client"])
	assert.Equal(t, uint32(5), rejected[0].Data["tx"])
	assert.ErrorIs(t, rejected[0].Data[logrus.ErrorKey].(error), transactions.ErrInsufficientFunds)
	assert.Equal(t, uint32(6), rejected[1].Data["tx"])
	assert.ErrorIs(t, rejected[1].Data[logrus.ErrorKey].(error), transactions.ErrAccountLocked)
}

func TestRunGeneratesRunID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := Run(context.Background(), strings.NewReader("type,client,tx,amount\n"), Options{Logger: logger})
	require.NoError(t, err)
	b, err := Run(context.Background(), strings.NewReader("type,client,tx,amount\n"), Options{Logger: logger})
	require.NoError(t, err)

	assert.Len(t, a.RunID, 36)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Empty(t, a.Snapshot)
}

func TestRunExportsSnapshot(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &recordingStore{}

	result, err := Run(context.Background(), strings.NewReader(disputeInput), Options{RunID: "run-2", Logger: logger, Store: store})
	require.NoError(t, err)

	assert.Equal(t, "run-2", store.runID)
	assert.Equal(t, result.Records(), store.written)
	require.Len(t, store.written, 2)
	assert.Equal(t, "0.5", store.written[0].Available)
	assert.True(t, store.written[0].Locked)
}

func TestRunExportFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &recordingStore{err: errors.New("throttled")}

	result, err := Run(context.Background(), strings.NewReader(disputeInput), Options{Logger: logger, Store: store})
	assert.EqualError(t, err, "failed to export snapshot: throttled")
	require.NotNil(t, result)
	assert.Len(t, result.Snapshot, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, strings.NewReader(disputeInput), Options{Logger: logger})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidHeader(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Run(context.Background(), strings.NewReader("a,b,c\n1,2,3\n"), Options{Logger: logger})
	assert.ErrorIs(t, err, records.ErrInvalidHeader)
}

func TestRunSharesCollector(t *testing.T) {
	logger, _ := test.NewNullLogger()
	collector := metrics.NewCollector()

	result, err := Run(context.Background(), strings.NewReader(disputeInput), Options{RunID: "shared", Logger: logger, Collector: collector})
	require.NoError(t, err)
	assert.Equal(t, "shared", result.Metrics.RunName)
	assert.Zero(t, collector.RunCount())
}
