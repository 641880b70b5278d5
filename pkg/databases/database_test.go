package databases

import (
	"context"
	"errors"
	"testing"

	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	config Config
}

func (m *memoryStore) Initialize(ctx context.Context) error { return nil }
func (m *memoryStore) Close() error                         { return nil }
func (m *memoryStore) WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error {
	return nil
}
func (m *memoryStore) ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error) {
	return nil, ErrSnapshotNotFound
}

type memoryFactory struct {
	err error
}

func (f memoryFactory) CreateStore(config Config) (BalanceStore, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &memoryStore{config: config}, nil
}

func TestRegistry(t *testing.T) {
	Register("Memory-Test", memoryFactory{})
	Register("broken-test", memoryFactory{err: errors.New("boom")})

	assert.Contains(t, Kinds(), "memory-test")

	store, err := NewBalanceStore("MEMORY-TEST", Config{"tableName": "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", store.(*memoryStore).config["tableName"])

	_, err = NewBalanceStore("broken-test", nil)
	assert.EqualError(t, err, "failed to create broken-test store: boom")

	_, err = NewBalanceStore("cassandra", nil)
	assert.ErrorIs(t, err, ErrUnknownStore)

	assert.Panics(t, func() { Register("memory-test", memoryFactory{}) })
	assert.Panics(t, func() { Register("nil-test", nil) })
}

func TestGetParam(t *testing.T) {
	config := Config{"region": "eu-west-1", "port": float64(3323), "createTable": "true", "limit": "x"}

	assert.Equal(t, "eu-west-1", GetParam(config, "region", "us-east-1"))
	assert.Equal(t, "us-east-1", GetParam(config, "missing", "us-east-1"))
	assert.Equal(t, "fallback", GetParam(config, "port", "fallback"))

	assert.Equal(t, 3323, GetInt(config, "port", 0))
	assert.Equal(t, 7, GetInt(config, "limit", 7))
	assert.Equal(t, 7, GetInt(Config{"n": "7"}, "n", 0))

	assert.True(t, GetBool(config, "createTable", false))
	assert.True(t, GetBool(Config{"b": true}, "b", false))
	assert.False(t, GetBool(config, "region", false))
}

func TestParseParams(t *testing.T) {
	config, err := ParseParams([]string{"tableName=Balances", "db.endpoint = http://localhost:8000", "password=a=b"})
	require.NoError(t, err)
	assert.Equal(t, Config{
		"tableName": "Balances",
		"endpoint":  "http://localhost:8000",
		"password":  "a=b",
	}, config)

	_, err = ParseParams([]string{"tableName"})
	assert.Error(t, err)
	_, err = ParseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestFromEnvAndMerge(t *testing.T) {
	t.Setenv("AWS_REGION", "sa-east-1")
	t.Setenv("DB_TABLE_NAME", "EnvTable")
	t.Setenv("DB_ENDPOINT", "")

	env := FromEnv()
	assert.Equal(t, "sa-east-1", env["region"])
	assert.Equal(t, "EnvTable", env["tableName"])
	_, ok := env["endpoint"]
	assert.False(t, ok)

	merged := env.Merge(Config{"tableName": "FlagTable"})
	assert.Equal(t, "FlagTable", merged["tableName"])
	assert.Equal(t, "sa-east-1", merged["region"])
	assert.Equal(t, "EnvTable", env["tableName"])
}

func TestStripPrefix(t *testing.T) {
	config := StripPrefix(map[string]interface{}{
		"db.tableName": "Balances",
		"db.port":      float64(3322),
		"verbose":      true,
	})
	assert.Equal(t, Config{"tableName": "Balances", "port": float64(3322)}, config)
}
