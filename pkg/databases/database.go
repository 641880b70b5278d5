package databases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
)

var (
	// ErrNotInitialized is returned by store operations called before Initialize
	ErrNotInitialized = errors.New("store not initialized")

	// ErrUnknownStore is returned by NewBalanceStore for an unregistered kind
	ErrUnknownStore = errors.New("unsupported store type")

	// ErrSnapshotNotFound is returned by ReadSnapshot when no rows exist for a run
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// BalanceStore defines the interface that every snapshot backend must satisfy
type BalanceStore interface {
	// Initialize connects to the backend and makes sure the target table exists
	Initialize(ctx context.Context) error
	Close() error

	// WriteSnapshot stores the balances of one processing run
	WriteSnapshot(ctx context.Context, runID string, balances []models.BalanceRecord) error
	// ReadSnapshot returns the balances stored for runID, ordered by client
	ReadSnapshot(ctx context.Context, runID string) ([]models.BalanceRecord, error)
}

// StoreFactory creates and configures a specific BalanceStore implementation
type StoreFactory interface {
	CreateStore(config Config) (BalanceStore, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StoreFactory)
)

// Register makes a store factory available under kind.
// Registering the same kind twice panics.
func Register(kind string, factory StoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	kind = strings.ToLower(kind)
	if factory == nil {
		panic("databases: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic("databases: Register called twice for " + kind)
	}
	registry[kind] = factory
}

// Kinds returns the registered store kinds in sorted order
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewBalanceStore creates a store of the given kind. The store still has to
// be initialized by the caller.
func NewBalanceStore(kind string, config Config) (BalanceStore, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(kind)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, kind)
	}

	store, err := factory.CreateStore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", kind, err)
	}
	return store, nil
}

// Config holds backend settings such as region, tableName or endpoint
type Config map[string]interface{}

// GetParam returns config[key] when it holds a T, defaultValue otherwise
func GetParam[T any](config Config, key string, defaultValue T) T {
	if val, ok := config[key]; ok {
		if result, ok := val.(T); ok {
			return result
		}
	}
	return defaultValue
}

// GetInt reads an integer setting that may arrive as a number (JSON) or a
// string (command line)
func GetInt(config Config, key string, defaultValue int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetBool reads a boolean setting that may arrive as a bool or a string
func GetBool(config Config, key string, defaultValue bool) bool {
	switch v := config[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// envKeys maps environment variables onto config keys
var envKeys = map[string]string{
	"AWS_REGION":       "region",
	"DB_TABLE_NAME":    "tableName",
	"DB_ENDPOINT":      "endpoint",
	"DB_DATABASE_NAME": "databaseName",
	"IMMUDB_ADDRESS":   "address",
	"IMMUDB_PORT":      "port",
	"IMMUDB_USERNAME":  "username",
	"IMMUDB_PASSWORD":  "password",
	"IMMUDB_DATABASE":  "database",
}

// FromEnv builds a Config from the environment variables the stores read
func FromEnv() Config {
	config := make(Config)
	for env, key := range envKeys {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			config[key] = v
		}
	}
	return config
}

// Merge returns a new Config holding c overridden by other
func (c Config) Merge(other Config) Config {
	merged := make(Config, len(c)+len(other))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// ParseParams turns key=value pairs into a Config. A "db." prefix on the key
// is dropped.
func ParseParams(pairs []string) (Config, error) {
	config := make(Config, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimPrefix(strings.TrimSpace(key), "db.")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid store parameter %q, expected key=value", pair)
		}
		config[key] = strings.TrimSpace(value)
	}
	return config, nil
}

// StripPrefix returns the entries of params whose key starts with "db.",
// without the prefix
func StripPrefix(params map[string]interface{}) Config {
	config := make(Config)
	for k, v := range params {
		if strings.HasPrefix(k, "db.") {
			config[strings.TrimPrefix(k, "db.")] = v
		}
	}
	return config
}
