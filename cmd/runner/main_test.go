package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke(t *testing.T) {
	var got ProcessRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, invocationPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ProcessResponse{
			RunID:    "run-1",
			Success:  true,
			Applied:  2,
			Balances: []models.BalanceRecord{{RunID: "run-1", Client: 1, Available: "12", Held: "0", Total: "12"}},
		})
	}))
	defer server.Close()

	result, err := invoke(server.Client(), server.URL+"/", ProcessRequest{CSV: "type,client,tx,amount\n", Export: "dynamodb"})
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", got.Export)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, int64(2), result.Applied)
	require.Len(t, result.Balances, 1)
}

func TestInvokeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := invoke(server.Client(), server.URL, ProcessRequest{})
	assert.EqualError(t, err, "unexpected status 500: boom")
}

func TestLoadJobDefinition(t *testing.T) {
	t.Setenv("BALANCE_TABLE", "Balances")
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"id": "nightly",
		"runs": [
			{"id": "a", "input": "a.csv", "export": "dynamodb", "config": {"tableName": "${BALANCE_TABLE}", "endpoint": "${UNSET_ENDPOINT_VAR}"}}
		]
	}`), 0644))

	job, err := loadJobDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", job.ID)
	require.Len(t, job.Runs, 1)
	assert.Equal(t, "Balances", job.Runs[0].Config["tableName"])
	assert.Equal(t, "${UNSET_ENDPOINT_VAR}", job.Runs[0].Config["endpoint"])
}

func TestWriteBalances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balances.csv")
	require.NoError(t, writeBalances(path, []models.BalanceRecord{
		{Client: 2, Available: "1", Held: "0", Total: "1"},
		{Client: 1, Available: "0", Held: "0", Total: "0", Locked: true},
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	snap, err := records.ReadSnapshot(f)
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.True(t, snap[1].Locked)
}
