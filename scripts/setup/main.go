package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pedro-hbl/transaction-manager/pkg/databases"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/dynamodb"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/immudb"
	_ "github.com/pedro-hbl/transaction-manager/pkg/databases/timestream"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime)

	// Get the stores to set up from command line args
	args := os.Args[1:]
	if len(args) == 0 || (len(args) == 1 && strings.EqualFold(args[0], "all")) {
		args = databases.Kinds()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for _, kind := range args {
		if err := setup(ctx, strings.ToLower(kind)); err != nil {
			log.Fatalf("Failed to set up %s: %v", kind, err)
		}
	}
	log.Println("Setup completed successfully")
}

// setup creates the balance table of one store kind. Settings come from the
// same environment variables the stores read at run time.
func setup(ctx context.Context, kind string) error {
	log.Printf("Setting up %s...", kind)

	config := databases.FromEnv().Merge(databases.Config{"createTable": true})
	store, err := databases.NewBalanceStore(kind, config)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return err
	}

	log.Printf("%s is ready", kind)
	return nil
}
