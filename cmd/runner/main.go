package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pedro-hbl/transaction-manager/pkg/databases/models"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
)

// invocationPath is the Lambda runtime interface emulator's invoke route
const invocationPath = "/2015-03-31/functions/function/invocations"

// ProcessRequest is the payload sent to the process function
type ProcessRequest struct {
	CSV        string                 `json:"csv"`
	RunID      string                 `json:"runId,omitempty"`
	Export     string                 `json:"export,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ProcessResponse holds the result of one remote run
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
	Timestamp    time.Time              `json:"timestamp"`
}

// JobDefinition lists runs to submit, read from a JSON file
type JobDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Runs []struct {
		ID     string                 `json:"id"`
		Input  string                 `json:"input"`
		Export string                 `json:"export,omitempty"`
		Config map[string]interface{} `json:"config,omitempty"`
	} `json:"runs"`
}

// Command line flags
var (
	lambdaEndpoint = flag.String("lambda-endpoint", "", "Lambda function endpoint URL")
	inputFile      = flag.String("input", "", "CSV file of transactions to submit")
	export         = flag.String("export", "", "Store the snapshot in: dynamodb, immudb, timestream")
	outputDir      = flag.String("output", "", "Directory to store result files")
	verbose        = flag.Bool("verbose", false, "Enable verbose output")
	configFile     = flag.String("config", "", "Path to a job definition file")
)

func main() {
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime)

	if *lambdaEndpoint == "" {
		*lambdaEndpoint = os.Getenv("LAMBDA_ENDPOINT")
		if *lambdaEndpoint == "" {
			log.Fatalf("Lambda endpoint not specified. Use --lambda-endpoint flag or LAMBDA_ENDPOINT environment variable")
		}
	}

	if *outputDir == "" {
		*outputDir = os.Getenv("RESULTS_DIR")
		if *outputDir == "" {
			*outputDir = "./results"
		}
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	if *configFile != "" {
		job, err := loadJobDefinition(*configFile)
		if err != nil {
			log.Fatalf("Failed to load job definition: %v", err)
		}
		log.Printf("Running job: %s - %s (%d runs)", job.ID, job.Name, len(job.Runs))

		for _, r := range job.Runs {
			params := make(map[string]interface{}, len(r.Config))
			for k, v := range r.Config {
				params["db."+k] = v
			}
			submitFile(r.ID, r.Input, r.Export, params)
		}
		log.Printf("Completed all runs for job: %s", job.ID)
		return
	}

	if *inputFile == "" {
		log.Fatal("Input file is required. Use --input or --config.")
	}
	submitFile("", *inputFile, *export, nil)
}

// submitFile sends one CSV file to the process function and saves the result
func submitFile(runID, path, exportTo string, params map[string]interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	request := ProcessRequest{CSV: string(data), RunID: runID, Export: exportTo, Parameters: params}
	log.Printf("Submitting %s (%d bytes) to %s", path, len(data), *lambdaEndpoint)

	result, err := invoke(http.DefaultClient, *lambdaEndpoint, request)
	if err != nil {
		log.Fatalf("Failed to invoke Lambda function: %v", err)
	}
	result.Timestamp = time.Now()

	saveResult(result)
	printSummary(result)
}

// invoke posts request to the function behind endpoint
func invoke(client *http.Client, endpoint string, request ProcessRequest) (*ProcessResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if *verbose {
		log.Printf("Request payload: %s", string(jsonData))
	}

	resp, err := client.Post(strings.TrimSuffix(endpoint, "/")+invocationPath, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if *verbose {
		log.Printf("Response: %s", string(body))
	}

	var result ProcessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &result, nil
}

var envVarPattern = regexp.MustCompile(`\${([A-Za-z0-9_]+)}`)

// loadJobDefinition reads a job file, replacing ${VAR} with environment values
func loadJobDefinition(path string) (*JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := match[2 : len(match)-1]
		value := os.Getenv(name)
		if value == "" {
			log.Printf("Warning: Environment variable %s not set", name)
			return match
		}
		return value
	})

	var job JobDefinition
	if err := json.Unmarshal([]byte(expanded), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job definition: %w", err)
	}
	return &job, nil
}

// saveResult writes the raw response as JSON and the balances as CSV
func saveResult(result *ProcessResponse) {
	base := filepath.Join(*outputDir, fmt.Sprintf("%s-%s", result.RunID, result.Timestamp.Format("20060102-150405")))

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal result to JSON: %v", err)
		return
	}
	if err := os.WriteFile(base+".json", jsonData, 0644); err != nil {
		log.Printf("Failed to write result to file: %v", err)
		return
	}
	log.Printf("Result saved to %s.json", base)

	if err := writeBalances(base+".csv", result.Balances); err != nil {
		log.Printf("Failed to write balances: %v", err)
		return
	}
	log.Printf("Balances saved to %s.csv", base)
}

func writeBalances(path string, balances []models.BalanceRecord) error {
	snap, err := models.SnapshotFromRecords(balances)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return records.WriteSnapshot(f, snap)
}

func printSummary(result *ProcessResponse) {
	if !result.Success {
		log.Printf("Run failed: %s", result.ErrorMessage)
		return
	}

	log.Printf("==== Run Summary ====")
	log.Printf("Run:         %s", result.RunID)
	log.Printf("Clients:     %d", len(result.Balances))
	log.Printf("Applied:     %d", result.Applied)
	log.Printf("Rejected:    %d", result.Rejected)
	log.Printf("Skipped:     %d", result.Skipped)
	log.Printf("Cold start:  %t", result.IsColdStart)
	log.Printf("=====================")
}
