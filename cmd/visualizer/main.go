package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pedro-hbl/transaction-manager/internal/report"
	"github.com/pedro-hbl/transaction-manager/pkg/records"
	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
)

// BalanceFile is one loaded balances CSV
type BalanceFile struct {
	Name     string
	Snapshot transactions.Snapshot
}

// OutputOptions for visualization
type OutputOptions struct {
	Format    string // text, chart, all
	OutputDir string
}

// Command line flags
var (
	inputPath  = flag.String("input", "", "Path to a balances CSV file or a directory of them")
	outputPath = flag.String("output", "visualizations", "Directory to store visualization outputs")
	format     = flag.String("format", "all", "Output format: text, chart, all")
)

func main() {
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("Input path is required. Use --input flag to specify the directory or file.")
	}
	if *format != "text" && *format != "chart" && *format != "all" {
		log.Fatalf("Unsupported format %q", *format)
	}

	if err := os.MkdirAll(*outputPath, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	files, err := loadBalanceFiles(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load balances: %v", err)
	}
	if len(files) == 0 {
		log.Fatal("No balance files found.")
	}
	fmt.Printf("Loaded %d balance files.\n", len(files))

	opts := OutputOptions{Format: *format, OutputDir: *outputPath}
	for _, f := range files {
		if opts.Format == "text" || opts.Format == "all" {
			if err := generateTextSummary(f, opts); err != nil {
				fmt.Printf("Warning: %v\n", err)
			}
		}
		if opts.Format == "chart" || opts.Format == "all" {
			if err := generateChart(f, opts); err != nil {
				fmt.Printf("Warning: %v\n", err)
			}
		}
	}
}

// loadBalanceFiles loads one CSV file or every .csv file under a directory
func loadBalanceFiles(path string) ([]BalanceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		f, err := loadBalanceFile(path)
		if err != nil {
			return nil, err
		}
		return []BalanceFile{f}, nil
	}

	var files []BalanceFile
	err = filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".csv") {
			return nil
		}
		f, err := loadBalanceFile(filePath)
		if err != nil {
			fmt.Printf("Warning: Skipping file %s: %v\n", filePath, err)
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func loadBalanceFile(path string) (BalanceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return BalanceFile{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	snap, err := records.ReadSnapshot(f)
	if err != nil {
		return BalanceFile{}, err
	}
	return BalanceFile{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Snapshot: snap,
	}, nil
}

// generateTextSummary prints the balance table and saves it as markdown
func generateTextSummary(f BalanceFile, opts OutputOptions) error {
	var buf bytes.Buffer
	report.WriteBalanceTable(&buf, f.Snapshot)

	fmt.Printf("\n=== Balances: %s ===\n", f.Name)
	fmt.Print(buf.String())

	locked := 0
	for _, b := range f.Snapshot {
		if b.Locked {
			locked++
		}
	}

	outputFile := filepath.Join(opts.OutputDir, f.Name+"_summary.md")
	content := fmt.Sprintf("# Balances: %s\n\nClients: %d\nLocked: %d\n\n%s", f.Name, len(f.Snapshot), locked, buf.String())
	if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	fmt.Printf("Text summary saved to: %s\n", outputFile)
	return nil
}

// generateChart renders the total balance per client as a PNG bar chart
func generateChart(f BalanceFile, opts OutputOptions) error {
	outputFile := filepath.Join(opts.OutputDir, f.Name+"_chart.png")
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer out.Close()

	if err := report.RenderBalanceChart(out, "Total balance by client - "+f.Name, f.Snapshot); err != nil {
		return err
	}

	fmt.Printf("Chart for %s saved to: %s\n", f.Name, outputFile)
	return nil
}
