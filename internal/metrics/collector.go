package metrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
)

// Outcome represents how a single apply ended
type Outcome string

const (
	// Applied means the transaction changed the ledger
	Applied Outcome = "APPLIED"
	// Rejected means the processor refused the transaction
	Rejected Outcome = "REJECTED"
)

// RunResult stores the metrics for a complete processing run
type RunResult struct {
	RunName    string                 `json:"runName"`
	StartTime  time.Time              `json:"startTime"`
	EndTime    time.Time              `json:"endTime"`
	Duration   time.Duration          `json:"duration"`
	Operations []*ApplyMetric         `json:"-"`
	Skipped    int64                  `json:"skipped"`
	Summary    map[string]interface{} `json:"summary"`
}

// ApplyMetric represents metrics for a single call to Processor.Apply
type ApplyMetric struct {
	Kind     transactions.Type `json:"kind"`
	Duration time.Duration     `json:"duration"`
	Outcome  Outcome           `json:"outcome"`
	Reason   string            `json:"reason,omitempty"`
}

// Collector collects apply metrics for processing runs.
//
// Only the active run is held; EndRun hands the finished result to the
// caller and forgets it, so one Collector can serve any number of runs.
type Collector struct {
	mu         sync.Mutex
	currentRun *RunResult
	runs       map[string]*RunResult
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		runs: make(map[string]*RunResult),
	}
}

// StartRun begins a new run and sets it as the current one. A run that was
// started but never ended is discarded.
func (c *Collector) StartRun(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRun != nil {
		delete(c.runs, c.currentRun.RunName)
	}

	c.currentRun = &RunResult{
		RunName:    name,
		StartTime:  time.Now(),
		Operations: make([]*ApplyMetric, 0),
		Summary:    make(map[string]interface{}),
	}
	c.runs[name] = c.currentRun
}

// MeasureApply times apply and records its outcome against kind. The error
// returned by apply is passed through unchanged.
func (c *Collector) MeasureApply(kind transactions.Type, apply func() error) error {
	if apply == nil {
		return fmt.Errorf("apply function cannot be nil")
	}

	c.mu.Lock()
	if c.currentRun == nil {
		c.mu.Unlock()
		return fmt.Errorf("no run is currently active")
	}
	c.mu.Unlock()

	start := time.Now()
	err := apply()
	metric := &ApplyMetric{
		Kind:     kind,
		Duration: time.Since(start),
		Outcome:  Applied,
	}
	if err != nil {
		metric.Outcome = Rejected
		metric.Reason = reasonOf(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRun != nil {
		c.currentRun.Operations = append(c.currentRun.Operations, metric)
	}
	return err
}

// reasonOf names the rejection reason behind err
func reasonOf(err error) string {
	var rejection *transactions.RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason.Error()
	}
	return err.Error()
}

// RecordSkipped counts an input row that never reached the processor
func (c *Collector) RecordSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRun != nil {
		c.currentRun.Skipped++
	}
}

// EndRun completes the named run, calculates summary metrics, and returns
// the result. The collector keeps no reference to it afterwards.
func (c *Collector) EndRun(name string) *RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, exists := c.runs[name]
	if !exists || run != c.currentRun {
		return nil
	}

	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime)

	var totalDuration time.Duration
	var applied, rejected int64
	byKind := make(map[string]int64)
	byReason := make(map[string]int64)

	for _, op := range run.Operations {
		totalDuration += op.Duration
		byKind[string(op.Kind)]++
		if op.Outcome == Rejected {
			rejected++
			byReason[op.Reason]++
		} else {
			applied++
		}
	}

	opCount := int64(len(run.Operations))
	run.Summary["operationCount"] = opCount
	run.Summary["applied"] = applied
	run.Summary["rejected"] = rejected
	run.Summary["skipped"] = run.Skipped
	run.Summary["byKind"] = byKind
	run.Summary["byReason"] = byReason

	if opCount > 0 {
		run.Summary["totalDuration"] = totalDuration.Nanoseconds()
		run.Summary["avgDuration"] = totalDuration.Nanoseconds() / opCount
		if run.Duration > 0 {
			run.Summary["throughput"] = float64(opCount) / run.Duration.Seconds()
		}

		// Percentiles need enough samples to mean anything
		if opCount >= 10 {
			durations := make([]int64, 0, opCount)
			for _, op := range run.Operations {
				durations = append(durations, op.Duration.Nanoseconds())
			}
			sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

			run.Summary["p50"] = durations[opCount*50/100]
			run.Summary["p90"] = durations[opCount*90/100]
			run.Summary["p99"] = durations[opCount*99/100]
		}
	}

	delete(c.runs, name)
	c.currentRun = nil
	return run
}

// Counter reads an int64 summary entry, zero when absent
func (r *RunResult) Counter(key string) int64 {
	v, _ := r.Summary[key].(int64)
	return v
}

// Breakdown reads a per-kind or per-reason summary entry
func (r *RunResult) Breakdown(key string) map[string]int64 {
	v, _ := r.Summary[key].(map[string]int64)
	return v
}

// GetRunResult retrieves the active run by name, nil once it has ended
func (c *Collector) GetRunResult(name string) *RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.runs[name]
}

// RunCount returns the number of runs the collector is holding
func (c *Collector) RunCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.runs)
}

// Reset clears all run data
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentRun = nil
	c.runs = make(map[string]*RunResult)
}
