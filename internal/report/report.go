package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pedro-hbl/transaction-manager/internal/metrics"
	"github.com/pedro-hbl/transaction-manager/pkg/transactions"
	"github.com/wcharczuk/go-chart/v2"
)

// ErrNoBalances is returned when a chart is requested for an empty snapshot
var ErrNoBalances = errors.New("no balances to chart")

// newTable returns a table writer in markdown layout
func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	return table
}

// WriteBalanceTable writes one row per client, ordered by client id
func WriteBalanceTable(w io.Writer, snap transactions.Snapshot) {
	table := newTable(w, []string{"client", "available", "held", "total", "locked"})
	for _, b := range snap.Sorted() {
		table.Append([]string{
			strconv.FormatUint(uint64(b.Client), 10),
			b.Available.String(),
			b.Held.String(),
			b.Total.String(),
			strconv.FormatBool(b.Locked),
		})
	}
	table.Render()
}

// WriteSummaryTable writes the counters of a finished run followed by the
// per-kind and per-reason breakdowns
func WriteSummaryTable(w io.Writer, result *metrics.RunResult) {
	table := newTable(w, []string{"metric", "value"})
	for _, key := range []string{"applied", "rejected", "skipped"} {
		table.Append([]string{key, strconv.FormatInt(result.Counter(key), 10)})
	}
	for _, section := range []string{"byKind", "byReason"} {
		breakdown := result.Breakdown(section)
		keys := make([]string, 0, len(breakdown))
		for k := range breakdown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			table.Append([]string{section + ":" + k, strconv.FormatInt(breakdown[k], 10)})
		}
	}
	for _, key := range []string{"avgDuration", "p50", "p90", "p99"} {
		if v, ok := result.Summary[key].(int64); ok {
			table.Append([]string{key + " (ns)", strconv.FormatInt(v, 10)})
		}
	}
	table.Render()
}

// BalanceChart builds a bar chart of each client's total balance
func BalanceChart(title string, snap transactions.Snapshot) (chart.BarChart, error) {
	sorted := snap.Sorted()
	if len(sorted) == 0 {
		return chart.BarChart{}, ErrNoBalances
	}

	bars := make([]chart.Value, 0, len(sorted))
	lo, hi := 0.0, 0.0
	for _, b := range sorted {
		v := b.Total.InexactFloat64()
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		label := strconv.FormatUint(uint64(b.Client), 10)
		if b.Locked {
			label += " (locked)"
		}
		bars = append(bars, chart.Value{Label: label, Value: v})
	}
	if lo == hi {
		hi = lo + 1
	}

	barChart := chart.BarChart{
		Title: title,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    800,
		Height:   400,
		BarWidth: 40,
		Bars:     bars,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: func(v interface{}) string {
				if vf, isFloat := v.(float64); isFloat {
					return fmt.Sprintf("%.4f", vf)
				}
				return ""
			},
		},
	}
	return barChart, nil
}

// RenderBalanceChart writes the balance chart of snap to w as PNG
func RenderBalanceChart(w io.Writer, title string, snap transactions.Snapshot) error {
	barChart, err := BalanceChart(title, snap)
	if err != nil {
		return err
	}
	if err := barChart.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
