// Package output renders run statistics for people and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// Write renders stats in the requested format.
func Write(w io.Writer, format config.OutputFormat, stats metrics.Statistics) error {
	switch format {
	case config.OutputJSON:
		return PrintJSONReport(w, stats)
	case config.OutputYAML:
		return PrintYAMLReport(w, stats)
	case config.OutputText, "":
		PrintReport(w, stats)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Statistics) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if stats.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", stats.RunID)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Responses:         %d\n", stats.Responses)
	fmt.Fprintf(w, "Failed:            %d (%.2f%%)\n", stats.Failures, stats.FailureRate()*100)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	if stats.Discarded > 0 {
		fmt.Fprintf(w, "Discarded:         %d (completed after the run ended)\n", stats.Discarded)
	}

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Checks) > 0 {
		fmt.Fprintln(w, "\nChecks:")
		for _, c := range stats.Checks {
			mark := "✓"
			if c.Fails > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s: %.2f%% (%d passed, %d failed)\n", mark, c.Name, c.PassRate*100, c.Passes, c.Fails)
		}
	}

	if rows := stats.StatusBuckets(); len(rows) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		writeBuckets(w, rows, "  ")
	}
	if rows := stats.FailureBuckets(); len(rows) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		writeBuckets(w, rows, "  ")
	}
}

// PrintThresholds outputs threshold results after the report.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Statistics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, stats metrics.Statistics) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stats); err != nil {
		return err
	}
	return enc.Close()
}

func writeBuckets(w io.Writer, rows []metrics.Bucket, indent string) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s: %d\n", indent, strings.ToUpper(row.Label), row.Count)
	}
}
