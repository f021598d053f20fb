package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/perf"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Compare post-migration query latency against a baseline",
	Long: `Re-run the queries of a recorded baseline and compare latencies.
The command exits non-zero when any query degrades beyond the configured
threshold (degradation_threshold_percent in safemigrate.toml, default 20%).`,
	Example: `  safemigrate benchmark --baseline baseline.json`,
	Run:     runBenchmark,
}

var benchmarkBaselineFile string

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVar(&benchmarkBaselineFile, "baseline", "baseline.json", "Baseline file recorded before the migration")
}

func runBenchmark(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	data, err := os.ReadFile(benchmarkBaselineFile)
	if err != nil {
		log.Fatalf("Failed to read baseline: %v", err)
	}
	var baseline perf.Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		log.Fatalf("Failed to parse baseline: %v", err)
	}

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	validator := perf.NewValidator(handle.conn, cfg.Risk, componentLogger())
	benchmark, err := validator.RunBenchmark(ctx, &baseline)
	if err != nil {
		log.Fatalf("Failed to run benchmark: %v", err)
	}

	comparison, err := validator.ComparePerformance(&baseline, benchmark)
	if err != nil {
		log.Fatalf("Failed to compare: %v", err)
	}

	for _, q := range comparison.PerQuery {
		marker := " "
		if q.DegradationPercent > comparison.ThresholdPercent {
			marker = "!"
		}
		fmt.Printf("%s %+7.1f%%  %7.2fms -> %7.2fms  %s\n",
			marker, q.DegradationPercent, q.BaselineAvgMS, q.BenchmarkAvgMS, q.Query)
	}
	fmt.Printf("\nOverall: %+.1f%% (threshold %.0f%%)\n", comparison.OverallPercent, comparison.ThresholdPercent)

	if !comparison.IsAcceptable {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr,
			"✗ Performance regression: %q degraded %.1f%% (threshold %.0f%%)\n",
			comparison.WorstQuery, comparison.WorstPercent, comparison.ThresholdPercent)
		os.Exit(1)
	}
	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ Performance within threshold\n")
}
