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

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Record a query-latency baseline before a migration",
	Long: `Run each --query repeatedly against the configured environment and
record average/min/max latency to a baseline file. Compare against it after
the migration with 'safemigrate benchmark'.`,
	Example: `  safemigrate baseline \
    --query "SELECT COUNT(*) FROM users" \
    --query "SELECT * FROM orders WHERE status = 'open' LIMIT 100" \
    --out baseline.json`,
	Run: runBaseline,
}

var (
	baselineQueries []string
	baselineOut     string
)

func init() {
	rootCmd.AddCommand(baselineCmd)

	baselineCmd.Flags().StringArrayVar(&baselineQueries, "query", nil, "Query to time (repeatable)")
	baselineCmd.Flags().StringVar(&baselineOut, "out", "baseline.json", "Baseline output file")
}

func runBaseline(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	if len(baselineQueries) == 0 {
		log.Fatalf("At least one --query is required")
	}

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	validator := perf.NewValidator(handle.conn, cfg.Risk, componentLogger())
	baseline, err := validator.EstablishBaseline(ctx, rootEnvironment, baselineQueries)
	if err != nil {
		log.Fatalf("Failed to establish baseline: %v", err)
	}

	jsonBytes, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal baseline: %v", err)
	}
	if err := os.WriteFile(baselineOut, jsonBytes, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", baselineOut, err)
	}

	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ Baseline for %d quer%s written to %s\n",
		len(baseline.Queries), plural(len(baseline.Queries), "y", "ies"), baselineOut)
	for _, q := range baseline.Queries {
		fmt.Printf("  %7.2fms avg  %s\n", q.AvgMS, q.Query)
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
