package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/depend"
	"github.com/safemigrate/safemigrate/internal/risk"
)

var assessCmd = &cobra.Command{
	Use:   "assess <operation-type> <table> [column]",
	Short: "Score the risk of one schema change",
	Long: `Score a proposed schema change across data loss, availability,
performance, referential integrity, and rollbackability, weighted into a
0-100 score and a LOW/MEDIUM/HIGH/CRITICAL level.

Table size and row counts are read from the database; the flags override
them for what-if analysis.`,
	Example: `  # Assess dropping a column in the configured environment
  safemigrate assess DROP_COLUMN users email

  # What-if: a 50GB table in production without a backup
  safemigrate assess DROP_TABLE orders --size-mb 51200 --production --backup=false`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runAssess,
}

var (
	assessJSON       bool
	assessProduction bool
	assessBackup     bool
	assessRows       int64
	assessSizeMB     float64
)

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().BoolVar(&assessJSON, "json", false, "Output the assessment as JSON")
	assessCmd.Flags().BoolVar(&assessProduction, "production", false, "Treat the target as a production environment")
	assessCmd.Flags().BoolVar(&assessBackup, "backup", true, "Whether a recent backup exists")
	assessCmd.Flags().Int64Var(&assessRows, "rows", -1, "Override the estimated row count")
	assessCmd.Flags().Float64Var(&assessSizeMB, "size-mb", -1, "Override the table size in MB")
}

func runAssess(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	operationType, table := args[0], args[1]
	column := ""
	if len(args) == 3 {
		column = args[2]
	}

	op := risk.Operation{
		ID:            uuid.NewString(),
		OperationType: operationType,
		Table:         table,
		Column:        column,
		IsProduction:  assessProduction || handle.production,
		HasBackup:     assessBackup,
		EstimatedRows: assessRows,
		TableSizeMB:   assessSizeMB,
	}

	if op.EstimatedRows < 0 || op.TableSizeMB < 0 {
		stats, err := handle.catalog.TableStats(ctx, table)
		if err != nil {
			log.Fatalf("Failed to load stats for %s: %v", table, err)
		}
		if op.EstimatedRows < 0 {
			op.EstimatedRows = stats.EstimatedRows
		}
		if op.TableSizeMB < 0 {
			op.TableSizeMB = stats.SizeMB
		}
	}

	var report *depend.DependencyReport
	if column != "" {
		analyzer := depend.NewAnalyzer(handle.catalog, componentLogger())
		report, err = analyzer.AnalyzeColumnDependencies(ctx, table, column)
		if err != nil {
			log.Fatalf("Failed to analyze dependencies: %v", err)
		}
	}

	engine := risk.NewEngine(cfg.Risk)
	assessment, err := engine.CalculateMigrationRiskScore(op, report)
	if err != nil {
		log.Fatalf("Failed to assess risk: %v", err)
	}

	if assessJSON {
		jsonBytes, err := json.MarshalIndent(assessment, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal assessment: %v", err)
		}
		fmt.Println(string(jsonBytes))
		return
	}

	printLevel := levelPrinter(assessment.Level)
	_, _ = printLevel.Fprintf(os.Stderr, "%s risk: %.1f/100\n\n", assessment.Level, assessment.OverallScore)

	for _, category := range risk.Categories {
		score := assessment.CategoryScore(category)
		fmt.Printf("  %-26s %5.1f  %s\n", category, score.Score, score.Level)
		for _, factor := range score.Factors {
			fmt.Printf("      - %s\n", factor)
		}
	}
}

// levelPrinter maps a risk level to a terminal color.
func levelPrinter(level risk.Level) *color.Color {
	switch level {
	case risk.LevelCritical:
		return color.New(color.FgRed, color.Bold)
	case risk.LevelHigh:
		return color.New(color.FgRed)
	case risk.LevelMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
