package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/depend"
	"github.com/safemigrate/safemigrate/internal/fk"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <table> <column>",
	Short: "Analyze everything that depends on a column",
	Long: `Analyze the foreign keys, views, indexes, check constraints, and
triggers that depend on a column, and grade how safe it is to remove.`,
	Example: `  # Analyze a column against the configured environment
  safemigrate analyze users email

  # Emit the report as JSON
  safemigrate analyze users email --json

  # Include an FK-safe plan for dropping the column
  safemigrate analyze orders customer_id --fk-plan`,
	Args: cobra.ExactArgs(2),
	Run:  runAnalyze,
}

var (
	analyzeJSON   bool
	analyzeFKPlan bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeFKPlan, "fk-plan", false, "Also generate an FK-safe plan for dropping the column")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	table, column := args[0], args[1]

	analyzer := depend.NewAnalyzer(handle.catalog, componentLogger())
	report, err := analyzer.AnalyzeColumnDependencies(ctx, table, column)
	if err != nil {
		log.Fatalf("Failed to analyze %s.%s: %v", table, column, err)
	}

	if analyzeJSON {
		output := map[string]any{"report": report, "recommendation": report.RemovalRecommendation()}
		if analyzeFKPlan {
			plan := fkSafeDropPlan(ctx, handle, table, column)
			output["fk_safe_plan"] = plan
		}
		jsonBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		fmt.Println(string(jsonBytes))
		return
	}

	fmt.Printf("Dependencies of %s.%s (%d found)\n\n", table, column, report.TotalDependencyCount())
	for _, depType := range []depend.DependencyType{
		depend.DependencyForeignKey,
		depend.DependencyView,
		depend.DependencyIndex,
		depend.DependencyConstraint,
		depend.DependencyTrigger,
	} {
		deps := report.ByType(depType)
		if len(deps) == 0 {
			continue
		}
		fmt.Printf("%s:\n", depType)
		for _, dep := range deps {
			line := fmt.Sprintf("  %s [%s]", dep.ObjectName, dep.Impact)
			if dep.SourceTable != "" {
				line += " on " + dep.SourceTable
			}
			fmt.Println(line)
		}
	}

	fmt.Println()
	switch report.RemovalRecommendation() {
	case depend.RemovalSafe:
		_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ SAFE to remove: no blocking dependencies\n")
	case depend.RemovalCaution:
		_, _ = color.New(color.FgYellow).Fprintf(os.Stderr, "⚠ CAUTION: high-impact dependencies exist, review before removal\n")
	case depend.RemovalDangerous:
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ DANGEROUS: critical dependencies would break\n")
	}

	if analyzeFKPlan {
		plan := fkSafeDropPlan(ctx, handle, table, column)
		fmt.Printf("\nFK-safe drop plan (%d steps):\n", len(plan.Steps))
		for i, step := range plan.Steps {
			fmt.Printf("  %d. %s\n     %s\n", i+1, step.Description, step.SQLCommand)
		}
	}
}

func fkSafeDropPlan(ctx context.Context, handle *databaseHandle, table, column string) *fk.SafeMigrationPlan {
	analyzer := fk.NewAnalyzer(handle.catalog, componentLogger())
	plan, err := analyzer.GenerateFKSafeMigrationPlan(ctx, table, column, fk.MigrationStep{
		Description: fmt.Sprintf("Drop column %s.%s", table, column),
		SQLCommand:  fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column),
	})
	if err != nil {
		log.Fatalf("Failed to generate FK-safe plan: %v", err)
	}
	return plan
}
