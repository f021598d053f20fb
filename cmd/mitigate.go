package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/depend"
	"github.com/safemigrate/safemigrate/internal/mitigation"
	"github.com/safemigrate/safemigrate/internal/risk"
)

var mitigateCmd = &cobra.Command{
	Use:   "mitigate <operation-type> <table> [column]",
	Short: "Recommend mitigations for a risky schema change",
	Long: `Assess a schema change, generate the applicable mitigation
strategies, prioritize them under the given budget and team constraints,
and lay out a phased roadmap toward the target risk level.`,
	Example: `  # Mitigations for dropping a production column
  safemigrate mitigate DROP_COLUMN users email --production

  # Roadmap toward LOW risk with a 40-hour budget and 3 engineers
  safemigrate mitigate DROP_TABLE orders --target LOW --budget-hours 40 --team-size 3`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runMitigate,
}

var (
	mitigateJSON        bool
	mitigateProduction  bool
	mitigateBackup      bool
	mitigateTargetLevel string
	mitigateBudgetHours float64
	mitigateTeamSize    int
)

func init() {
	rootCmd.AddCommand(mitigateCmd)

	mitigateCmd.Flags().BoolVar(&mitigateJSON, "json", false, "Output the plan as JSON")
	mitigateCmd.Flags().BoolVar(&mitigateProduction, "production", false, "Treat the target as a production environment")
	mitigateCmd.Flags().BoolVar(&mitigateBackup, "backup", true, "Whether a recent backup exists")
	mitigateCmd.Flags().StringVar(&mitigateTargetLevel, "target", "", "Target risk level for the roadmap (LOW, MEDIUM, HIGH)")
	mitigateCmd.Flags().Float64Var(&mitigateBudgetHours, "budget-hours", 0, "Effort budget in hours (0 = unbounded)")
	mitigateCmd.Flags().IntVar(&mitigateTeamSize, "team-size", 0, "Team size available (0 = unbounded)")
}

func runMitigate(cmd *cobra.Command, args []string) {
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
		IsProduction:  mitigateProduction || handle.production,
		HasBackup:     mitigateBackup,
	}
	stats, err := handle.catalog.TableStats(ctx, table)
	if err != nil {
		log.Fatalf("Failed to load stats for %s: %v", table, err)
	}
	op.EstimatedRows = stats.EstimatedRows
	op.TableSizeMB = stats.SizeMB

	var report *depend.DependencyReport
	if column != "" {
		analyzer := depend.NewAnalyzer(handle.catalog, componentLogger())
		report, err = analyzer.AnalyzeColumnDependencies(ctx, table, column)
		if err != nil {
			log.Fatalf("Failed to analyze dependencies: %v", err)
		}
	}

	riskEngine := risk.NewEngine(cfg.Risk)
	assessment, err := riskEngine.CalculateMigrationRiskScore(op, report)
	if err != nil {
		log.Fatalf("Failed to assess risk: %v", err)
	}

	engine := mitigation.NewEngine(cfg.Risk, componentLogger())
	strategies, err := engine.GenerateMitigationStrategies(assessment)
	if err != nil {
		log.Fatalf("Failed to generate mitigation strategies: %v", err)
	}

	constraints := &mitigation.Constraints{
		BudgetHours: mitigateBudgetHours,
		TeamSize:    mitigateTeamSize,
	}
	plan := engine.PrioritizeMitigationActions(strategies, constraints)

	var roadmap *mitigation.Roadmap
	if mitigateTargetLevel != "" {
		roadmap, err = engine.CreateRiskReductionRoadmap(assessment, risk.Level(mitigateTargetLevel), plan)
		if err != nil {
			log.Fatalf("Failed to build roadmap: %v", err)
		}
	}

	if mitigateJSON {
		output := map[string]any{"assessment": assessment, "plan": plan}
		if roadmap != nil {
			output["roadmap"] = roadmap
		}
		jsonBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal plan: %v", err)
		}
		fmt.Println(string(jsonBytes))
		return
	}

	printLevel := levelPrinter(assessment.Level)
	_, _ = printLevel.Printf("%s risk: %.1f/100\n\n", assessment.Level, assessment.OverallScore)

	fmt.Printf("Recommended mitigations (%d, projected reduction %.0f%%):\n", len(plan.Strategies), plan.ProjectedRiskReduction)
	for i, strategy := range plan.Strategies {
		fmt.Printf("  %d. [%s] %s (%.0fh, %s)\n", i+1, strategy.Priority, strategy.Name,
			strategy.EstimatedEffortHours, strategy.Complexity)
		if eff := plan.Effectiveness[strategy.ID]; len(eff.Notes) > 0 {
			for _, note := range eff.Notes {
				fmt.Printf("       note: %s\n", note)
			}
		}
	}
	fmt.Printf("\nTotal estimated effort: %.0f hours\n", plan.TotalEstimatedEffortHours)

	if roadmap != nil {
		fmt.Printf("\nRoadmap %s -> %s (%.0f hours):\n", roadmap.CurrentLevel, roadmap.TargetLevel, roadmap.EstimatedTotalDuration)
		for i, phase := range roadmap.Phases {
			fmt.Printf("  Phase %d: %s (%.0fh, %d strategies)\n", i+1, phase.Name, phase.EstimatedDuration, len(phase.StrategyIDs))
		}
		if len(roadmap.StakeholderApprovals) > 0 {
			fmt.Printf("  Approvals required: %v\n", roadmap.StakeholderApprovals)
		}
	}
}
