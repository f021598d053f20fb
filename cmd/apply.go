package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/concurrent"
	"github.com/safemigrate/safemigrate/internal/config"
	"github.com/safemigrate/safemigrate/internal/depend"
	"github.com/safemigrate/safemigrate/internal/docschema"
	"github.com/safemigrate/safemigrate/internal/mitigation"
	"github.com/safemigrate/safemigrate/internal/orchestrator"
	"github.com/safemigrate/safemigrate/internal/review"
	"github.com/safemigrate/safemigrate/internal/risk"
	"github.com/safemigrate/safemigrate/internal/state"
)

var applyCmd = &cobra.Command{
	Use:   "apply <migration.json>",
	Short: "Apply a migration with locking, checkpoints, and rollback",
	Long: `Validate and execute a migration against the configured
environment. A schema lock keeps concurrent runs out, a checkpoint is
recorded before every risky operation, and any failure rolls completed
operations back in reverse order.

Unless --yes is given, an interactive review of the plan, its risk
assessment, and the recommended mitigations runs first.`,
	Example: `  # Review interactively, then apply
  safemigrate apply migrations/20260815_add_status.json

  # Non-interactive apply (CI)
  safemigrate apply migrations/20260815_add_status.json --yes`,
	Args: cobra.ExactArgs(1),
	Run:  runApply,
}

var (
	applyYes       bool
	applyStateFile string
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "Skip the interactive review")
	applyCmd.Flags().StringVar(&applyStateFile, "state-file", "", "Path to the state file (default .safemigrate-state.json)")
}

func runApply(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	migration, err := docschema.LoadMigration(args[0])
	if err != nil {
		log.Fatalf("Failed to load migration: %v", err)
	}

	store, err := state.Load(applyStateFile)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}
	if store.IsApplied(migration.Version) {
		fmt.Fprintf(os.Stderr, "Migration %s is already applied.\n", migration.Version)
		return
	}

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	lockStore := concurrent.NewSQLLockStore(handle.conn)
	if err := lockStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare lock table: %v", err)
	}
	locks := concurrent.NewLockManager(lockStore, processID(), componentLogger())
	lockTimeout := time.Duration(cfg.Risk.LockTimeoutSeconds) * time.Second

	engine := orchestrator.NewEngine(handle.conn, locks, store, lockTimeout, componentLogger())

	validation := engine.ValidateMigrationSafety(migration)
	for _, warning := range validation.Warnings {
		fmt.Fprintf(os.Stderr, "⚠  %s\n", warning)
	}
	if !validation.IsValid {
		for _, problem := range validation.Errors {
			fmt.Fprintf(os.Stderr, "✗ %s\n", problem)
		}
		os.Exit(1)
	}

	plan, err := engine.CreateExecutionPlan(migration)
	if err != nil {
		log.Fatalf("Failed to create execution plan: %v", err)
	}

	if !applyYes {
		assessment, strategies := assessPlanRisk(ctx, cfg, handle, migration)
		decision, err := review.Run(plan, assessment, strategies)
		if err != nil {
			log.Fatalf("Review failed: %v", err)
		}
		if decision != review.DecisionApproved {
			fmt.Fprintln(os.Stderr, "Migration rejected; nothing applied.")
			os.Exit(1)
		}
	}

	result := engine.ExecuteWithRollback(ctx, plan)
	if !result.Success {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ Migration %s failed: %s\n",
			migration.Version, result.ErrorMessage)
		if result.ExecutedOperations > 0 {
			fmt.Fprintf(os.Stderr, "  %d operation(s) were rolled back.\n", result.ExecutedOperations)
		}
		os.Exit(1)
	}

	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr,
		"✓ Applied %s: %d operation(s), %d checkpoint(s), %dms\n",
		migration.Version, result.ExecutedOperations, result.CheckpointsCreated, result.ExecutionTimeMS)
}

// assessPlanRisk scores the riskiest operation of the migration so the
// review screen has an assessment to show. Assessment failures degrade to a
// review without risk data rather than blocking the apply.
func assessPlanRisk(ctx context.Context, cfg *config.Config, handle *databaseHandle, m *orchestrator.Migration) (*risk.Assessment, []mitigation.Strategy) {
	op, ok := riskiestOperation(m)
	if !ok {
		return nil, nil
	}

	riskOp := risk.Operation{
		ID:            uuid.NewString(),
		OperationType: string(op.OperationType),
		Table:         op.TableName,
		Column:        op.ColumnName,
		IsProduction:  handle.production,
		HasBackup:     true,
	}
	if stats, err := handle.catalog.TableStats(ctx, op.TableName); err == nil {
		riskOp.EstimatedRows = stats.EstimatedRows
		riskOp.TableSizeMB = stats.SizeMB
	}

	var report *depend.DependencyReport
	if op.ColumnName != "" {
		analyzer := depend.NewAnalyzer(handle.catalog, componentLogger())
		if r, err := analyzer.AnalyzeColumnDependencies(ctx, op.TableName, op.ColumnName); err == nil {
			report = r
		}
	}

	assessment, err := risk.NewEngine(cfg.Risk).CalculateMigrationRiskScore(riskOp, report)
	if err != nil {
		return nil, nil
	}
	strategies, err := mitigation.NewEngine(cfg.Risk, componentLogger()).GenerateMitigationStrategies(assessment)
	if err != nil {
		return assessment, nil
	}
	return assessment, strategies
}

// riskiestOperation picks the first destructive operation, falling back to
// the first operation.
func riskiestOperation(m *orchestrator.Migration) (orchestrator.MigrationOperation, bool) {
	if len(m.Operations) == 0 {
		return orchestrator.MigrationOperation{}, false
	}
	for _, op := range m.Operations {
		switch op.OperationType {
		case orchestrator.TypeDropTable, orchestrator.TypeDropColumn, orchestrator.TypeModifyColumn:
			return op, true
		}
	}
	return m.Operations[0], true
}
