package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/database/memory"
	"github.com/safemigrate/safemigrate/internal/concurrent"
	"github.com/safemigrate/safemigrate/internal/docschema"
	"github.com/safemigrate/safemigrate/internal/orchestrator"
	"github.com/safemigrate/safemigrate/internal/state"
)

var planCmd = &cobra.Command{
	Use:   "plan <migration.json>",
	Short: "Validate a migration and print its execution plan",
	Long: `Validate a migration document, check its declared dependencies
against the state file, and print the execution plan: checkpoint placement,
rollback capability, and estimated duration.

The plan is written to stdout as JSON; validation findings go to stderr.`,
	Example: `  # Plan a migration against the local environment
  safemigrate plan migrations/20260815_add_status.json

  # Pipe the plan into a file for review
  safemigrate plan migrations/20260815_add_status.json > plan.json`,
	Args: cobra.ExactArgs(1),
	Run:  runPlanCmd,
}

var planStateFile string

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planStateFile, "state-file", "", "Path to the state file (default .safemigrate-state.json)")
}

func runPlanCmd(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrExit()

	migration, err := docschema.LoadMigration(args[0])
	if err != nil {
		log.Fatalf("Failed to load migration: %v", err)
	}

	store, err := state.Load(planStateFile)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	engine := planningEngine(cfg.Risk.LockTimeoutSeconds, store)
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

	jsonBytes, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal plan: %v", err)
	}
	fmt.Println(string(jsonBytes))
}

// planningEngine builds an orchestration engine that never touches a real
// database: validation and plan construction only read the migration and
// the version log, so an in-memory connection suffices.
func planningEngine(lockTimeoutSeconds int, versions orchestrator.VersionLog) *orchestrator.Engine {
	locks := concurrent.NewLockManager(concurrent.NewMemoryLockStore(), processID(), componentLogger())
	return orchestrator.NewEngine(memory.NewConnectionManager(), locks, versions,
		time.Duration(lockTimeoutSeconds)*time.Second, componentLogger())
}
