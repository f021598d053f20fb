package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/concurrent"
	"github.com/safemigrate/safemigrate/internal/docschema"
	"github.com/safemigrate/safemigrate/internal/state"
)

var queueCmd = &cobra.Command{
	Use:   "queue <migration.json> [migration.json...]",
	Short: "Run several migrations in priority order under one schema lock regime",
	Long: `Enqueue one or more migration documents and drain the queue. Items
run strictly by priority (lower numbers first, enqueue order breaking ties),
each under its schema lock and inside one transaction that rolls back fully
on failure. Remaining items still run when an earlier one fails.`,
	Example: `  # Two migrations, the second more urgent
  safemigrate queue nightly.json hotfix.json --priority 10 --priority 1`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQueue,
}

var (
	queuePriorities []int
	queueJSON       bool
	queueStateFile  string
)

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.Flags().IntSliceVar(&queuePriorities, "priority", nil, "Priority per file, lower runs first (repeatable, default 100)")
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "Output the outcomes as JSON")
	queueCmd.Flags().StringVar(&queueStateFile, "state-file", "", "Path to the state file (default .safemigrate-state.json)")
}

func runQueue(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	if len(queuePriorities) > len(args) {
		log.Fatalf("More --priority values (%d) than migration files (%d)", len(queuePriorities), len(args))
	}

	store, err := state.Load(queueStateFile)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
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
	executor := concurrent.NewAtomicExecutor(handle.conn, componentLogger())
	lockTimeout := time.Duration(cfg.Risk.LockTimeoutSeconds) * time.Second

	queue := concurrent.NewQueue(locks, executor, lockTimeout, componentLogger())

	versionByID := make(map[string]string)
	for i, path := range args {
		migration, err := docschema.LoadMigration(path)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", path, err)
		}
		if store.IsApplied(migration.Version) {
			fmt.Fprintf(os.Stderr, "Skipping %s: already applied.\n", migration.Version)
			continue
		}

		priority := 100
		if i < len(queuePriorities) {
			priority = queuePriorities[i]
		}

		operations := make([]concurrent.Operation, 0, len(migration.Operations))
		for _, op := range migration.Operations {
			operations = append(operations, concurrent.Operation{
				OperationType: string(op.OperationType),
				Table:         op.TableName,
				SQLCommand:    op.SQLCommand,
				RollbackSQL:   op.RollbackSQL,
			})
		}

		id, err := queue.EnqueueMigration(concurrent.MigrationRequest{
			SchemaName: migration.SchemaName,
			Operations: operations,
			Priority:   priority,
		})
		if err != nil {
			log.Fatalf("Failed to enqueue %s: %v", migration.Version, err)
		}
		versionByID[id] = migration.Version
	}

	outcomes := queue.ProcessMigrationQueue(ctx)

	if queueJSON {
		jsonBytes, err := json.MarshalIndent(outcomes, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal outcomes: %v", err)
		}
		fmt.Println(string(jsonBytes))
	}

	failures := 0
	for _, outcome := range outcomes {
		version := versionByID[outcome.QueueID]
		if outcome.Result.Success {
			if err := store.MarkAppliedTo(version, outcome.Schema); err != nil {
				log.Fatalf("Failed to record %s as applied: %v", version, err)
			}
			if !queueJSON {
				_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s: %d operation(s), %dms\n",
					version, outcome.Result.OperationsCompleted, outcome.Result.ExecutionTimeMS)
			}
			continue
		}
		failures++
		if !queueJSON {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s: %s\n", version, outcome.Result.ErrorMessage)
			if outcome.Result.RollbackExecuted {
				fmt.Fprintf(os.Stderr, "  transaction rolled back after %d completed operation(s).\n",
					outcome.Result.OperationsCompleted)
			}
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}
