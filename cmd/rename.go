package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/rename"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old-table> <new-table>",
	Short: "Coordinate a table rename across FKs, views, and triggers",
	Long: `Analyze everything a table rename touches (incoming foreign keys,
views, triggers), build the coordinated workflow that drops constraints,
renames the table, rewrites dependent SQL, and recreates the constraints,
and optionally execute it inside one transaction with a savepoint per step.

Without --execute the workflow is printed and nothing runs.`,
	Example: `  # Show the rename workflow
  safemigrate rename customers clients

  # Execute it
  safemigrate rename customers clients --execute`,
	Args: cobra.ExactArgs(2),
	Run:  runRename,
}

var (
	renameExecute bool
	renameJSON    bool
)

func init() {
	rootCmd.AddCommand(renameCmd)

	renameCmd.Flags().BoolVar(&renameExecute, "execute", false, "Execute the workflow instead of printing it")
	renameCmd.Flags().BoolVar(&renameJSON, "json", false, "Output the workflow as JSON")
}

func runRename(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	oldName, newName := args[0], args[1]

	analyzer := rename.NewAnalyzer(handle.catalog, componentLogger())
	report, err := analyzer.AnalyzeTableRename(ctx, oldName, newName)
	if err != nil {
		log.Fatalf("Failed to analyze rename: %v", err)
	}

	coordinator := rename.NewCoordinator(componentLogger())
	workflow, err := coordinator.BuildRenameWorkflow(report)
	if err != nil {
		if errorx.IsOfType(err, errdefs.CircularDependencyError) {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr,
				"✗ Tables reference each other in a cycle; break the cycle before renaming.\n")
		}
		log.Fatalf("Failed to build rename workflow: %v", err)
	}

	if renameJSON {
		jsonBytes, err := json.MarshalIndent(workflow, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal workflow: %v", err)
		}
		fmt.Println(string(jsonBytes))
		if !renameExecute {
			return
		}
	} else {
		fmt.Printf("Rename %s -> %s touches %d FK(s), %d view(s), %d trigger(s)\n\n",
			oldName, newName, len(report.IncomingFKs), len(report.Views), len(report.Triggers))
		for i, step := range workflow.Steps {
			fmt.Printf("  %d. [%s] %s\n     %s\n", i+1, step.StepType, step.Description, step.SQLCommand)
		}
	}

	if !renameExecute {
		fmt.Fprintln(os.Stderr, "\nDry run; pass --execute to apply.")
		return
	}

	executor := rename.NewExecutor(handle.conn, componentLogger())
	result := executor.ExecuteRenameWorkflow(ctx, workflow)
	if !result.Success {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ Rename failed at %s: %s\n",
			result.FailedStep, result.ErrorMessage)
		for _, action := range result.RollbackActions {
			fmt.Fprintf(os.Stderr, "  rollback: %s\n", action)
		}
		os.Exit(1)
	}

	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ Renamed %s to %s (%d steps)\n",
		oldName, newName, result.CompletedSteps)
}
