package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations and any in-progress migration",
	Run:   runStatus,
}

var statusStateFile string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusStateFile, "state-file", "", "Path to the state file (default .safemigrate-state.json)")
}

func runStatus(cmd *cobra.Command, args []string) {
	store, err := state.Load(statusStateFile)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	versions := store.AppliedVersions()
	if len(versions) == 0 {
		fmt.Println("No migrations applied.")
	} else {
		fmt.Printf("Applied migrations (%d):\n", len(versions))
		for _, version := range versions {
			fmt.Printf("  %s\n", version)
		}
	}

	if active := store.Active(); active != nil {
		fmt.Printf("\nIn progress: %s on %s (%d/%d operations, started %s)\n",
			active.Version, active.SchemaName,
			active.CompletedOperations, active.TotalOperations,
			active.StartedAt.Format("2006-01-02 15:04:05"))
	}
}
