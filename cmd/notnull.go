package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/notnull"
)

var notNullCmd = &cobra.Command{
	Use:   "add-not-null <table> <column> <type>",
	Short: "Plan adding a NOT NULL column to a populated table",
	Long: `Plan adding a NOT NULL column. Populated tables get a three-step
phased plan (add nullable, backfill, enforce NOT NULL); empty tables get a
single statement. Exactly one default-value strategy must be given.`,
	Example: `  # Backfill with a literal
  safemigrate add-not-null users status text --default "'active'"

  # Backfill with an expression
  safemigrate add-not-null events created_at timestamp --expression "now()"

  # Backfill from another column
  safemigrate add-not-null users display_name text --copy-from username

  # Execute the plan
  safemigrate add-not-null users status text --default "'active'" --execute`,
	Args: cobra.ExactArgs(3),
	Run:  runNotNull,
}

var (
	notNullDefault    string
	notNullExpression string
	notNullCopyFrom   string
	notNullExecute    bool
	notNullJSON       bool
)

func init() {
	rootCmd.AddCommand(notNullCmd)

	notNullCmd.Flags().StringVar(&notNullDefault, "default", "", "Static literal used to backfill existing rows")
	notNullCmd.Flags().StringVar(&notNullExpression, "expression", "", "SQL expression used to backfill existing rows")
	notNullCmd.Flags().StringVar(&notNullCopyFrom, "copy-from", "", "Existing column to copy values from")
	notNullCmd.Flags().BoolVar(&notNullExecute, "execute", false, "Execute the plan after validating the backfill")
	notNullCmd.Flags().BoolVar(&notNullJSON, "json", false, "Output the plan as JSON")
}

func runNotNull(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfigOrExit()

	handle, err := openEnvironment(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer handle.close()

	strategy, err := pickStrategy()
	if err != nil {
		log.Fatalf("%v", err)
	}

	table := args[0]
	column := database.Column{Name: args[1], Type: args[2]}

	planner := notnull.NewPlanner(handle.catalog, componentLogger())
	plan, err := planner.PlanNotNullColumn(ctx, table, column, strategy)
	if err != nil {
		log.Fatalf("Failed to plan: %v", err)
	}

	if notNullJSON {
		jsonBytes, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal plan: %v", err)
		}
		fmt.Println(string(jsonBytes))
	} else {
		form := "direct"
		if plan.Phased {
			form = "phased"
		}
		fmt.Printf("%s plan for %s.%s (%s strategy):\n", form, plan.Table, plan.Column, plan.Strategy)
		for i, step := range plan.Steps {
			fmt.Printf("  %d. %s\n     %s\n", i+1, step.Description, step.SQLCommand)
		}
	}

	if !notNullExecute {
		fmt.Fprintln(os.Stderr, "\nDry run; pass --execute to apply.")
		return
	}

	for i, step := range plan.Steps {
		// The backfill must be verified complete before NOT NULL is enforced.
		if plan.Phased && i == len(plan.Steps)-1 {
			done, err := planner.ValidateBackfill(ctx, handle.conn, plan.Table, plan.Column)
			if err != nil {
				log.Fatalf("Failed to validate backfill: %v", err)
			}
			if !done {
				_, _ = color.New(color.FgRed).Fprintf(os.Stderr,
					"✗ Backfill incomplete: NULL rows remain in %s.%s; NOT NULL not enforced\n",
					plan.Table, plan.Column)
				os.Exit(1)
			}
		}
		if err := handle.conn.ExecuteQuery(ctx, step.SQLCommand); err != nil {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ Step %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s.%s is NOT NULL (%d steps)\n",
		plan.Table, plan.Column, len(plan.Steps))
}

// pickStrategy maps the mutually exclusive flags onto a default-value
// strategy.
func pickStrategy() (notnull.Strategy, error) {
	given := 0
	var strategy notnull.Strategy
	if notNullDefault != "" {
		given++
		strategy = notnull.StaticStrategy{Literal: notNullDefault}
	}
	if notNullExpression != "" {
		given++
		strategy = notnull.ExpressionStrategy{Expression: notNullExpression}
	}
	if notNullCopyFrom != "" {
		given++
		strategy = notnull.CopyColumnStrategy{SourceColumn: notNullCopyFrom}
	}
	if given != 1 {
		return nil, fmt.Errorf("exactly one of --default, --expression, --copy-from is required")
	}
	return strategy, nil
}
