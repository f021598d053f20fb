package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "safemigrate",
	Short: "Safemigrate analyzes, plans, and safely applies schema migrations.",
	Long: `Safemigrate analyzes, plans, and safely applies schema migrations.

It inspects column dependencies, scores migration risk, recommends
mitigations, and executes migrations with checkpoints, locks, and
automatic rollback.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if rootVerbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
	},
}

var (
	rootVerbose     bool
	rootEnvironment string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&rootEnvironment, "environment", "e", "", "Named environment from safemigrate.toml")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
