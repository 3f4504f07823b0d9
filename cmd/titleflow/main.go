// Command titleflow runs the title-operations workflow engine: workflow and
// task lifecycle management, SLA breach scanning, and operator notifications.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/config"
	"github.com/hilops/titleflow/internal/telemetry"
)

var version = "0.1.0-dev"

var (
	cfgFile     string
	dbFlag      string
	actorFlag   string
	verboseFlag bool

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "titleflow",
	Short:         "Title operations workflow engine",
	Long:          "titleflow tracks title workflows and their tasks, watches SLA deadlines,\nand notifies operators when work breaches or needs a human.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if actorFlag != "" {
			cfg.Actor = actorFlag
		}

		level := zerolog.InfoLevel
		if verboseFlag {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()

		return telemetry.Init(cmd.Context(), "titleflow", version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (default: .titleflow/titleflow.db)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name for the audit trail")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
