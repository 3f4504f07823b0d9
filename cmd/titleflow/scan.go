package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/audit"
	"github.com/hilops/titleflow/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one breach scan pass",
	Long:  "Queries for tasks past their SLA deadline, claims each breach, and\nnotifies the operator audience. Safe to run alongside a serving instance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		s := scanner.New(store, buildDispatcher(store, nil),
			audit.NewRecorder(store, logger), nil,
			scanner.Config{FallbackWindow: cfg.FallbackSLAWindow}, logger)

		res, err := s.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Scan complete: %d candidates, %d breaches claimed\n", res.Found, res.Processed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
