// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardd-org/wardd/internal/paths"
)

var rootCmd = &cobra.Command{
	Use:   "wardd",
	Short: "Safety daemon gating natural-language shell execution",
	Long: `wardd sits between a command planner and the host shell. Every
candidate command is risk-classified, rate-limited, and budgeted before it
runs; destructive commands wait for explicit human approval.`,
}

func Execute() {
	if dataDir := os.Getenv("WARDD_DATA_DIR"); dataDir != "" {
		paths.SetDataDirOverride(dataDir)
	}

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
