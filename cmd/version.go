// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = ""

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wardd version",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if v == "" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					v = info.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
		},
	}
}
