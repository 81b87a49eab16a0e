// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardd-org/wardd/internal/risk"
)

// NewCheckCmd creates the check command: offline risk classification of a
// single command, no daemon required. Nothing is executed.
func NewCheckCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check -- <command...>",
		Short: "Classify a command's risk without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			cls := risk.Classify(command)
			preview := risk.BuildPreview(command)

			if asJSON {
				out := map[string]any{
					"classification": cls,
					"preview":        preview,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "command:      %s\n", command)
			fmt.Fprintf(w, "risk level:   %s\n", cls.Level)
			fmt.Fprintf(w, "destructive:  %v\n", cls.IsDestructive)
			if len(preview.AffectedPaths) > 0 {
				fmt.Fprintf(w, "affected:     %s\n", strings.Join(preview.AffectedPaths, ", "))
			}
			for _, warning := range preview.Warnings {
				fmt.Fprintf(w, "warning:      %s\n", warning)
			}
			if preview.UndoCommand != "" {
				fmt.Fprintf(w, "undo:         %s\n", preview.UndoCommand)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
