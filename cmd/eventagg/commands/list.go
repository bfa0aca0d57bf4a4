package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkilian/eventagg/internal/report"
)

// NewListCommand prints the available report names.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range report.Names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
