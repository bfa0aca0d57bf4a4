package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkilian/eventagg/internal/source"
)

// NewPartitionsCommand prints the partition dates present in the source.
func NewPartitionsCommand(root *rootOptions) *cobra.Command {
	var input string

	command := &cobra.Command{
		Use:   "partitions",
		Short: "List the partition dates present in the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, err := setup(cmd.Context(), cfg, "partitions")
			if err != nil {
				return err
			}
			provider, err := newProvider(ctx, cfg, input)
			if err != nil {
				return err
			}
			lister, ok := provider.(source.DateLister)
			if !ok {
				return fmt.Errorf("source type %s cannot list partitions", cfg.Source.Type)
			}
			dates, err := lister.Dates(ctx)
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	command.Flags().StringVarP(&input, "input", "i", "", "NDJSON events file for the memory source")
	return command
}
