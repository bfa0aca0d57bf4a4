package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/eventagg/internal/config"
	"github.com/arkilian/eventagg/internal/logging"
	"github.com/arkilian/eventagg/internal/source"
)

// NewIngestCommand writes NDJSON events into daily partition files.
func NewIngestCommand(root *rootOptions) *cobra.Command {
	var input string

	command := &cobra.Command{
		Use:   "ingest",
		Short: "Write NDJSON events into daily partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, err := setup(cmd.Context(), cfg, "ingest")
			if err != nil {
				return err
			}
			logger := logging.FromContext(ctx)

			if cfg.Source.Type == config.SourceMemory {
				return fmt.Errorf("the memory source cannot be ingested into")
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}

			events, err := readEvents(input)
			if err != nil {
				return err
			}
			groups, dates := source.GroupByDate(events)
			logger.Infow("Read events", "input", input, "events", len(events), "partitions", len(dates))

			var publish func(info *source.PartitionInfo) error
			outputDir := cfg.Source.Path
			if cfg.Source.Type != config.SourceSQLite {
				store, err := newObjectStorage(ctx, cfg)
				if err != nil {
					return fmt.Errorf("failed to open object storage: %w", err)
				}
				provider, err := newObjectStoreProvider(ctx, cfg, store)
				if err != nil {
					return err
				}

				staging, err := os.MkdirTemp(cfg.DataDir, "staging-")
				if err != nil {
					return fmt.Errorf("failed to create staging directory: %w", err)
				}
				defer os.RemoveAll(staging)
				outputDir = staging

				publish = func(info *source.PartitionInfo) error {
					return provider.Publish(ctx, info)
				}
			}

			writer := source.NewPartitionWriter(outputDir)
			for _, date := range dates {
				info, err := writer.Write(ctx, date, groups[date])
				if err != nil {
					logger.Errorw("Failed to write partition", "date", date, zap.Error(err))
					return err
				}
				if publish != nil {
					if err := publish(info); err != nil {
						logger.Errorw("Failed to publish partition", "date", date, zap.Error(err))
						return fmt.Errorf("failed to publish partition %s: %w", date, err)
					}
				}
				logger.Infow("Wrote partition",
					"date", date,
					"partition_id", info.PartitionID,
					"rows", info.RowCount,
					"bytes", info.SizeBytes)
			}
			return nil
		},
	}
	command.Flags().StringVarP(&input, "input", "i", "-", "NDJSON events file, - for stdin")
	return command
}
