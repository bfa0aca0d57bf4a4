// Package commands implements the eventagg command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkilian/eventagg/internal/config"
	"github.com/arkilian/eventagg/internal/logging"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	dataDir    string
	sourceType string
	debug      bool
}

// NewRootCommand builds the eventagg command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	command := &cobra.Command{
		Use:           "eventagg",
		Short:         "Partition-parallel aggregation over daily event partitions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (YAML or JSON)")
	command.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Base directory for partitions and caches")
	command.PersistentFlags().StringVar(&opts.sourceType, "source", "", "Record source: memory, sqlite, local, s3")
	command.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	command.AddCommand(NewIngestCommand(opts))
	command.AddCommand(NewReportCommand(opts))
	command.AddCommand(NewListCommand())
	command.AddCommand(NewPartitionsCommand(opts))
	return command
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig loads the file config (or defaults), applies environment
// variables, then flags, and validates the result.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.sourceType != "" {
		cfg.Source.Type = config.SourceType(o.sourceType)
	}
	if o.debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}

// setup resolves and validates cfg and returns a context carrying the logger.
func setup(ctx context.Context, cfg *config.Config, name string) (context.Context, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return ctx, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.NewLoggerWithDebug(cfg.Log.Debug).Named(name)
	return logging.WithLogger(ctx, logger), nil
}
