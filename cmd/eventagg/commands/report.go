package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/eventagg/internal/engine"
	"github.com/arkilian/eventagg/internal/logging"
	"github.com/arkilian/eventagg/internal/report"
)

// NewReportCommand runs one named report and prints it as JSON.
func NewReportCommand(root *rootOptions) *cobra.Command {
	var (
		input      string
		output     string
		start      string
		end        string
		eventNames []string
		topN       int
		topK       int
		window     int
		approx     bool
		bestEffort bool
		policy     string
		compact    bool
	)

	command := &cobra.Command{
		Use:       "report <name>",
		Short:     "Run a report over a date range",
		Long:      "Run a report over a date range. Reports: " + strings.Join(report.Names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: report.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("start") {
				cfg.Report.StartDate = start
			}
			if flags.Changed("end") {
				cfg.Report.EndDate = end
			}
			if flags.Changed("event-names") {
				cfg.Report.EventNames = eventNames
			}
			if flags.Changed("top-n") {
				cfg.Report.TopN = topN
			}
			if flags.Changed("top-k") {
				cfg.Report.TopK = topK
			}
			if flags.Changed("window") {
				cfg.Report.WindowSize = window
			}
			if flags.Changed("approx") {
				cfg.Report.ApproxDistinct = approx
			}
			if flags.Changed("best-effort") {
				cfg.Engine.BestEffort = bestEffort
			}
			if flags.Changed("type-mismatch-policy") {
				cfg.Engine.TypeMismatchPolicy = policy
			}

			ctx, err := setup(cmd.Context(), cfg, "report")
			if err != nil {
				return err
			}
			logger := logging.FromContext(ctx)

			pol, err := engine.ParsePolicy(cfg.Engine.TypeMismatchPolicy)
			if err != nil {
				return err
			}
			provider, err := newProvider(ctx, cfg, input)
			if err != nil {
				return err
			}
			eng := engine.New(provider, engine.Options{
				Concurrency:  cfg.Engine.Concurrency,
				MaxRetries:   cfg.Engine.MaxRetries,
				RetryBackoff: cfg.Engine.RetryBackoff,
				BestEffort:   cfg.Engine.BestEffort,
				Policy:       pol,
			})

			name := args[0]
			out, err := report.NewRunner(eng).Run(ctx, name, report.ParamsFromConfig(cfg.Report))
			if err != nil {
				logger.Errorw("Report failed", "report", name, zap.Error(err))
				return err
			}

			if output == "" || output == "-" {
				return encodeReport(cmd.OutOrStdout(), out, compact)
			}
			return writeReportFile(output, out, compact)
		},
	}

	f := command.Flags()
	f.StringVarP(&input, "input", "i", "", "NDJSON events file for the memory source")
	f.StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	f.StringVar(&start, "start", "", "First event_date of the range (YYYYMMDD)")
	f.StringVar(&end, "end", "", "Last event_date of the range (YYYYMMDD), inclusive")
	f.StringSliceVar(&eventNames, "event-names", nil, "Event names to include in top_events") // --event-names=a,b
	f.IntVar(&topN, "top-n", 0, "Rank threshold of ranked reports")
	f.IntVar(&topK, "top-k", 0, "Capacity of top-K collections")
	f.IntVar(&window, "window", 0, "Trailing moving-average window")
	f.BoolVar(&approx, "approx", false, "Estimate distinct users with a sketch")
	f.BoolVar(&bestEffort, "best-effort", false, "Return partial results when partitions are missing")
	f.StringVar(&policy, "type-mismatch-policy", "", "null or reject")
	f.BoolVar(&compact, "compact", false, "Print compact JSON")
	return command
}

func encodeReport(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// writeReportFile encodes v into path. A failed close is reported, since the
// file may be incomplete on disk.
func writeReportFile(path string, v any, compact bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	if err := encodeReport(f, v, compact); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
