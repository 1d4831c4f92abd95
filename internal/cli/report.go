package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relaycheck/internal/report"
	"github.com/roach88/relaycheck/internal/results"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Scenario string
	Limit    int
	Latest   bool
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show recorded run verdicts",
		Long: `Show verdicts recorded in the results database.

Without arguments, lists recent runs newest first. With a run ID or
--latest, shows one run in full: counts, split, order signal, and
every check with its failure code.

Examples:
  relaycheck report
  relaycheck report 0195b2c4-6e1a-7c3d-9f00-8a58f0e3a1b2
  relaycheck report --latest --scenario million-records
  relaycheck report --limit 5 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReport(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "relaycheck.db", "path to the results database")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only consider runs of this scenario")
	cmd.Flags().IntVar(&opts.Limit, "limit", results.DefaultListLimit, "maximum runs to list")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "show the most recent run in full")

	return cmd
}

func runReport(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	store, err := results.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open results database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if runID != "" || opts.Latest {
		return reportRun(ctx, opts, formatter, store, runID)
	}
	return reportList(ctx, opts, formatter, store)
}

// reportRun shows one run in full, resolved by ID or recency.
func reportRun(ctx context.Context, opts *ReportOptions, f *OutputFormatter, store *results.Store, runID string) error {
	var (
		run *results.Run
		err error
	)
	if runID != "" {
		run, err = store.GetRun(ctx, runID)
	} else {
		run, err = store.LatestRun(ctx, opts.Scenario)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return WrapExitError(ExitCommandError, "no matching run recorded", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	checks, err := store.ListChecks(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checks", err)
	}

	if f.JSON() {
		return f.Success(report.Summarize(*run, checks))
	}
	return report.RenderRun(f.Writer, *run, checks)
}

// reportList shows the recent-run index.
func reportList(ctx context.Context, opts *ReportOptions, f *OutputFormatter, store *results.Store) error {
	runs, err := store.ListRuns(ctx, opts.Scenario, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if f.JSON() {
		summaries := make([]report.RunSummary, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, report.Summarize(run, nil).Run)
		}
		return f.Success(summaries)
	}

	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	return report.RenderList(f.Writer, runs)
}
