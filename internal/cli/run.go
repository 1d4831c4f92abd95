package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relaycheck/internal/harness"
	"github.com/roach88/relaycheck/internal/report"
	"github.com/roach88/relaycheck/internal/results"
	"github.com/roach88/relaycheck/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Artifacts   string
	Workdir     string
	SkipCompose bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a verification scenario end to end",
		Long: `Execute a verification scenario: generate the input corpus, start
the pipeline's compose stack, wait for the sink files to stabilize,
validate the transfer, and record the verdict.

The verdict and every check are persisted to the results database;
the corpus, sink files, and container logs are archived under the
artifacts directory. Failed runs keep their artifacts so they can be
diagnosed without re-running the pipeline.

Exit codes:
  0 - Run passed
  1 - A verification check failed
  2 - Command error (unreadable scenario, database failure, etc.)

Examples:
  relaycheck run scenarios/smoke.yaml
  relaycheck run scenarios/million.yaml --db results.db --artifacts artifacts
  relaycheck run scenarios/smoke.yaml --skip-compose --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "relaycheck.db", "path to the results database")
	cmd.Flags().StringVar(&opts.Artifacts, "artifacts", "artifacts", "directory run artifacts are archived under")
	cmd.Flags().StringVar(&opts.Workdir, "workdir", "", "resolve relative scenario paths against this directory instead of the scenario file's")
	cmd.Flags().BoolVar(&opts.SkipCompose, "skip-compose", false, "assume the pipeline is already running; ignore the scenario's compose section")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := configureLogging(opts.RootOptions)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	scn, err := scenario.LoadWithBase(path, opts.Workdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	store, err := results.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open results database", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("error closing results database", "error", closeErr)
		}
	}()

	runnerOpts := []harness.Option{
		harness.WithArtifactRoot(opts.Artifacts),
		harness.WithLogger(logger),
	}
	if opts.SkipCompose {
		runnerOpts = append(runnerOpts, harness.WithSkipCompose())
	}
	runner := harness.New(store, runnerOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := runner.Run(ctx, scn)
	if err != nil {
		return WrapExitError(ExitCommandError, "run could not be recorded", err)
	}

	if err := outputRun(formatter, res); err != nil {
		return err
	}
	if !res.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s failed: %s", res.Run.ID, res.Run.Failure))
	}
	return nil
}

// outputRun renders a completed run in the configured format.
func outputRun(f *OutputFormatter, res *harness.Result) error {
	summary := report.Summarize(res.Run, res.Checks)

	if f.JSON() {
		if res.Passed {
			return f.Success(summary)
		}
		check := firstFailedCheck(res.Checks)
		return f.Error(check.Code, check.Detail, nil, summary)
	}

	return report.RenderRun(f.Writer, res.Run, res.Checks)
}

// firstFailedCheck returns the check that ended the run. A run only
// fails by recording a failed check, so the lookup cannot miss; the
// fallback guards against an inconsistent result.
func firstFailedCheck(checks []results.Check) results.Check {
	for _, c := range checks {
		if c.Status == results.CheckFailed {
			return c
		}
	}
	return results.Check{Code: "RUN_FAILED", Detail: "run failed without a recorded check"}
}
