package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/relaycheck/internal/compose"
	"github.com/roach88/relaycheck/internal/fsio"
	"github.com/roach88/relaycheck/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Targets       []string
	Compose       string
	Project       string
	Timeout       time.Duration
	Poll          time.Duration
	Stabilization time.Duration
	MinBytes      int64
	AllowEmpty    bool
}

// WatchResult is the machine-readable outcome of a completion wait.
type WatchResult struct {
	Sizes watch.Sizes `json:"sizes"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch --target <id>=<path> [--target <id>=<path> ...]",
		Short: "Wait until watched files stop growing",
		Long: `Wait until every watched file holds a steady size for the whole
stabilization window, or fail when the timeout elapses first.

Targets name local files by default. With --compose, targets take the
form <id>=<service>:<path> and sizes are probed inside the running
containers instead.

Exit codes:
  0 - All targets stabilized
  1 - Timeout before stabilization
  2 - Command error (malformed target, no targets)

Examples:
  relaycheck watch --target target1=data/sink-1.log --target target2=data/sink-2.log
  relaycheck watch --target t1=sink-one:/data/out.log --compose docker-compose.yml
  relaycheck watch --target target1=out.log --timeout 5m --stabilization 10s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Targets, "target", nil, "watched file as <id>=<path>; repeatable (required)")
	_ = cmd.MarkFlagRequired("target")
	cmd.Flags().StringVar(&opts.Compose, "compose", "", "compose file; probe targets inside its services as <id>=<service>:<path>")
	cmd.Flags().StringVar(&opts.Project, "project", "", "compose project name (with --compose)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", watch.DefaultTimeout, "overall wait deadline")
	cmd.Flags().DurationVar(&opts.Poll, "poll", watch.DefaultPollInterval, "pause between size observations")
	cmd.Flags().DurationVar(&opts.Stabilization, "stabilization", watch.DefaultStabilization, "how long sizes must hold steady")
	cmd.Flags().Int64Var(&opts.MinBytes, "min-bytes", 0, "size every target must reach before stability counts")
	cmd.Flags().BoolVar(&opts.AllowEmpty, "allow-empty", false, "let targets stabilize at zero bytes")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	logger := configureLogging(opts.RootOptions)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	targets, err := parseTargets(opts, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --target", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	det := watch.New(watch.Params{
		Timeout:       opts.Timeout,
		PollInterval:  opts.Poll,
		Stabilization: opts.Stabilization,
	}, watch.WithLogger(logger))

	sizes, err := det.Wait(ctx, targets)
	if err != nil {
		return watchFailure(formatter, err, sizes)
	}

	if formatter.JSON() {
		return formatter.Success(WatchResult{Sizes: sizes})
	}
	fmt.Fprintf(formatter.Writer, "all targets stable: %s\n", sizes)
	return nil
}

// parseTargets converts --target specs into watch targets. Local
// files are probed by stat; with --compose, sizes come from wc -c
// inside the named service.
func parseTargets(opts *WatchOptions, logger *slog.Logger) ([]watch.Target, error) {
	var runner *compose.Runner
	if opts.Compose != "" {
		composeOpts := []compose.Option{}
		if opts.Project != "" {
			composeOpts = append(composeOpts, compose.WithProject(opts.Project))
		}
		runner = compose.New(opts.Compose, composeOpts...)
	}

	targets := make([]watch.Target, 0, len(opts.Targets))
	for _, spec := range opts.Targets {
		id, location, ok := strings.Cut(spec, "=")
		if !ok || id == "" || location == "" {
			return nil, fmt.Errorf("%q: want <id>=<path>", spec)
		}

		var probe watch.ProbeFunc
		if runner != nil {
			service, path, ok := strings.Cut(location, ":")
			if !ok || service == "" || path == "" {
				return nil, fmt.Errorf("%q: want <id>=<service>:<path> with --compose", spec)
			}
			probe = runner.SizeProbe(service, path)
		} else {
			probe = fsio.SizeProbe(location)
		}
		logger.Debug("watching target", "id", id, "location", location)

		targets = append(targets, watch.Target{
			ID:         id,
			Probe:      probe,
			MinBytes:   opts.MinBytes,
			AllowEmpty: opts.AllowEmpty,
		})
	}
	return targets, nil
}

// watchFailure renders a wait failure and converts it into the
// matching exit code. Timeouts are verification verdicts; everything
// else is a command error.
func watchFailure(f *OutputFormatter, err error, sizes watch.Sizes) error {
	var we *watch.WaitError
	if !errors.As(err, &we) {
		return WrapExitError(ExitCommandError, "wait could not run", err)
	}

	details := map[string]interface{}{}
	if len(sizes) > 0 {
		details["sizes"] = sizes
	}
	if len(we.Pending) > 0 {
		details["pending"] = we.Pending
	}
	if outErr := f.Error(string(we.Code), we.Message, details, nil); outErr != nil {
		return outErr
	}

	if watch.IsTimeout(err) {
		return WrapExitError(ExitFailure, "transfer never stabilized", err)
	}
	return WrapExitError(ExitCommandError, "wait rejected", err)
}
