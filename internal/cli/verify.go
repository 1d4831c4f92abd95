package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/relaycheck/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Source string
	Sinks  []string
}

// VerifyResult is the machine-readable outcome of a one-shot
// verification.
type VerifyResult struct {
	Lines          verify.LineCounts `json:"lines"`
	Split          verify.Split      `json:"split"`
	OrderPreserved bool              `json:"order_preserved"`
	SourceBytes    int64             `json:"source_bytes"`
	Target1Bytes   int64             `json:"target1_bytes"`
	Target2Bytes   int64             `json:"target2_bytes"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify --source <file> --sink <file> --sink <file>",
		Short: "Validate one source against two sink files",
		Long: `Validate a completed transfer without driving the pipeline.

Proves that the two sink files together carry exactly the records of
the source file: record counts are conserved, the byte multisets
reconcile, and neither sink was starved. Record order across sinks is
reported but never fails the check.

Exit codes:
  0 - Transfer is valid
  1 - Verification failed (count mismatch, reconciliation, starvation)
  2 - Command error (missing files, wrong number of sinks)

Examples:
  relaycheck verify --source data/source.log --sink data/sink-1.log --sink data/sink-2.log
  relaycheck verify --source source.log --sink a.log --sink b.log --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source file the producer emitted (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringArrayVar(&opts.Sinks, "sink", nil, "sink output file; pass exactly twice, target1 first")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	logger := configureLogging(opts.RootOptions)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if len(opts.Sinks) != 2 {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("--sink must be passed exactly twice, got %d", len(opts.Sinks)))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	checker := verify.New(verify.WithLogger(logger))
	report, err := checker.Integrity(ctx, opts.Source, opts.Sinks)
	if err != nil {
		return verifyFailure(formatter, err)
	}

	split, err := checker.Distribution(report.Counts)
	if err != nil {
		return verifyFailure(formatter, err)
	}

	result := VerifyResult{
		Lines:          report.Counts,
		Split:          split,
		OrderPreserved: report.OrderPreserved,
		SourceBytes:    report.SourceBytes,
		Target1Bytes:   report.Target1Bytes,
		Target2Bytes:   report.Target2Bytes,
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	renderVerifyText(formatter, result)
	return nil
}

// verifyFailure renders a typed verification failure and converts it
// into the matching exit code. Untyped errors (unreadable files) are
// command errors, not verification verdicts.
func verifyFailure(f *OutputFormatter, err error) error {
	var ce *verify.CheckError
	if !errors.As(err, &ce) {
		return WrapExitError(ExitCommandError, "verification could not run", err)
	}

	if outErr := f.Error(string(ce.Code), ce.Message, checkErrorDetails(ce), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "verification failed", err)
}

// checkErrorDetails projects the diagnostic payload of a CheckError
// for the output envelope. Imbalance listings are capped; the full
// set lives in the error itself for programmatic callers.
func checkErrorDetails(ce *verify.CheckError) map[string]interface{} {
	details := map[string]interface{}{}
	switch ce.Code {
	case verify.ErrCodeLineCountMismatch:
		details["source_lines"] = ce.SourceLines
		details["sink_lines"] = ce.SinkLines
	case verify.ErrCodeReconciliation:
		if ce.Sink != "" {
			details["sink"] = ce.Sink
		}
		details["imbalanced_tokens"] = len(ce.Imbalances)
		tokens := make([]string, 0, 10)
		for i, imb := range ce.Imbalances {
			if i == 10 {
				break
			}
			tokens = append(tokens, imb.String())
		}
		details["imbalances"] = tokens
	case verify.ErrCodeNothingProcessed, verify.ErrCodeSinkStarved:
		if ce.Sink != "" {
			details["sink"] = ce.Sink
		}
		details["counts"] = ce.Counts
	}
	return details
}

func renderVerifyText(f *OutputFormatter, r VerifyResult) {
	p := message.NewPrinter(language.English)
	p.Fprintf(f.Writer, "%-9s%d records (%d bytes)\n", "source:", r.Lines.Source, r.SourceBytes)
	p.Fprintf(f.Writer, "%-9s%d records (%d bytes)\n", "target1:", r.Lines.Target1, r.Target1Bytes)
	p.Fprintf(f.Writer, "%-9s%d records (%d bytes)\n", "target2:", r.Lines.Target2, r.Target2Bytes)
	p.Fprintf(f.Writer, "%-9s%.1f%% / %.1f%%\n", "split:", r.Split.Target1Pct, r.Split.Target2Pct)
	order := "reordered"
	if r.OrderPreserved {
		order = "preserved"
	}
	p.Fprintf(f.Writer, "%-9s%s\n", "order:", order)
	fmt.Fprintln(f.Writer, "transfer verified: no loss, no duplication")
}
