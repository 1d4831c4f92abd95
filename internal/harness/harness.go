package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/relaycheck/internal/archive"
	"github.com/roach88/relaycheck/internal/compose"
	"github.com/roach88/relaycheck/internal/corpus"
	"github.com/roach88/relaycheck/internal/fsio"
	"github.com/roach88/relaycheck/internal/results"
	"github.com/roach88/relaycheck/internal/scenario"
	"github.com/roach88/relaycheck/internal/verify"
	"github.com/roach88/relaycheck/internal/watch"
)

// Archive entry names. Fixed so tooling can locate artifacts without
// consulting the manifest.
const (
	artifactSource  = "source.txt"
	artifactTarget1 = "target1.txt"
	artifactTarget2 = "target2.txt"
	artifactLogs    = "compose.log"
)

// Failure codes for phases whose errors carry no code of their own.
const (
	codeSetupFailed  = "SETUP_FAILED"
	codeWaitFailed   = "WAIT_FAILED"
	codeVerifyFailed = "VERIFY_FAILED"
)

// RunIDGenerator produces unique run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator issues time-ordered UUIDv7 identifiers, so run
// directories and result rows sort by creation.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Result is the outcome of one harness run.
type Result struct {
	// Run is the persisted run row in its final state.
	Run results.Run

	// Checks lists the recorded checks in execution order.
	Checks []results.Check

	// Stats describes the generated corpus. Nil if generation failed.
	Stats *corpus.Stats

	// Sizes holds the last observed sink sizes. Nil before the first
	// wait poll.
	Sizes watch.Sizes

	// Report is the integrity outcome. Nil unless the check passed.
	Report *verify.Report

	// ArtifactDir is the directory artifacts were archived into.
	ArtifactDir string

	// Passed reports whether every check passed.
	Passed bool
}

// Runner executes scenarios end to end and persists their verdicts.
type Runner struct {
	store        *results.Store
	ids          RunIDGenerator
	artifactRoot string
	skipCompose  bool
	logger       *slog.Logger
	watchOpts    []watch.Option
	composeOpts  []compose.Option
}

// Option allows configuration of runner parameters.
type Option func(*Runner)

// WithIDGenerator replaces the run ID source. Tests use fixed IDs.
func WithIDGenerator(gen RunIDGenerator) Option {
	return func(r *Runner) {
		r.ids = gen
	}
}

// WithArtifactRoot sets the directory run archives are created under.
func WithArtifactRoot(dir string) Option {
	return func(r *Runner) {
		r.artifactRoot = dir
	}
}

// WithSkipCompose disables stack management. The pipeline is assumed
// to be running already; the scenario's compose section is ignored.
func WithSkipCompose() Option {
	return func(r *Runner) {
		r.skipCompose = true
	}
}

// WithLogger sets the logger for run progress.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithWatchOptions forwards options to the completion detector. Tests
// inject simulated clocks.
func WithWatchOptions(opts ...watch.Option) Option {
	return func(r *Runner) {
		r.watchOpts = append(r.watchOpts, opts...)
	}
}

// WithComposeOptions forwards options to the compose runner. Tests
// inject command recorders.
func WithComposeOptions(opts ...compose.Option) Option {
	return func(r *Runner) {
		r.composeOpts = append(r.composeOpts, opts...)
	}
}

// New creates a Runner persisting verdicts to store.
func New(store *results.Store, opts ...Option) *Runner {
	r := &Runner{
		store:        store,
		ids:          UUIDGenerator{},
		artifactRoot: "artifacts",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one scenario and records the outcome.
//
// The returned error covers infrastructure problems only (the results
// database or archive could not be written); verification failures
// land in the Result with Passed false. Failed runs still persist
// their verdict and archive their artifacts. The compose stack, when
// one was started, is torn down after logs are captured.
func (r *Runner) Run(ctx context.Context, scn *scenario.Scenario) (*Result, error) {
	runID := r.ids.Generate()
	logger := r.logger.With("run", runID, "scenario", scn.Name)

	run := results.Run{
		ID:        runID,
		Scenario:  scn.Name,
		StartedAt: time.Now().UTC(),
		Status:    results.StatusRunning,
		Volume:    scn.Volume,
		Seed:      scn.Seed,
	}
	if err := r.store.BeginRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	logger.Info("run started", "volume", scn.Volume, "seed", scn.Seed)

	res := &Result{
		Run:         run,
		ArtifactDir: filepath.Join(r.artifactRoot, runID),
	}

	var comp *compose.Runner
	defer func() {
		if comp == nil {
			return
		}
		if err := comp.Down(context.WithoutCancel(ctx)); err != nil {
			logger.Error("stack teardown failed", "error", err)
		}
	}()

	// Check 1: corpus generation and stack launch.
	stats, c, err := r.setup(ctx, logger, scn, runID, res.ArtifactDir)
	comp = c
	res.Stats = stats
	if err != nil {
		return r.fail(ctx, logger, scn, res, comp, results.CheckSetup, codeSetupFailed, err)
	}
	if err := r.record(ctx, res, results.CheckSetup, setupDetail(stats)); err != nil {
		return res, err
	}

	// Check 2: completion detection over the sink files.
	sizes, err := r.awaitSinks(ctx, logger, scn)
	res.Sizes = sizes
	if err != nil {
		return r.fail(ctx, logger, scn, res, comp, results.CheckWait, codeWaitFailed, err)
	}
	if err := r.record(ctx, res, results.CheckWait, sizes.String()); err != nil {
		return res, err
	}

	// Check 3: integrity.
	checker := verify.New(verify.WithLogger(logger))
	report, err := checker.Integrity(ctx, scn.Source, scn.Sinks)
	if err != nil {
		return r.fail(ctx, logger, scn, res, comp, results.CheckIntegrity, codeVerifyFailed, err)
	}
	res.Report = report
	if err := r.record(ctx, res, results.CheckIntegrity, integrityDetail(report)); err != nil {
		return res, err
	}

	// Check 4: distribution.
	split, err := checker.Distribution(report.Counts)
	if err != nil {
		return r.fail(ctx, logger, scn, res, comp, results.CheckDistribution, codeVerifyFailed, err)
	}
	if err := r.record(ctx, res, results.CheckDistribution, distributionDetail(split)); err != nil {
		return res, err
	}

	res.Passed = true
	res.Run.Status = results.StatusPassed
	if err := r.finalize(ctx, logger, scn, res, comp); err != nil {
		return res, err
	}
	logger.Info("run passed",
		"records", report.Counts.Total,
		"order_preserved", report.OrderPreserved)
	return res, nil
}

// setup generates the corpus and brings the pipeline stack up.
func (r *Runner) setup(ctx context.Context, logger *slog.Logger, scn *scenario.Scenario, runID, runDir string) (*corpus.Stats, *compose.Runner, error) {
	if dir := filepath.Dir(scn.Source); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating source dir: %w", err)
		}
	}
	stats, err := corpus.WriteFile(scn.Source, corpus.Spec{
		Volume:      scn.Volume,
		Seed:        scn.Seed,
		RecordBytes: scn.RecordBytes,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generating corpus: %w", err)
	}
	logger.Info("corpus generated",
		"path", scn.Source,
		"records", stats.Records,
		"bytes", stats.Bytes,
		"sha256", stats.SHA256)

	if r.skipCompose || !scn.Compose.Enabled() {
		return stats, nil, nil
	}

	opts := append([]compose.Option{
		compose.WithProject("relaycheck-" + runID),
		compose.WithLogger(logger),
	}, r.composeOpts...)
	comp := compose.New(scn.Compose.File, opts...)

	if len(scn.Compose.Env) > 0 {
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return stats, comp, fmt.Errorf("creating artifact dir: %w", err)
		}
		if _, err := comp.WriteEnvOverride(runDir, scn.Compose.Services, scn.Compose.Env); err != nil {
			return stats, comp, err
		}
	}
	if err := comp.Up(ctx, scn.Compose.Services...); err != nil {
		return stats, comp, err
	}
	return stats, comp, nil
}

// awaitSinks blocks until both sink files stabilize.
func (r *Runner) awaitSinks(ctx context.Context, logger *slog.Logger, scn *scenario.Scenario) (watch.Sizes, error) {
	params := watch.Params{
		Timeout:       scn.Wait.Timeout(),
		PollInterval:  scn.Wait.PollInterval(),
		Stabilization: scn.Wait.Stabilization(),
	}
	opts := append([]watch.Option{watch.WithLogger(logger)}, r.watchOpts...)
	det := watch.New(params, opts...)

	targets := make([]watch.Target, len(scn.Sinks))
	for i, path := range scn.Sinks {
		targets[i] = watch.Target{
			ID:         verify.SinkName(i),
			Probe:      fsio.SizeProbe(path),
			MinBytes:   scn.Wait.MinBytes,
			AllowEmpty: scn.Wait.AllowEmpty,
		}
	}
	return det.Wait(ctx, targets)
}

// record persists one passed check and mirrors it into the result.
func (r *Runner) record(ctx context.Context, res *Result, name, detail string) error {
	check := results.Check{
		RunID:  res.Run.ID,
		Seq:    len(res.Checks) + 1,
		Name:   name,
		Status: results.CheckPassed,
		Detail: detail,
	}
	if err := r.store.AddCheck(ctx, check); err != nil {
		return fmt.Errorf("recording %s check: %w", name, err)
	}
	res.Checks = append(res.Checks, check)
	return nil
}

// fail records the failed check and finalizes the run as failed. The
// verification failure itself is reported through the Result; only
// bookkeeping errors are returned.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, scn *scenario.Scenario, res *Result, comp *compose.Runner, name, fallbackCode string, cause error) (*Result, error) {
	code := failureCode(cause)
	failure := cause.Error()
	if code == "" {
		code = fallbackCode
		failure = code + ": " + failure
	}

	// Bookkeeping still runs when the caller's context died mid-run.
	bctx := context.WithoutCancel(ctx)

	check := results.Check{
		RunID:  res.Run.ID,
		Seq:    len(res.Checks) + 1,
		Name:   name,
		Status: results.CheckFailed,
		Code:   code,
		Detail: cause.Error(),
	}
	if err := r.store.AddCheck(bctx, check); err != nil {
		return res, fmt.Errorf("recording %s check: %w", name, err)
	}
	res.Checks = append(res.Checks, check)

	res.Run.Status = results.StatusFailed
	res.Run.Failure = failure
	logger.Error("run failed", "check", name, "code", code, "error", cause)

	if err := r.finalize(bctx, logger, scn, res, comp); err != nil {
		return res, err
	}
	return res, nil
}

// finalize stamps the verdict, persists it, and archives the
// artifacts. Container logs are captured here, before the deferred
// teardown fires.
func (r *Runner) finalize(ctx context.Context, logger *slog.Logger, scn *scenario.Scenario, res *Result, comp *compose.Runner) error {
	res.Run.FinishedAt = time.Now().UTC()
	if res.Stats != nil {
		res.Run.SourceSHA256 = res.Stats.SHA256
	}
	if res.Report != nil {
		res.Run.Counts = res.Report.Counts
		res.Run.SplitT1Permille, res.Run.SplitT2Permille = res.Report.Counts.Permille()
		res.Run.OrderPreserved = res.Report.OrderPreserved
	}
	if err := r.store.FinishRun(ctx, res.Run); err != nil {
		return fmt.Errorf("recording run verdict: %w", err)
	}

	entries := []archive.Entry{
		{Name: artifactSource, Path: scn.Source, Optional: true},
		{Name: artifactTarget1, Path: scn.Sinks[0], Optional: true},
		{Name: artifactTarget2, Path: scn.Sinks[1], Optional: true},
	}
	if comp != nil {
		logs, err := comp.Logs(ctx)
		if err != nil {
			logger.Warn("log capture failed", "error", err)
		} else {
			entries = append(entries, archive.Entry{Name: artifactLogs, Data: logs})
		}
	}
	// The env override was written into the run directory during
	// setup; re-list it so the manifest covers it.
	overridePath := filepath.Join(res.ArtifactDir, compose.OverrideFileName)
	if data, err := os.ReadFile(overridePath); err == nil {
		entries = append(entries, archive.Entry{Name: compose.OverrideFileName, Data: data})
	}

	manifest, err := archive.Collect(res.ArtifactDir, res.Run.ID, res.Run.Scenario, entries)
	if err != nil {
		return fmt.Errorf("archiving artifacts: %w", err)
	}
	logger.Info("artifacts archived",
		"dir", res.ArtifactDir,
		"entries", len(manifest.Artifacts))
	return nil
}

func setupDetail(stats *corpus.Stats) string {
	return fmt.Sprintf("generated %d records (%d bytes)", stats.Records, stats.Bytes)
}

func integrityDetail(report *verify.Report) string {
	word := "reordered"
	if report.OrderPreserved {
		word = "preserved"
	}
	return fmt.Sprintf("source %d = target1 %d + target2 %d, order %s",
		report.Counts.Source, report.Counts.Target1, report.Counts.Target2, word)
}

func distributionDetail(split verify.Split) string {
	return fmt.Sprintf("target1 %.1f%%, target2 %.1f%%", split.Target1Pct, split.Target2Pct)
}

// failureCode extracts the machine code carried by typed wait and
// verification errors. Untyped errors yield "".
func failureCode(err error) string {
	var we *watch.WaitError
	if errors.As(err, &we) {
		return string(we.Code)
	}
	var ce *verify.CheckError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	return ""
}
