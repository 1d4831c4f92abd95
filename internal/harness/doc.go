// Package harness executes pipeline verification scenarios end to end.
//
// A scenario run generates a seeded input corpus, starts the relay
// pipeline's compose stack, waits for the sink files to stabilize,
// validates the transfer, persists the verdict, and archives the
// evidence. The harness drives the real pipeline; it never simulates
// the transfer it is judging.
//
// # Execution Flow
//
// Each run records four checks, in order:
//
//  1. setup: corpus generation and stack launch
//  2. wait: completion detection over the sink files
//  3. integrity: record conservation and byte-multiset reconciliation
//  4. distribution: fan-out fairness across the sinks
//
// Checks run sequentially and stop at the first failure; later checks
// are meaningless once an earlier one fails.
//
// # Failure Policy
//
// A failed check is an answer, not an abort. The run is finalized with
// status failed, the failure code and message are persisted, and the
// artifacts (source corpus, sink files, container logs) are archived
// exactly as on success, so a failure can be diagnosed without
// re-running the pipeline. Errors returned by Run itself indicate
// infrastructure problems: the results database or the archive could
// not be written.
//
// # Deterministic Testing
//
// Collaborators are injectable: run IDs (RunIDGenerator), the watch
// clock (watch options), and the compose command executor (compose
// options). Tests run scenarios against pre-written sink files with a
// virtual clock and a recorded executor, so a full run needs neither
// docker nor wall-clock time.
//
// # Usage
//
//	scn, err := scenario.Load("scenarios/smoke.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner := harness.New(store, harness.WithArtifactRoot("artifacts"))
//	res, err := runner.Run(ctx, scn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !res.Passed {
//	    log.Printf("run %s failed: %s", res.Run.ID, res.Run.Failure)
//	}
package harness
