// Package watch detects when a pipeline transfer has finished.
//
// The pipeline under test gives no completion signal: relay stages keep
// running after the data stops moving. The only observable evidence
// that a transfer is done is that every sink file has stopped growing.
// This package turns that evidence into a verdict.
//
// DETECTION MODEL:
//
// Each sink is a Target with a size probe. The Detector polls all
// probes on a fixed interval and tracks, per target, how many
// consecutive observations returned the same size. A target is stable
// once its size has held steady for a full stabilization window while
// at or above its minimum byte floor. The wait ends when every target
// is stable (success) or the overall timeout elapses (WAIT_TIMEOUT).
//
// The stabilization window is expressed in observations, not wall
// time: required = ceil(stabilization / poll interval), minimum 1.
// The first observation of a given size counts toward the streak, so
// a file that is already complete when polling starts resolves after
// exactly `required` polls.
//
// FAILURE HANDLING:
//
// A failed probe is not fatal. Mid-transfer the sink container may not
// have created the file yet, or a docker exec may race a container
// restart. A probe error is logged and scored as a zero-size
// observation for that tick. Only context cancellation aborts the wait
// early.
//
// DETERMINISM:
//
// Time is injected: the Detector sleeps and reads the clock through
// function values that tests replace with a virtual clock. Probes are
// called sequentially in target declaration order each tick, so the
// observation sequence for a scripted probe set is reproducible.
package watch
