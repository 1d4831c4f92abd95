package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relaycheck/internal/results"
	"github.com/roach88/relaycheck/internal/verify"
)

var reportStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func passedRun() (results.Run, []results.Check) {
	run := results.Run{
		ID:              "0195b2c4-6e1a-7c3d-9f00-8a58f0e3a1b2",
		Scenario:        "smoke-small",
		StartedAt:       reportStart,
		FinishedAt:      reportStart.Add(90 * time.Second),
		Status:          results.StatusPassed,
		Volume:          1000000,
		Seed:            42,
		SourceSHA256:    "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Counts:          verify.NewLineCounts(1000000, 499812, 500188),
		SplitT1Permille: 499,
		SplitT2Permille: 500,
	}
	checks := []results.Check{
		{RunID: run.ID, Seq: 1, Name: results.CheckSetup, Status: results.CheckPassed, Detail: "generated 1000000 records"},
		{RunID: run.ID, Seq: 2, Name: results.CheckWait, Status: results.CheckPassed, Detail: "targets stable"},
		{RunID: run.ID, Seq: 3, Name: results.CheckIntegrity, Status: results.CheckPassed},
		{RunID: run.ID, Seq: 4, Name: results.CheckDistribution, Status: results.CheckPassed},
	}
	return run, checks
}

func failedRun() (results.Run, []results.Check) {
	run := results.Run{
		ID:              "0195b2c4-aaaa-7c3d-9f00-8a58f0e3a1b2",
		Scenario:        "corruption-flip",
		StartedAt:       reportStart,
		FinishedAt:      reportStart.Add(45 * time.Second),
		Status:          results.StatusFailed,
		Volume:          50000,
		Seed:            7,
		SourceSHA256:    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Counts:          verify.NewLineCounts(50000, 25000, 25000),
		SplitT1Permille: 500,
		SplitT2Permille: 500,
		Failure:         "RECONCILIATION_FAILED: sink content contains bytes the source never produced",
	}
	checks := []results.Check{
		{RunID: run.ID, Seq: 1, Name: results.CheckSetup, Status: results.CheckPassed, Detail: "generated 50000 records"},
		{RunID: run.ID, Seq: 2, Name: results.CheckWait, Status: results.CheckPassed, Detail: "targets stable"},
		{RunID: run.ID, Seq: 3, Name: results.CheckIntegrity, Status: results.CheckFailed,
			Code: "RECONCILIATION_FAILED", Detail: "sink target2: content contains bytes the source never produced"},
	}
	return run, checks
}

func runningRun() results.Run {
	return results.Run{
		ID:        "0195b2c4-bbbb-7c3d-9f00-8a58f0e3a1b2",
		Scenario:  "smoke-small",
		StartedAt: reportStart,
		Status:    results.StatusRunning,
		Volume:    1000,
		Seed:      99,
	}
}

// TestRenderRun_Passed renders a complete successful run.
func TestRenderRun_Passed(t *testing.T) {
	run, checks := passedRun()

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run, checks))

	golden(t).Assert(t, "run_passed", buf.Bytes())
}

// TestRenderRun_Failed renders the failure line and the failed check.
func TestRenderRun_Failed(t *testing.T) {
	run, checks := failedRun()

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run, checks))

	golden(t).Assert(t, "run_failed", buf.Bytes())
}

// TestRenderRun_Running omits the sections an unfinished run cannot
// fill.
func TestRenderRun_Running(t *testing.T) {
	run := runningRun()
	checks := []results.Check{
		{RunID: run.ID, Seq: 1, Name: results.CheckSetup, Status: results.CheckPassed, Detail: "generated 1000 records"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run, checks))

	golden(t).Assert(t, "run_running", buf.Bytes())
}

// TestRenderList renders the run index table.
func TestRenderList(t *testing.T) {
	passed, _ := passedRun()
	failed, _ := failedRun()

	var buf bytes.Buffer
	require.NoError(t, RenderList(&buf, []results.Run{passed, failed, runningRun()}))

	golden(t).Assert(t, "run_list", buf.Bytes())
}

// TestSummarize_JSON checks the machine-readable projection.
func TestSummarize_JSON(t *testing.T) {
	run, checks := failedRun()

	data, err := json.MarshalIndent(Summarize(run, checks), "", "  ")
	require.NoError(t, err)

	golden(t).Assert(t, "summary_failed", data)
}

// TestSummarize_RunningRun leaves finish-dependent fields empty.
func TestSummarize_RunningRun(t *testing.T) {
	s := Summarize(runningRun(), nil)

	assert.Equal(t, "running", s.Run.Status)
	assert.Empty(t, s.Run.FinishedAt)
	assert.Zero(t, s.Run.DurationMs)
	assert.Equal(t, "99", s.Run.Seed)
	assert.Empty(t, s.Checks)
	assert.NotNil(t, s.Checks)
}

// TestSummarize_Duration reports elapsed time in milliseconds.
func TestSummarize_Duration(t *testing.T) {
	run, checks := passedRun()

	s := Summarize(run, checks)
	assert.Equal(t, int64(90000), s.Run.DurationMs)
	assert.Equal(t, "42", s.Run.Seed)
	require.Len(t, s.Checks, 4)
	assert.Equal(t, "distribution", s.Checks[3].Name)
}
