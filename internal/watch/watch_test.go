package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relaycheck/internal/testutil"
)

// newTestDetector builds a Detector driven by a virtual clock so waits
// complete without real delay.
func newTestDetector(t *testing.T, params Params) (*Detector, *testutil.VirtualClock) {
	t.Helper()
	clock := testutil.NewVirtualClock()
	d := New(params,
		WithSleep(clock.Sleep),
		WithNow(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return d, clock
}

// TestParams_RequiredStable converts stabilization windows into
// observation counts, rounding up with a minimum of 1.
func TestParams_RequiredStable(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   int
	}{
		{"exact multiple", Params{Stabilization: 2 * time.Second, PollInterval: 250 * time.Millisecond}, 8},
		{"two polls", Params{Stabilization: 500 * time.Millisecond, PollInterval: 250 * time.Millisecond}, 2},
		{"rounds up", Params{Stabilization: 750 * time.Millisecond, PollInterval: 500 * time.Millisecond}, 2},
		{"window shorter than poll", Params{Stabilization: 100 * time.Millisecond, PollInterval: 250 * time.Millisecond}, 1},
		{"defaults", Params{}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.withDefaults().requiredStable())
		})
	}
}

// TestTarget_Floor resolves the minimum size a target must reach.
func TestTarget_Floor(t *testing.T) {
	assert.Equal(t, int64(1), Target{ID: "t"}.floor())
	assert.Equal(t, int64(100), Target{ID: "t", MinBytes: 100}.floor())
	assert.Equal(t, int64(0), Target{ID: "t", AllowEmpty: true}.floor())
	// Explicit MinBytes wins over AllowEmpty
	assert.Equal(t, int64(100), Target{ID: "t", MinBytes: 100, AllowEmpty: true}.floor())
}

// TestWait_StableFileResolvesAfterWindow counts the first observation
// of a size toward the streak, so an already-complete file resolves in
// exactly the required number of polls.
func TestWait_StableFileResolvesAfterWindow(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       10 * time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 750 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(4)

	sizes, err := d.Wait(context.Background(), []Target{{ID: "target1", Probe: probe.Probe}})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 4}, sizes)
	assert.Equal(t, 3, probe.Calls())
}

// TestWait_GrowthResetsStreak restarts the stability window whenever
// the observed size changes.
func TestWait_GrowthResetsStreak(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       10 * time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 750 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(2, 4)

	sizes, err := d.Wait(context.Background(), []Target{{ID: "target1", Probe: probe.Probe}})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 4}, sizes)
	// One poll at size 2, then three unchanged polls at size 4
	assert.Equal(t, 4, probe.Calls())
}

// TestWait_ZeroBytesNotStableByDefault refuses to count an absent or
// empty file as a completed transfer.
func TestWait_ZeroBytesNotStableByDefault(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(0)

	sizes, err := d.Wait(context.Background(), []Target{{ID: "target1", Probe: probe.Probe}})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, Sizes{"target1": 0}, sizes)
}

// TestWait_AllowEmptyStabilizesAtZero lets an opted-in target complete
// while empty.
func TestWait_AllowEmptyStabilizesAtZero(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(0)

	sizes, err := d.Wait(context.Background(), []Target{
		{ID: "target1", Probe: probe.Probe, AllowEmpty: true},
	})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 0}, sizes)
	assert.Equal(t, 2, probe.Calls())
}

// TestWait_MinBytesFloor withholds completion until the target reaches
// its configured minimum size.
func TestWait_MinBytesFloor(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(50)

	_, err := d.Wait(context.Background(), []Target{
		{ID: "target1", Probe: probe.Probe, MinBytes: 100},
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

// TestWait_TargetsStabilizeIndependently stops probing a target once
// it is stable while others keep polling.
func TestWait_TargetsStabilizeIndependently(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       10 * time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	fast := testutil.NewScriptedProbe(6)
	slow := testutil.NewScriptedProbe(0, 3, 9)

	sizes, err := d.Wait(context.Background(), []Target{
		{ID: "target1", Probe: fast.Probe},
		{ID: "target2", Probe: slow.Probe},
	})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 6, "target2": 9}, sizes)
	assert.Equal(t, 2, fast.Calls())
	assert.Equal(t, 4, slow.Calls())
}

// TestWait_ProbeFailureScoresZero treats a failed probe as an empty
// observation and keeps waiting.
func TestWait_ProbeFailureScoresZero(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       10 * time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(5).FailAt(1, errors.New("exec failed"))

	sizes, err := d.Wait(context.Background(), []Target{{ID: "target1", Probe: probe.Probe}})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 5}, sizes)
	// Poll at 5, failed poll scored 0, then two unchanged polls at 5
	assert.Equal(t, 4, probe.Calls())
}

// TestWait_TimeoutReportsPending names the targets that never
// stabilized and the sizes last seen.
func TestWait_TimeoutReportsPending(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	done := testutil.NewScriptedProbe(4)
	growing := testutil.NewScriptedProbe(1, 2, 3, 4, 5)

	sizes, err := d.Wait(context.Background(), []Target{
		{ID: "target1", Probe: done.Probe},
		{ID: "target2", Probe: growing.Probe},
	})
	require.Error(t, err)
	require.True(t, IsTimeout(err))

	var we *WaitError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, ErrCodeTimeout, we.Code)
	assert.Equal(t, []string{"target2"}, we.Pending)
	assert.Equal(t, time.Second, we.Timeout)
	assert.Equal(t, Sizes{"target1": 4, "target2": 5}, sizes)
	assert.Contains(t, err.Error(), "WAIT_TIMEOUT")
	assert.Contains(t, err.Error(), "target2")
}

// TestWait_CompletionOnFinalPoll declares success when the last target
// stabilizes exactly as the deadline arrives.
func TestWait_CompletionOnFinalPoll(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       500 * time.Millisecond,
		PollInterval:  500 * time.Millisecond,
		Stabilization: time.Second,
	})
	probe := testutil.NewScriptedProbe(4)

	sizes, err := d.Wait(context.Background(), []Target{{ID: "target1", Probe: probe.Probe}})
	require.NoError(t, err)
	assert.Equal(t, Sizes{"target1": 4}, sizes)
}

// TestWait_NoTargets rejects an empty watch set.
func TestWait_NoTargets(t *testing.T) {
	d, _ := newTestDetector(t, Params{})

	_, err := d.Wait(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsNoTargets(err))
	assert.Contains(t, err.Error(), "NO_TARGETS")
}

// TestWait_RejectsMalformedTargets surfaces caller bugs as plain
// errors, not wait outcomes.
func TestWait_RejectsMalformedTargets(t *testing.T) {
	d, _ := newTestDetector(t, Params{})
	probe := testutil.NewScriptedProbe(1)

	_, err := d.Wait(context.Background(), []Target{{ID: "", Probe: probe.Probe}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ID")

	_, err = d.Wait(context.Background(), []Target{{ID: "target1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil probe")

	_, err = d.Wait(context.Background(), []Target{
		{ID: "target1", Probe: probe.Probe},
		{ID: "target1", Probe: probe.Probe},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.False(t, IsTimeout(err))
	assert.False(t, IsNoTargets(err))
}

// TestWait_ContextCanceled aborts the wait with the context error
// instead of scoring the cancellation as a probe failure.
func TestWait_ContextCanceled(t *testing.T) {
	d, _ := newTestDetector(t, Params{
		Timeout:       10 * time.Second,
		PollInterval:  250 * time.Millisecond,
		Stabilization: 500 * time.Millisecond,
	})
	probe := testutil.NewScriptedProbe(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Wait(ctx, []Target{{ID: "target1", Probe: probe.Probe}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}

// TestSizes_String renders sizes deterministically in sorted ID order.
func TestSizes_String(t *testing.T) {
	s := Sizes{"target2": 986, "target1": 1024}
	assert.Equal(t, "target1=1024 target2=986", s.String())
}

// TestSizes_Total sums observed sizes.
func TestSizes_Total(t *testing.T) {
	assert.Equal(t, int64(0), Sizes{}.Total())
	assert.Equal(t, int64(2010), Sizes{"target1": 1024, "target2": 986}.Total())
}
