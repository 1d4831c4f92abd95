package watch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
)

// Default wait parameters, applied where Params leaves a field zero.
const (
	DefaultTimeout       = 60 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultStabilization = 2 * time.Second
)

// ProbeFunc reports the current byte size of one watched file.
//
// Probes must treat "file does not exist yet" as size 0 with no error.
// A returned error marks the observation as failed for that tick; the
// wait continues.
type ProbeFunc func(ctx context.Context) (int64, error)

// Target is one file whose growth the Detector watches.
type Target struct {
	// ID names the target in results, logs, and errors (e.g. "target1").
	ID string

	// Probe reports the target's current size in bytes.
	Probe ProbeFunc

	// MinBytes is the size the target must reach before stability
	// counts. Zero means the default floor of 1 byte.
	MinBytes int64

	// AllowEmpty permits the target to stabilize at zero bytes.
	// Ignored when MinBytes is set.
	AllowEmpty bool
}

// floor returns the minimum size at which observations count toward
// stability.
func (t Target) floor() int64 {
	if t.MinBytes > 0 {
		return t.MinBytes
	}
	if t.AllowEmpty {
		return 0
	}
	return 1
}

// Params configures a completion wait. Zero fields take defaults.
type Params struct {
	// Timeout bounds the whole wait, measured from the first poll.
	Timeout time.Duration

	// PollInterval is the pause between observation rounds.
	PollInterval time.Duration

	// Stabilization is how long a size must hold steady before the
	// target counts as complete.
	Stabilization time.Duration
}

func (p Params) withDefaults() Params {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.Stabilization <= 0 {
		p.Stabilization = DefaultStabilization
	}
	return p
}

// requiredStable converts the stabilization window into a count of
// consecutive unchanged observations. Always at least 1.
func (p Params) requiredStable() int {
	n := int(math.Ceil(float64(p.Stabilization) / float64(p.PollInterval)))
	if n < 1 {
		n = 1
	}
	return n
}

// Sizes maps target ID to the last observed size in bytes.
type Sizes map[string]int64

// Total returns the sum of all observed sizes.
func (s Sizes) Total() int64 {
	var total int64
	for _, n := range s {
		total += n
	}
	return total
}

// String renders sizes as "id=bytes" pairs in sorted ID order.
func (s Sizes) String() string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%d", id, s[id]))
	}
	return strings.Join(parts, " ")
}

// progress tracks one target's stability streak across polls.
type progress struct {
	last        int64
	seen        bool
	consecutive int
	done        bool
}

// observe folds one size reading into the streak. A reading below the
// floor resets the streak; a changed size starts a new streak of 1;
// an unchanged size extends it. The first reading of a size counts as
// the start of its streak.
func (p *progress) observe(size, floor int64, required int) {
	switch {
	case size < floor:
		p.consecutive = 0
	case !p.seen || size != p.last:
		p.consecutive = 1
	default:
		p.consecutive++
	}
	p.last = size
	p.seen = true
	if p.consecutive >= required {
		p.done = true
	}
}

// Detector waits for a set of targets to stop growing.
type Detector struct {
	params   Params
	required int
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
	logger   *slog.Logger
}

// Option allows configuration of detector parameters.
type Option func(*Detector)

// WithSleep replaces the inter-poll sleep. Tests use a virtual clock's
// Sleep so waits complete without real delay.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(d *Detector) {
		d.sleep = sleep
	}
}

// WithNow replaces the wall-clock source used for the deadline.
func WithNow(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithLogger sets the logger for poll progress and probe failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// New creates a Detector with the given wait parameters.
//
// Zero Params fields take DefaultTimeout, DefaultPollInterval, and
// DefaultStabilization.
func New(params Params, opts ...Option) *Detector {
	d := &Detector{
		params: params.withDefaults(),
		sleep:  realSleep,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.required = d.params.requiredStable()
	return d
}

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait polls all targets until every one is stable or the timeout
// elapses. It returns the last observed size of each target; on
// failure the sizes reflect the final round of observations.
//
// Completion is checked before the deadline, so a transfer that
// stabilizes on the final poll still passes. Probe errors are logged
// and scored as size 0 for that tick. Context cancellation aborts the
// wait with the context's error.
func (d *Detector) Wait(ctx context.Context, targets []Target) (Sizes, error) {
	if len(targets) == 0 {
		return nil, NewNoTargetsError()
	}
	if err := validateTargets(targets); err != nil {
		return nil, err
	}

	deadline := d.now().Add(d.params.Timeout)
	sizes := make(Sizes, len(targets))
	states := make([]progress, len(targets))

	d.logger.Info("waiting for transfer completion",
		"targets", len(targets),
		"timeout", d.params.Timeout,
		"poll_interval", d.params.PollInterval,
		"required_stable", d.required)

	for {
		for i := range targets {
			t := &targets[i]
			if states[i].done {
				continue
			}
			size, err := t.Probe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return sizes, ctx.Err()
				}
				d.logger.Warn("size probe failed, scoring as empty",
					"target", t.ID,
					"error", err)
				size = 0
			}
			sizes[t.ID] = size
			states[i].observe(size, t.floor(), d.required)
			if states[i].done {
				d.logger.Info("target stable",
					"target", t.ID,
					"bytes", size)
			}
		}

		if allDone(states) {
			d.logger.Info("all targets stable", "sizes", sizes.String())
			return sizes, nil
		}

		if !d.now().Before(deadline) {
			pending := pendingIDs(targets, states)
			d.logger.Error("wait timed out",
				"timeout", d.params.Timeout,
				"pending", strings.Join(pending, ","),
				"sizes", sizes.String())
			return sizes, NewTimeoutError(sizes, d.params.Timeout, pending)
		}

		if err := d.sleep(ctx, d.params.PollInterval); err != nil {
			return sizes, err
		}
	}
}

// validateTargets rejects malformed target sets. These are caller
// bugs, not wait outcomes, so they surface as plain errors.
func validateTargets(targets []Target) error {
	seen := make(map[string]bool, len(targets))
	for i, t := range targets {
		if t.ID == "" {
			return fmt.Errorf("watch target %d has empty ID", i)
		}
		if t.Probe == nil {
			return fmt.Errorf("watch target %q has nil probe", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate watch target %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

func allDone(states []progress) bool {
	for i := range states {
		if !states[i].done {
			return false
		}
	}
	return true
}

// pendingIDs returns the IDs of targets not yet stable, in declaration
// order.
func pendingIDs(targets []Target, states []progress) []string {
	var ids []string
	for i := range targets {
		if !states[i].done {
			ids = append(ids, targets[i].ID)
		}
	}
	return ids
}
