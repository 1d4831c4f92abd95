package testutil

import (
	"context"
	"sync"
)

// ScriptedProbe replays a predetermined sequence of size observations.
//
// Each call to Probe consumes the next scripted size. Once the script
// is exhausted the last size repeats forever, which models a file that
// has stopped growing. Calls scheduled to fail via FailAt return their
// error instead of a size.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ScriptedProbe struct {
	mu    sync.Mutex
	sizes []int64
	errs  map[int]error
	calls int
}

// NewScriptedProbe creates a probe that returns sizes in order.
//
// With no sizes every call returns 0, modeling a sink that never
// appears.
func NewScriptedProbe(sizes ...int64) *ScriptedProbe {
	return &ScriptedProbe{sizes: sizes, errs: make(map[int]error)}
}

// FailAt makes the n-th call (zero-based) return err instead of a
// size. Returns the probe for chaining.
func (p *ScriptedProbe) FailAt(n int, err error) *ScriptedProbe {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[n] = err
	return p
}

// Probe returns the next scripted observation.
//
// Implements the probe signature expected by watch.Target.
func (p *ScriptedProbe) Probe(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls
	p.calls++
	if err, ok := p.errs[n]; ok {
		return 0, err
	}
	if len(p.sizes) == 0 {
		return 0, nil
	}
	if n >= len(p.sizes) {
		return p.sizes[len(p.sizes)-1], nil
	}
	return p.sizes[n], nil
}

// Calls returns how many times Probe has been invoked.
func (p *ScriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
