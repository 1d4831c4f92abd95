// Package testutil provides deterministic substitutes for the
// time-dependent and randomized collaborators used across the module.
package testutil

import (
	"context"
	"sync"
	"time"
)

// VirtualClock provides a thread-safe virtual time source for tests.
//
// Time advances only through Sleep and Advance, never on its own. A
// completion-wait driven by a VirtualClock is fully deterministic: the
// same probe script produces the same sequence of observations and the
// same verdict on every run, regardless of host scheduling.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock creates a virtual clock at a fixed base instant.
//
// The base is arbitrary but constant, so durations measured against it
// are reproducible across runs.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current virtual instant.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances virtual time by d and returns immediately.
//
// If ctx is already canceled the clock does not advance and the
// context error is returned, matching the contract of a real
// context-aware sleep.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Advance moves virtual time forward by d.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
