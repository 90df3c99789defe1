// Copyright 2025 Takhin Data, Inc.

// Package trigger implements a coalescing delayed trigger: repeated calls
// to Trigger within a short window collapse into a single invocation of
// the underlying function, fired no sooner than minDelay and no later
// than maxDelay after the first call in the burst. This is the mechanism
// the partition service master uses to batch "something changed, maybe
// republish the partition table" signals instead of firing once per
// individual membership or migration event.
package trigger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/takhin-data/partitiond/pkg/logger"
)

// Func is the action a Trigger eventually runs.
type Func func()

// Trigger coalesces bursts of calls into a single delayed invocation.
type Trigger struct {
	mu       sync.Mutex
	fn       Func
	minDelay time.Duration
	maxDelay time.Duration
	limiter  *rate.Limiter

	timer       *time.Timer
	firstCallAt time.Time
	pending     bool
	stopped     bool

	logger *logger.Logger
}

// New creates a Trigger that runs fn at most once per coalescing window.
// minDelay is how long to wait after the first call before firing, giving
// later calls in the same burst a chance to coalesce. maxDelay bounds how
// long a call can be delayed regardless of how often Trigger is called
// again in the meantime.
func New(fn Func, minDelay, maxDelay time.Duration) *Trigger {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Trigger{
		fn:       fn,
		minDelay: minDelay,
		maxDelay: maxDelay,
		// A generous cap on fires per second; this only protects against a
		// runaway caller hammering Trigger, coalescing already does the
		// real work of limiting invocation frequency.
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
		logger:  logger.Default().WithComponent("trigger"),
	}
}

// Trigger schedules a firing of the underlying function. If a firing is
// already pending, this call coalesces into it; the timer is reset to
// minDelay from now unless that would push the firing past maxDelay from
// the first call in the burst, in which case the existing deadline wins.
func (t *Trigger) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	now := time.Now()
	if !t.pending {
		t.pending = true
		t.firstCallAt = now
		t.timer = time.AfterFunc(t.minDelay, t.fire)
		return
	}

	deadline := t.firstCallAt.Add(t.maxDelay)
	next := now.Add(t.minDelay)
	if next.After(deadline) {
		next = deadline
	}
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	t.timer.Reset(delay)
}

func (t *Trigger) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	fn := t.fn
	t.mu.Unlock()

	if !t.limiter.Allow() {
		t.logger.Debug("trigger fire rate-limited, will catch up on next call")
		return
	}
	fn()
}

// Stop cancels any pending firing. A stopped Trigger ignores further
// calls to Trigger.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = false
}
