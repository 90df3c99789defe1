// Copyright 2025 Takhin Data, Inc.

package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerCoalescesBurst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive test in short mode")
	}

	var fires atomic.Int32
	tr := New(func() { fires.Add(1) }, 30*time.Millisecond, 200*time.Millisecond)
	defer tr.Stop()

	for i := 0; i < 10; i++ {
		tr.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load(), "burst of triggers should coalesce into one fire")
}

func TestTriggerRespectsMaxDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive test in short mode")
	}

	var fires atomic.Int32
	tr := New(func() { fires.Add(1) }, 50*time.Millisecond, 120*time.Millisecond)
	defer tr.Stop()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && fires.Load() == 0 {
		tr.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, int32(1), fires.Load(), "trigger should fire within maxDelay despite continued calls")
}

func TestTriggerStopPreventsFurtherFires(t *testing.T) {
	var fires atomic.Int32
	tr := New(func() { fires.Add(1) }, 10*time.Millisecond, 20*time.Millisecond)

	tr.Trigger()
	tr.Stop()
	time.Sleep(50 * time.Millisecond)

	tr.Trigger()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), fires.Load(), "stopped trigger must not fire")
}
