// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func baseTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestFakeNowAdvance(t *testing.T) {
	c := Fake(baseTime())
	if got := c.Now(); !got.Equal(baseTime()) {
		t.Fatalf("Now() = %v, want %v", got, baseTime())
	}
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(baseTime().Add(90 * time.Second)) {
		t.Fatalf("Now() after advance = %v", got)
	}
}

func TestAfterFiresAtDeadline(t *testing.T) {
	c := Fake(baseTime())
	ch := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(baseTime().Add(10 * time.Second)) {
			t.Fatalf("fire time = %v", fired)
		}
	default:
		t.Fatal("did not fire at deadline")
	}
}

func TestAfterFuncStop(t *testing.T) {
	c := Fake(baseTime())
	var calls atomic.Int32
	timer := c.AfterFunc(5*time.Second, func() { calls.Add(1) })

	if !timer.Stop() {
		t.Fatal("Stop() = false for pending timer")
	}
	c.Advance(10 * time.Second)
	if calls.Load() != 0 {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("Stop() = true for already-stopped timer")
	}
}

func TestAfterFuncFiresOnce(t *testing.T) {
	c := Fake(baseTime())
	var calls atomic.Int32
	c.AfterFunc(5*time.Second, func() { calls.Add(1) })

	c.Advance(5 * time.Second)
	c.Advance(5 * time.Second)
	if got := calls.Load(); got != 1 {
		t.Fatalf("callback ran %d times, want 1", got)
	}
}

func TestTickerRepeatsAndStops(t *testing.T) {
	c := Fake(baseTime())
	ticker := c.NewTicker(10 * time.Second)

	for i := 0; i < 3; i++ {
		c.Advance(10 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("tick after Stop")
	default:
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(baseTime())
	go func() {
		<-c.After(time.Second)
	}()
	c.WaitForTimers(1)
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d", c.PendingCount())
	}
	c.Advance(time.Second)
}
