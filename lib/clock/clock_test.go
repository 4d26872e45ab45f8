// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	clk := Fake(epoch)
	if got := clk.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clk.Advance(90 * time.Second)
	if got, want := clk.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfter(t *testing.T) {
	clk := Fake(epoch)
	channel := clk.After(time.Second)

	clk.Advance(999 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clk.Advance(time.Millisecond)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if count := clk.PendingCount(); count != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", count)
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	clk := Fake(epoch)
	select {
	case <-clk.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	clk := Fake(epoch)
	ticker := clk.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clk.Advance(5 * time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	clk := Fake(epoch)
	ticker := clk.NewTicker(time.Minute)
	defer ticker.Stop()

	clk.Advance(10 * time.Minute)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	clk := Fake(epoch)
	ticker := clk.NewTicker(time.Minute)
	ticker.Stop()

	clk.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	if count := clk.PendingCount(); count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestWaitForTimers(t *testing.T) {
	clk := Fake(epoch)
	fired := make(chan struct{})
	go func() {
		<-clk.After(time.Second)
		close(fired)
	}()

	clk.WaitForTimers(1)
	clk.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine never observed the timer")
	}
}

func TestRealClock(t *testing.T) {
	clk := Real()
	before := time.Now()
	if clk.Now().Before(before) {
		t.Fatal("Real().Now() went backwards")
	}
	ticker := clk.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(5 * time.Second):
		t.Fatal("real ticker never fired")
	}
}
