package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoller_FiresPeriodically(t *testing.T) {
	poller := NewPoller(context.Background(), noopLogger{})
	defer poller.Stop()

	var fired int32
	poller.Start("counting", 5*time.Millisecond, 10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) >= 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cycle fired %d times, want at least 3", atomic.LoadInt32(&fired))
}

func TestPoller_StopPreventsFurtherRuns(t *testing.T) {
	poller := NewPoller(context.Background(), noopLogger{})

	var fired int32
	poller.Start("single", time.Millisecond, 5*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	poller.Stop()

	settled := atomic.LoadInt32(&fired)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got > settled+1 {
		t.Fatalf("cycle kept running after stop, %d runs past %d", got, settled)
	}

	// Starting on a stopped poller is ignored.
	poller.Start("late", time.Millisecond, time.Millisecond, func() {
		atomic.AddInt32(&fired, 100)
	})
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&fired) >= 100 {
		t.Fatalf("stopped poller launched a new cycle")
	}
}
