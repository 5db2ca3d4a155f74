package concurrent

import (
	"context"
	"testing"

	"go.uber.org/goleak"
)

func TestScheduler_ExecutesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	scheduler := NewScheduler()
	defer scheduler.Stop()

	next := 0
	jobCreator := func(i int) Job {
		return func(ctx context.Context) {
			if next != i {
				t.Fatalf("job#%d: got %d, want %d", i, next, i)
			}
			next = i + 1
		}
	}

	var jobs []Job
	for i := 0; i < 100; i++ {
		jobs = append(jobs, jobCreator(i))
	}

	for _, j := range jobs {
		scheduler.Schedule(j)
	}

	scheduler.Wait(100)
	if scheduler.Pending() != 0 {
		t.Errorf("scheduled = %d, want 0", scheduler.Pending())
	}
}

func TestScheduler_DrainsPendingOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	scheduler := NewScheduler()

	executed := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		scheduler.Schedule(func(ctx context.Context) {
			executed <- struct{}{}
		})
	}

	scheduler.Stop()
	if len(executed) != 10 {
		t.Fatalf("executed %d jobs, want 10", len(executed))
	}
}

func TestScheduler_ScheduleAfterStopIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)
	scheduler := NewScheduler()
	scheduler.Stop()

	scheduler.Schedule(func(ctx context.Context) {
		t.Errorf("job scheduled after stop must not run")
	})
	if scheduler.Pending() != 0 {
		t.Fatalf("dropped job still pending")
	}

	// A second stop is a no-op.
	scheduler.Stop()
}
