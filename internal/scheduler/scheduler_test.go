package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobrelay/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countingJob(name string, interval time.Duration, calls *atomic.Int32, err error) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(context.Context) error {
			calls.Add(1)
			return err
		},
	}
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler([]Job{countingJob("slow", time.Hour, &calls, nil)}, discardLogger())
	runFor(t, s, 50*time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want exactly the immediate run", got)
	}
}

func TestRun_RepeatsOnInterval(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler([]Job{countingJob("fast", 50*time.Millisecond, &calls, nil)}, discardLogger())
	runFor(t, s, 180*time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Errorf("calls = %d, want >= 2", got)
	}
}

func TestRun_FailingJobDoesNotStopOthers(t *testing.T) {
	var failing, healthy atomic.Int32
	s := NewScheduler([]Job{
		countingJob("failing", 30*time.Millisecond, &failing, errors.New("db locked")),
		countingJob("healthy", 30*time.Millisecond, &healthy, nil),
	}, discardLogger())
	runFor(t, s, 120*time.Millisecond)

	if failing.Load() < 2 {
		t.Errorf("failing job calls = %d, want it retried on the next tick", failing.Load())
	}
	if healthy.Load() < 2 {
		t.Errorf("healthy job calls = %d, want >= 2", healthy.Load())
	}
}

func TestNewScheduler_SkipsDisabledJobs(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler([]Job{
		countingJob("disabled", 0, &calls, nil),
		{Name: "nil", Interval: time.Second},
	}, discardLogger())
	if len(s.jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(s.jobs))
	}
	runFor(t, s, 10*time.Millisecond)
	if calls.Load() != 0 {
		t.Error("disabled job ran")
	}
}

type fakeCleaner struct {
	got store.Retention
	res store.CleanupResult
	err error
}

func (f *fakeCleaner) Cleanup(_ context.Context, r store.Retention) (store.CleanupResult, error) {
	f.got = r
	return f.res, f.err
}

func TestRetentionJob(t *testing.T) {
	r := store.Retention{Notifications: time.Hour, Deliveries: 2 * time.Hour, Opportunities: 3 * time.Hour}
	c := &fakeCleaner{res: store.CleanupResult{Notifications: 1}}
	j := RetentionJob(c, r, time.Minute, discardLogger())

	if j.Interval != time.Minute || j.Name != "retention" {
		t.Errorf("job = %+v", j)
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.got != r {
		t.Errorf("retention = %+v, want %+v", c.got, r)
	}

	c.err = errors.New("disk full")
	if err := j.Run(context.Background()); err == nil {
		t.Error("expected cleanup error")
	}
}
