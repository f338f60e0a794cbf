package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobrelay/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scripted returns the errors in order, then nil.
func scripted(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	var calls int
	r := New(2, 10*time.Millisecond, time.Second, discardLogger())
	if err := r.Do(context.Background(), "send", scripted(&calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int
	r := New(2, 10*time.Millisecond, time.Second, discardLogger())
	err := r.Do(context.Background(), "send", scripted(&calls,
		&model.SendError{Kind: model.KindTransient, Err: errors.New("connection reset")},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_DoesNotRetryPermanentOrUnknown(t *testing.T) {
	for _, kind := range []model.SendErrorKind{model.KindPermanent, model.KindUnknown} {
		t.Run(kind.String(), func(t *testing.T) {
			var calls int
			sendErr := &model.SendError{Kind: kind, Err: errors.New("nope")}
			r := New(3, 10*time.Millisecond, time.Second, discardLogger())

			err := r.Do(context.Background(), "send", scripted(&calls, sendErr))
			if !errors.Is(err, sendErr) {
				t.Fatalf("err = %v, want the original SendError", err)
			}
			if calls != 1 {
				t.Fatalf("expected 1 call, got %d", calls)
			}
		})
	}
}

func TestDo_RateLimitedWaitsRetryAfter(t *testing.T) {
	var calls int
	r := New(2, time.Hour, time.Second, discardLogger())

	start := time.Now()
	err := r.Do(context.Background(), "send", scripted(&calls,
		&model.SendError{Kind: model.KindRateLimited, RetryAfter: 50 * time.Millisecond, Err: errors.New("flood")},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("expected ~50ms wait (RetryAfter, not base delay), got %v", elapsed)
	}
}

func TestDo_RateLimitedBeyondMaxDelayGivesUp(t *testing.T) {
	var calls int
	r := New(5, 10*time.Millisecond, 100*time.Millisecond, discardLogger())

	start := time.Now()
	err := r.Do(context.Background(), "send", scripted(&calls,
		&model.SendError{Kind: model.KindRateLimited, RetryAfter: time.Hour, Err: errors.New("flood")},
	))
	if model.SendErrorKindOf(err) != model.KindRateLimited {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("should not have waited")
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	boom := &model.HTTPError{StatusCode: 503, Err: errors.New("unavailable")}
	r := New(2, time.Millisecond, time.Second, discardLogger())

	err := r.Do(context.Background(), "fetch", scripted(&calls, boom, boom, boom, boom))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDo_DoesNotRetryOn4xx(t *testing.T) {
	var calls int
	r := New(2, time.Millisecond, time.Second, discardLogger())
	err := r.Do(context.Background(), "fetch", scripted(&calls, &model.HTTPError{StatusCode: 404}))
	if err == nil || calls != 1 {
		t.Fatalf("err = %v calls = %d, want error after 1 call", err, calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	var calls int
	r := New(2, 5*time.Second, 10*time.Second, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, "send", scripted(&calls, errors.New("dial tcp: i/o timeout")))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	r := New(3, 100*time.Millisecond, time.Second, discardLogger())
	for i := 0; i < 50; i++ {
		d := r.backoffDelay(2, errors.New("x"))
		if d < 140*time.Millisecond || d > 260*time.Millisecond {
			t.Fatalf("attempt 2 delay %v outside 200ms ±30%%", d)
		}
	}
}

type flakyClassifier struct{ calls int }

func (f *flakyClassifier) Classify(_ context.Context, _ string) (model.Verdict, error) {
	f.calls++
	if f.calls == 1 {
		return model.Verdict{}, &model.HTTPError{StatusCode: 502}
	}
	return model.Verdict{Label: 1, Score: 0.8}, nil
}

func TestClassifier_RetriesThenReturnsVerdict(t *testing.T) {
	inner := &flakyClassifier{}
	c := NewClassifier(inner, New(2, time.Millisecond, time.Second, discardLogger()))

	v, err := c.Classify(context.Background(), "hiring")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Score != 0.8 || inner.calls != 2 {
		t.Errorf("verdict = %+v calls = %d", v, inner.calls)
	}
}
