package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobrelay/internal/model"
)

// Retrier retries transient failures with exponential backoff and jitter.
// Rate-limit errors wait for the transport's requested duration instead.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration // rate-limit waits above this give up
	logger     *slog.Logger
}

// New returns a Retrier.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
// maxDelay caps every wait; a transport asking for longer is not retried.
func New(maxRetries int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Retrier {
	return &Retrier{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retries
// run out. The last error is returned unchanged so callers can inspect it.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !isRetryable(err) {
		return err
	}

	lastErr := err
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		delay := r.backoffDelay(attempt, lastErr)
		if r.maxDelay > 0 && delay > r.maxDelay {
			r.logger.Warn("giving up, requested wait too long",
				"op", op,
				"delay", delay,
				"max_delay", r.maxDelay,
				"error", lastErr,
			)
			return lastErr
		}

		r.logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A wait requested by the remote side takes precedence.
func (r *Retrier) backoffDelay(attempt int, err error) time.Duration {
	if wait := RetryAfter(err); wait > 0 {
		return wait
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	if r.maxDelay > 0 && delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// RetryAfter returns the wait requested by a rate-limit or HTTP error, or zero.
func RetryAfter(err error) time.Duration {
	var sendErr *model.SendError
	if errors.As(err, &sendErr) && sendErr.Kind == model.KindRateLimited {
		return sendErr.RetryAfter
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sendErr *model.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind == model.KindRateLimited || sendErr.Kind == model.KindTransient
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Untyped errors (network, DNS, etc.) are retryable.
	return true
}

// Classifier is a decorator that retries transient classifier failures.
type Classifier struct {
	inner   model.Classifier
	retrier *Retrier
}

// NewClassifier wraps a Classifier with retry logic.
func NewClassifier(inner model.Classifier, retrier *Retrier) *Classifier {
	return &Classifier{inner: inner, retrier: retrier}
}

// Classify delegates to the wrapped classifier, retrying transient errors.
func (c *Classifier) Classify(ctx context.Context, text string) (model.Verdict, error) {
	var verdict model.Verdict
	err := c.retrier.Do(ctx, "classify", func(ctx context.Context) error {
		v, err := c.inner.Classify(ctx, text)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	return verdict, err
}
