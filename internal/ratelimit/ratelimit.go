package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrWaitTooLong is returned when a key is held back for longer than the
// limiter's maximum wait.
var ErrWaitTooLong = errors.New("rate limit wait exceeds maximum")

// WaitError reports how long a key is still held back.
type WaitError struct {
	Key       string
	Remaining time.Duration
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("waiting %v for %s: %v", e.Remaining, e.Key, ErrWaitTooLong)
}

func (e *WaitError) Is(target error) bool { return target == ErrWaitTooLong }

// ContactLimiter spaces out sends to the same contact and honours flood-wait
// holds reported by the transport. Different contacts never block each other.
type ContactLimiter struct {
	mu        sync.Mutex
	lastCall  map[string]time.Time // key: normalized contact
	holdUntil map[string]time.Time
	minDelay  time.Duration // between sends to the same contact
	maxWait   time.Duration // longer waits give up instead of blocking
	now       func() time.Time
}

// NewContactLimiter creates a limiter. A zero maxWait means waits are unbounded.
func NewContactLimiter(minDelay, maxWait time.Duration) *ContactLimiter {
	return &ContactLimiter{
		lastCall:  make(map[string]time.Time),
		holdUntil: make(map[string]time.Time),
		minDelay:  minDelay,
		maxWait:   maxWait,
		now:       time.Now,
	}
}

// Hold blocks further sends to key for d, extending any existing hold.
func (r *ContactLimiter) Hold(key string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until := r.now().Add(d)
	if until.After(r.holdUntil[key]) {
		r.holdUntil[key] = until
	}
}

// Wait blocks until a send to key is allowed. It returns ErrWaitTooLong without
// waiting when the required delay exceeds the maximum.
func (r *ContactLimiter) Wait(ctx context.Context, key string) error {
	r.mu.Lock()
	now := r.now()

	ready := now
	if last, ok := r.lastCall[key]; ok && last.Add(r.minDelay).After(ready) {
		ready = last.Add(r.minDelay)
	}
	if hold, ok := r.holdUntil[key]; ok {
		if hold.After(ready) {
			ready = hold
		} else if !hold.After(now) {
			delete(r.holdUntil, key)
		}
	}

	remaining := ready.Sub(now)
	if remaining <= 0 {
		r.lastCall[key] = now
		r.mu.Unlock()
		return nil
	}
	if r.maxWait > 0 && remaining > r.maxWait {
		r.mu.Unlock()
		return &WaitError{Key: key, Remaining: remaining}
	}
	// Reserve the slot so concurrent callers queue behind it.
	r.lastCall[key] = ready
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-time.After(remaining):
	}
	return nil
}

// Forget drops all state for key.
func (r *ContactLimiter) Forget(key string) {
	r.mu.Lock()
	delete(r.lastCall, key)
	delete(r.holdUntil, key)
	r.mu.Unlock()
}
