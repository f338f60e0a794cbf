package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when a notification has already left pending.
	ErrAlreadyResolved = errors.New("notification already resolved")
	// ErrInvalidStatus is returned for a transition to a non-terminal status.
	ErrInvalidStatus = errors.New("invalid notification status")
	// ErrPartialDelivery marks a send that reached the contact with its first
	// message but failed on a later one.
	ErrPartialDelivery = errors.New("partial delivery")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter parses a Retry-After header value in seconds. Returns zero if
// absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// SendErrorKind classifies transport failures.
type SendErrorKind int

const (
	KindUnknown     SendErrorKind = iota // log, do not retry
	KindRateLimited                      // retry after RetryAfter
	KindTransient                        // network trouble, retry with backoff
	KindPermanent                        // blocked, privacy-restricted or invalid recipient
)

func (k SendErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// SendError is returned by transports so the coordinator can decide whether to retry.
type SendError struct {
	Kind       SendErrorKind
	RetryAfter time.Duration // set for KindRateLimited
	Err        error
}

func (e *SendError) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("%s (retry after %s): %v", e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// SendErrorKindOf returns the kind of err, KindUnknown when err is not a SendError.
func SendErrorKindOf(err error) SendErrorKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
