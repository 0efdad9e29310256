package upload

// limiter.go bounds concurrent upload request processing.
//
// A Limiter hands out tokens from a fixed pool; an upload holds one token
// while it runs. When the pool is empty, Acquire waits up to maxWait for a
// token before failing with ErrTooManyUploads. WaitForDrain supports
// graceful shutdown by blocking until in-flight uploads return their
// tokens.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyUploads is returned when no slot frees up within the wait
// window. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	// DefaultMaxConcurrent caps parallel upload requests when no explicit
	// limit is configured.
	DefaultMaxConcurrent = 5

	// DefaultMaxWait is how long Acquire waits for a slot before rejecting.
	DefaultMaxWait = 30 * time.Second

	// drainPollInterval is how often WaitForDrain re-checks the active count.
	drainPollInterval = 50 * time.Millisecond
)

// Limiter bounds how many uploads run at once. The zero value is unusable;
// construct with NewLimiter.
type Limiter struct {
	tokens  chan struct{} // filled to capacity at construction
	maxWait time.Duration
}

// NewLimiter allows at most maxConcurrent simultaneous uploads. Requests
// that cannot get a slot within maxWait receive ErrTooManyUploads.
// Non-positive arguments fall back to the defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	tokens := make(chan struct{}, maxConcurrent)
	for range maxConcurrent {
		tokens <- struct{}{}
	}
	return &Limiter{tokens: tokens, maxWait: maxWait}
}

// Acquire takes an upload slot, waiting up to the configured maximum. The
// caller must Release the slot when the upload completes (use defer).
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case <-l.tokens:
		return nil
	default:
	}

	wait := time.NewTimer(l.maxWait)
	defer wait.Stop()

	select {
	case <-l.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wait.C:
		return ErrTooManyUploads
	}
}

// Release returns the slot taken by a successful Acquire. Must be called
// exactly once per slot.
func (l *Limiter) Release() {
	l.tokens <- struct{}{}
}

// ActiveCount reports how many uploads currently hold a slot.
func (l *Limiter) ActiveCount() int {
	return cap(l.tokens) - len(l.tokens)
}

// Available reports how many slots are free.
func (l *Limiter) Available() int {
	return len(l.tokens)
}

// MaxConcurrent reports the slot capacity.
func (l *Limiter) MaxConcurrent() int {
	return cap(l.tokens)
}

// WaitForDrain blocks until every active upload completes or ctx is
// cancelled. The count is checked before the first poll interval, so a
// drained limiter returns immediately.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	tick := time.NewTicker(drainPollInterval)
	defer tick.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// LimiterStatus is a point-in-time snapshot of slot usage.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports current slot usage for the status endpoint.
func (l *Limiter) Status() LimiterStatus {
	free := len(l.tokens)
	return LimiterStatus{
		Active:        cap(l.tokens) - free,
		Available:     free,
		MaxConcurrent: cap(l.tokens),
	}
}
