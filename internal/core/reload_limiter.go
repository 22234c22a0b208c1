package core

// reload_limiter.go bounds how many dataset loads run at once.
//
// Each load holds a full copy of the source in memory while it is built, so
// overlapping reloads are capped with a semaphore. When every slot is taken,
// a caller waits up to maxWait before failing with ErrTooManyReloads.
//
// The limiter does not order reloads; callers that overlap still race on
// Registry.Replace and the last one to finish wins.

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrentReloads is the default limit for parallel loads.
const DefaultMaxConcurrentReloads = 2

// DefaultReloadWait is how long to wait for a slot before rejecting.
const DefaultReloadWait = 10 * time.Second

// ReloadLimiter controls concurrent loads using a semaphore.
type ReloadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewReloadLimiter creates a limiter that allows at most maxConcurrent
// simultaneous loads. Non-positive arguments select the defaults.
func NewReloadLimiter(maxConcurrent int, maxWait time.Duration) *ReloadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentReloads
	}
	if maxWait <= 0 {
		maxWait = DefaultReloadWait
	}

	return &ReloadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManyReloads when maxWait
// expires, or ctx's error when ctx ends first.
// The caller MUST call Release when the load completes.
func (l *ReloadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyReloads
	}
}

// TryAcquire takes a slot without blocking.
func (l *ReloadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ReloadLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of loads holding a slot.
func (l *ReloadLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *ReloadLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no load holds a slot or ctx ends.
// Used during shutdown so an in-flight reload can finish.
func (l *ReloadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ReloadLimiterStatus is a snapshot of the limiter.
type ReloadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ReloadLimiter) Status() ReloadLimiterStatus {
	return ReloadLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
