package remote

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff manages exponential backoff for the remote endpoint.
type Backoff struct {
	mu        sync.Mutex
	baseDelay time.Duration
	maxDelay  time.Duration

	failureCount int
	nextAllowed  time.Time
}

// NewBackoff creates a backoff manager.
func NewBackoff(baseDelay, maxDelay time.Duration) *Backoff {
	return &Backoff{baseDelay: baseDelay, maxDelay: maxDelay}
}

// Delay returns how long the caller must still wait before the next
// attempt, zero when the endpoint is open.
func (b *Backoff) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if wait := time.Until(b.nextAllowed); wait > 0 {
		return wait
	}
	return 0
}

// RecordFailure pushes the next allowed attempt further out.
func (b *Backoff) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.nextAllowed = time.Now().Add(b.calculateDelay(b.failureCount))
}

// RecordSuccess decreases the backoff delay (gradual recovery).
func (b *Backoff) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount > 0 {
		b.failureCount--
	}
	if b.failureCount == 0 {
		b.nextAllowed = time.Time{}
	}
}

// calculateDelay returns exponential delay with jitter.
func (b *Backoff) calculateDelay(failures int) time.Duration {
	// Exponential: baseDelay * 2^(failures-1)
	multiplier := math.Pow(2, float64(failures-1))
	delay := time.Duration(float64(b.baseDelay) * multiplier)

	if delay > b.maxDelay {
		delay = b.maxDelay
	}

	// Add 10% jitter
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}
