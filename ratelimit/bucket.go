// Package ratelimit implements the token bucket that paces mutations
// against the Trellis API write limit.
//
// The bucket refills continuously rather than on a timer tick: every
// observation applies the credit accrued since the previous one, so
// fractional tokens exist and wait estimates are exact. A single bucket
// is typically shared by every queue talking to the same account, since
// the service enforces its limit per token, not per connection.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a continuously refilling token bucket. One token buys one
// mutation request. The zero value is not usable; construct with [New].
//
// All methods are safe for concurrent use.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
}

// New returns a full Bucket that refills at ratePerSecond up to capacity.
// Rates below or equal to zero and capacities below one are clamped to one.
func New(ratePerSecond, capacity float64) *Bucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if capacity < 1 {
		capacity = 1
	}

	return &Bucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		last:     time.Now(),
	}
}

// refillLocked credits tokens accrued since the last observation and
// advances the clock. Callers must hold mu.
func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed < 0 {
		// Clock went backwards; skip the credit rather than debit.
		b.last = now
		return
	}

	b.tokens = min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
	b.last = now
}

// TryAcquire takes one token if available and reports whether it did.
// It never blocks.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens < 1 {
		return false
	}

	b.tokens--

	return true
}

// Acquire blocks until a token is taken or ctx is done. The wait is
// computed from the current deficit, so callers sleep exactly as long
// as the refill needs instead of polling.
func (b *Bucket) Acquire(ctx context.Context) error {
	// Match x/time/rate: a context that is already done never grants.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for {
		b.mu.Lock()
		b.refillLocked(time.Now())
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()

			return nil
		}
		wait := b.waitLocked()
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		}
	}
}

// Available returns the current token count, including the fractional
// part accrued since the last whole token.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())

	return b.tokens
}

// WaitTime returns how long until the next token would be available,
// without taking one. It returns zero when a token is ready now.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= 1 {
		return 0
	}

	return b.waitLocked()
}

// waitLocked returns the refill time for the current deficit.
// Callers must hold mu with tokens < 1.
func (b *Bucket) waitLocked() time.Duration {
	deficit := 1 - b.tokens

	return time.Duration(deficit / b.rate * float64(time.Second))
}
