// Package search implements the search-engine website fallbacks.
package search

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate serializes search calls process-wide: one token bucket shared by
// every worker, plus random jitter so call spacing is not perfectly regular,
// plus a shared backoff window set when a block page is detected.
type RateGate struct {
	limiter *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time

	jitterMax time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRateGate builds a gate enforcing at most perSecond calls per second.
func NewRateGate(perSecond float64) *RateGate {
	if perSecond <= 0 {
		perSecond = 0.5
	}
	return &RateGate{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		jitterMax: 400 * time.Millisecond,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until the next search call is allowed.
func (g *RateGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	wait := time.Until(g.blockedUntil)
	g.mu.Unlock()
	if wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("backoff wait: %w", err)
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("search rate wait: %w", err)
	}
	if g.jitterMax > 0 {
		jitter := time.Duration(rand.Int63n(int64(g.jitterMax)))
		if err := g.sleep(ctx, jitter); err != nil {
			return fmt.Errorf("jitter wait: %w", err)
		}
	}
	return nil
}

// Backoff pauses all searchers for d from now.
func (g *RateGate) Backoff(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(g.blockedUntil) {
		g.blockedUntil = until
	}
}

// Budget is a shared per-run counter of paid search calls.
type Budget struct {
	mu        sync.Mutex
	remaining int
}

// NewBudget creates a Budget with n calls available.
func NewBudget(n int) *Budget {
	return &Budget{remaining: n}
}

// Take consumes one call if any remain, reporting whether it did.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining reports the calls left.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
