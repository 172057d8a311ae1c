// Package hostlimit bounds concurrent outbound requests per hostname.
//
// This is admission control, not rate limiting: up to maxPerHost calls may
// be in flight against one host at a time, with callers to distinct hosts
// running fully in parallel.
package hostlimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter manages a weighted semaphore per hostname.
type Limiter struct {
	mu         sync.Mutex
	hosts      map[string]*semaphore.Weighted
	maxPerHost int64
}

// New creates a Limiter admitting maxPerHost concurrent calls per host.
func New(maxPerHost int) *Limiter {
	if maxPerHost <= 0 {
		maxPerHost = 1
	}
	return &Limiter{
		hosts:      make(map[string]*semaphore.Weighted),
		maxPerHost: int64(maxPerHost),
	}
}

func (l *Limiter) hostSem(rawURL string) *semaphore.Weighted {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(l.maxPerHost)
		l.hosts[host] = sem
	}
	return sem
}

// Acquire blocks until the host of rawURL has capacity or ctx finishes.
// Waiters are admitted in FIFO order.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	if err := l.hostSem(rawURL).Acquire(ctx, 1); err != nil {
		return fmt.Errorf("host admission: %w", err)
	}
	return nil
}

// Release frees one slot for the host of rawURL. It must pair an Acquire.
func (l *Limiter) Release(rawURL string) {
	l.hostSem(rawURL).Release(1)
}

// Do runs fn while holding an admission slot for the host of rawURL.
func (l *Limiter) Do(ctx context.Context, rawURL string, fn func() error) error {
	if err := l.Acquire(ctx, rawURL); err != nil {
		return err
	}
	defer l.Release(rawURL)
	return fn()
}
