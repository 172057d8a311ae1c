package hostlimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSameHostNeverOverlaps(t *testing.T) {
	t.Parallel()

	l := New(1)
	ctx := context.Background()

	var inFlight, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(ctx, "https://example.com/page", func() error {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxSeen); got != 1 {
		t.Fatalf("max concurrent in-flight for one host = %d, want 1", got)
	}
}

func TestDistinctHostsRunInParallel(t *testing.T) {
	t.Parallel()

	l := New(1)
	ctx := context.Background()

	release := make(chan struct{})
	firstEntered := make(chan struct{})
	secondEntered := make(chan struct{})

	go func() {
		_ = l.Do(ctx, "https://a.example", func() error {
			close(firstEntered)
			<-release
			return nil
		})
	}()
	go func() {
		<-firstEntered
		_ = l.Do(ctx, "https://b.example", func() error {
			close(secondEntered)
			<-release
			return nil
		})
	}()

	select {
	case <-secondEntered:
		// b.example was admitted while a.example still held its slot.
	case <-time.After(2 * time.Second):
		t.Fatal("second host blocked behind first host's slot")
	}
	close(release)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(1)
	if err := l.Acquire(context.Background(), "https://busy.example"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer l.Release("https://busy.example")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "https://busy.example"); err == nil {
		t.Fatal("expected context deadline to abort acquire")
	}
}

func TestUnparsableURLSharesFallbackHost(t *testing.T) {
	t.Parallel()

	l := New(1)
	ctx := context.Background()
	if err := l.Acquire(ctx, "::not a url::"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.Release("::not a url::")
}
