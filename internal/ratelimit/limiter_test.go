package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock advances time only via sleep calls.
type fakeClock struct {
	slept   time.Duration
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) sleep(d time.Duration) {
	c.slept += d
	c.current = c.current.Add(d)
}

func TestLimiter_UnderLimitDoesNotBlock(t *testing.T) {
	clock := newFakeClock()
	l := New(5, time.Minute, WithClock(clock.now, clock.sleep))

	for i := 0; i < 5; i++ {
		l.Acquire()
	}

	if clock.slept != 0 {
		t.Errorf("Expected no sleep under the limit, slept %v", clock.slept)
	}

	stats := l.Stats()
	if stats.RequestsInWindow != 5 {
		t.Errorf("Expected 5 requests in window, got %d", stats.RequestsInWindow)
	}
	if stats.Remaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", stats.Remaining)
	}
}

func TestLimiter_BlocksUntilWindowFrees(t *testing.T) {
	window := 60 * time.Second
	clock := newFakeClock()
	l := New(3, window, WithClock(clock.now, clock.sleep))

	start := clock.current
	for i := 0; i < 4; i++ {
		l.Acquire()
	}

	// The 4th acquire must wait for the first stamp to leave the window.
	elapsed := clock.current.Sub(start)
	if elapsed < window {
		t.Errorf("N+1 requests within window took %v, want >= %v", elapsed, window)
	}

	stats := l.Stats()
	if stats.RequestsInWindow > 3 {
		t.Errorf("Window holds %d requests, max is 3", stats.RequestsInWindow)
	}
}

func TestLimiter_PrunesAfterSleep(t *testing.T) {
	clock := newFakeClock()
	l := New(1, 10*time.Second, WithClock(clock.now, clock.sleep))

	l.Acquire()
	l.Acquire() // sleeps 10s, first stamp expires during the wait

	stats := l.Stats()
	if stats.RequestsInWindow != 1 {
		t.Errorf("Expected 1 request in window after pruning, got %d", stats.RequestsInWindow)
	}
}

func TestLimiter_StatsPrunesExpired(t *testing.T) {
	clock := newFakeClock()
	l := New(10, 5*time.Second, WithClock(clock.now, clock.sleep))

	l.Acquire()
	l.Acquire()
	clock.current = clock.current.Add(6 * time.Second)

	stats := l.Stats()
	if stats.RequestsInWindow != 0 {
		t.Errorf("Expected empty window after expiry, got %d", stats.RequestsInWindow)
	}
	if stats.Remaining != 10 {
		t.Errorf("Expected 10 remaining, got %d", stats.Remaining)
	}
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	l := New(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
		}()
	}
	wg.Wait()

	stats := l.Stats()
	if stats.RequestsInWindow != 50 {
		t.Errorf("Expected 50 requests recorded, got %d", stats.RequestsInWindow)
	}
}
