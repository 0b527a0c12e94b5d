// Package ratelimit provides sliding-window admission control for outbound
// API calls. The window is a trailing interval, not fixed buckets: a request
// is admitted as soon as fewer than max requests fall inside the last W.
package ratelimit

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of the limiter, computed after pruning
// expired entries.
type Stats struct {
	RequestsInWindow int
	MaxRequests      int
	Window           time.Duration
	Remaining        int
}

// Limiter admits at most maxRequests calls in any trailing window.
// Acquire never fails; it sleeps until admission is possible.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    []time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source and sleep function. Used in tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a Limiter allowing maxRequests per trailing window.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until one request is permitted, then records its timestamp.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.requests) >= l.maxRequests {
		oldest := l.requests[0]
		wait := oldest.Add(l.window).Sub(now)
		if wait > 0 {
			l.sleep(wait)
			// Time has advanced while sleeping; prune again so the
			// recorded window reflects the wake-up instant.
			now = l.now()
			l.prune(now)
		}
	}

	l.requests = append(l.requests, now)
}

// Stats returns current limiter statistics after pruning expired entries.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	remaining := l.maxRequests - len(l.requests)
	if remaining < 0 {
		remaining = 0
	}
	return Stats{
		RequestsInWindow: len(l.requests),
		MaxRequests:      l.maxRequests,
		Window:           l.window,
		Remaining:        remaining,
	}
}

// prune drops timestamps that fell out of the trailing window.
// Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.requests = append(l.requests[:0], l.requests[i:]...)
	}
}
