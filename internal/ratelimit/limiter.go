// Package ratelimit provides the sliding-window budget that gates outbound
// metrics reads. The platform allows 25 reads per 15 minutes; the default
// budget keeps a margin below that.
//
// State is process-local and resets on restart. Each process gets its own
// budget.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults applied when a Limiter is built with zero values.
const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 20
)

// Status is a read-only view of the limiter.
type Status struct {
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
	Max       int           `json:"max"`
	Window    time.Duration `json:"window"`
	ResetsAt  time.Time     `json:"resets_at"`
}

// Limiter tracks request timestamps inside a trailing window.
// It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	stamps []time.Time // ascending
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter allowing maxRequests per window.
// Non-positive arguments fall back to the defaults.
func New(window time.Duration, maxRequests int, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	l := &Limiter{window: window, max: maxRequests, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// evict drops timestamps older than now-window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// CanMakeRequest reports whether fewer than max requests fall inside the
// window. It does not consume budget.
func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps) < l.max
}

// RecordRequest charges one request at the current time. Call it only after
// an external call was actually issued.
func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evict(now)
	l.stamps = append(l.stamps, now)
}

// RequestsRemaining returns the unused budget in the current window.
func (l *Limiter) RequestsRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return max(0, l.max-len(l.stamps))
}

// Status returns usage figures. ResetsAt is when the oldest recorded request
// leaves the window, or now when nothing is recorded.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evict(now)
	s := Status{
		Used:      len(l.stamps),
		Remaining: max(0, l.max-len(l.stamps)),
		Max:       l.max,
		Window:    l.window,
		ResetsAt:  now,
	}
	if len(l.stamps) > 0 {
		s.ResetsAt = l.stamps[0].Add(l.window)
	}
	return s
}
