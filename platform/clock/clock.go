// Package clock provides an injectable time source so the daemon loop and
// interval logic can be tested without real sleeps.
// This is part of the platform layer and contains no business logic.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts the time functions the engine depends on.
type Clock interface {
	Now() time.Time
	// After returns a channel that fires once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real is the production clock backed by the time package.
type Real struct{}

// New returns the production clock.
func New() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually advanced clock for tests. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, waiter{at: f.current.Add(d), ch: ch})
	return ch
}

// Advance moves the fake clock forward, firing any waiters that come due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.at.After(f.current) {
			w.ch <- f.current
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
}
