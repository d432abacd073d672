package location

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Feed is a Provider fed by a client that reports its own position, like a
// browser posting geolocation readings.
type Feed struct {
	mu       sync.Mutex
	maxAge   time.Duration
	now      func() time.Time
	latest   *Fix
	waiters  []chan Fix
	watchers map[int]func(Fix)
	nextID   int
}

// NewFeed returns a Feed whose Current answers immediately with a pushed fix no
// older than maxAge.
func NewFeed(maxAge time.Duration) *Feed {
	return &Feed{
		maxAge:   maxAge,
		now:      time.Now,
		watchers: make(map[int]func(Fix)),
	}
}

// Push records a new reading and wakes everyone waiting for one.
func (f *Feed) Push(fix Fix) {
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = f.now()
	}

	f.mu.Lock()
	stored := fix
	f.latest = &stored
	waiters := f.waiters
	f.waiters = nil
	watchers := make([]func(Fix), 0, len(f.watchers))
	for _, w := range f.watchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- fix
	}
	for _, w := range watchers {
		w(fix)
	}
}

// Current returns a fresh enough reading or waits for the next push.
func (f *Feed) Current(ctx context.Context) (Fix, error) {
	f.mu.Lock()
	if f.latest != nil && f.now().Sub(f.latest.CapturedAt) <= f.maxAge {
		fix := *f.latest
		f.mu.Unlock()
		return fix, nil
	}
	ch := make(chan Fix, 1)
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	select {
	case fix := <-ch:
		return fix, nil
	case <-ctx.Done():
		f.dropWaiter(ch)
		return Fix{}, fmt.Errorf("waiting for position: %v: %w", ctx.Err(), ErrUnavailable)
	}
}

func (f *Feed) Watch(onFix func(Fix)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = onFix
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

// Forget drops the latest reading. Waiters keep waiting for the next push.
func (f *Feed) Forget() {
	f.mu.Lock()
	f.latest = nil
	f.mu.Unlock()
}

// Watchers returns the number of live subscriptions.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

func (f *Feed) dropWaiter(ch chan Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, waiter := range f.waiters {
		if waiter == ch {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}
