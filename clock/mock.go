package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a manually advanced Clock. Callbacks only run inside Add or Set, on the
// caller's goroutine, so tests stay deterministic.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*mockTimer
}

// NewMock returns a Mock clock starting at start.
func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	return m.schedule(d, 0, f)
}

func (m *Mock) Every(d time.Duration, f func()) Timer {
	return m.schedule(d, d, f)
}

// Add advances the clock by d, running every callback that falls due on the way
// in deadline order.
func (m *Mock) Add(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	m.advanceTo(target)
}

// Set advances the clock to t. Moving backwards is ignored.
func (m *Mock) Set(t time.Time) {
	m.advanceTo(t)
}

// Pending returns the number of timers that can still fire.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Mock) schedule(d, period time.Duration, f func()) *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &mockTimer{clock: m, due: m.now.Add(d), period: period, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *Mock) advanceTo(target time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			if target.After(m.now) {
				m.now = target
			}
			m.mu.Unlock()
			return
		}

		if next.due.After(m.now) {
			m.now = next.due
		}
		if next.period > 0 {
			next.due = next.due.Add(next.period)
			m.seq++
			next.seq = m.seq
		} else {
			m.removeLocked(next)
		}
		f := next.f
		m.mu.Unlock()

		f()
	}
}

func (m *Mock) nextDueLocked(target time.Time) *mockTimer {
	if len(m.timers) == 0 {
		return nil
	}

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})

	if m.timers[0].due.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *Mock) removeLocked(t *mockTimer) bool {
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

type mockTimer struct {
	clock  *Mock
	due    time.Time
	period time.Duration
	seq    uint64
	f      func()
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeLocked(t)
}
