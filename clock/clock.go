// Package clock abstracts wall-clock scheduling so timing logic can run against a
// manual clock in tests.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Daskott/walkwithme/server/logger"
	"github.com/go-co-op/gocron"
)

// Clock schedules delayed and periodic callbacks.
type Clock interface {
	Now() time.Time

	// AfterFunc runs f once, after d.
	AfterFunc(d time.Duration, f func()) Timer

	// Every runs f every d, starting d from now.
	Every(d time.Duration, f func()) Timer
}

// Timer cancels a scheduled callback.
type Timer interface {
	// Stop prevents any future run of the callback. It reports whether a
	// run was actually prevented.
	Stop() bool
}

// CronClock is a Clock backed by a gocron scheduler.
type CronClock struct {
	// gocron builds jobs through a chain on the scheduler, so chains must not interleave
	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCronClock wraps scheduler, starting it if it isn't running yet.
func NewCronClock(scheduler *gocron.Scheduler) *CronClock {
	if !scheduler.IsRunning() {
		scheduler.StartAsync()
	}
	return &CronClock{scheduler: scheduler}
}

func (c *CronClock) Now() time.Time {
	return time.Now()
}

func (c *CronClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &cronTimer{scheduler: c.scheduler}
	run := func() {
		if t.done.CompareAndSwap(false, true) {
			f()
		}
	}

	if d <= 0 {
		go run()
		return t
	}

	c.mu.Lock()
	job, err := c.scheduler.Every(d).WaitForSchedule().LimitRunsTo(1).Do(run)
	c.mu.Unlock()
	if err != nil {
		logger.Shared().Errorf("clock: scheduling one-shot job: %v, falling back to time.AfterFunc", err)
		t.fallback = time.AfterFunc(d, run)
		return t
	}

	t.job = job
	return t
}

func (c *CronClock) Every(d time.Duration, f func()) Timer {
	t := &cronTimer{scheduler: c.scheduler}
	run := func() {
		if !t.done.Load() {
			f()
		}
	}

	c.mu.Lock()
	job, err := c.scheduler.Every(d).WaitForSchedule().Do(run)
	c.mu.Unlock()
	if err != nil {
		logger.Shared().Errorf("clock: scheduling periodic job: %v", err)
		t.done.Store(true)
		return t
	}

	t.job = job
	return t
}

type cronTimer struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	fallback  *time.Timer
	done      atomic.Bool
}

func (t *cronTimer) Stop() bool {
	prevented := t.done.CompareAndSwap(false, true)

	if t.job != nil {
		t.scheduler.RemoveByReference(t.job)
	}
	if t.fallback != nil {
		t.fallback.Stop()
	}

	return prevented
}
