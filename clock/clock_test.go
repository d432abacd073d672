package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/stretchr/testify/assert"
)

func TestCronClockAfterFunc(t *testing.T) {
	scheduler := gocron.NewScheduler(time.UTC)
	clock := NewCronClock(scheduler)
	defer scheduler.Stop()

	var fired atomic.Int32
	clock.AfterFunc(50*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "One-shot timers should only fire once")
}

func TestCronClockStopPreventsRun(t *testing.T) {
	scheduler := gocron.NewScheduler(time.UTC)
	clock := NewCronClock(scheduler)
	defer scheduler.Stop()

	var fired atomic.Int32
	timer := clock.AfterFunc(100*time.Millisecond, func() { fired.Add(1) })

	assert.True(t, timer.Stop())
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, timer.Stop())
}

func TestCronClockEvery(t *testing.T) {
	scheduler := gocron.NewScheduler(time.UTC)
	clock := NewCronClock(scheduler)
	defer scheduler.Stop()

	var ticks atomic.Int32
	timer := clock.Every(30*time.Millisecond, func() { ticks.Add(1) })

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	timer.Stop()
	time.Sleep(10 * time.Millisecond)
	stoppedAt := ticks.Load()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, stoppedAt, ticks.Load(), "Stopped periodic timers should not fire")
}
