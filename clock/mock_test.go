package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2021, time.October, 1, 18, 0, 0, 0, time.UTC)

func TestMockAfterFunc(t *testing.T) {
	clock := NewMock(epoch)
	fired := 0

	clock.AfterFunc(3*time.Second, func() { fired++ })

	clock.Add(2 * time.Second)
	assert.Equal(t, 0, fired, "Should not fire before its deadline")

	clock.Add(time.Second)
	assert.Equal(t, 1, fired, "Should fire exactly at its deadline")

	clock.Add(time.Minute)
	assert.Equal(t, 1, fired, "One-shot timers should only fire once")
	assert.Equal(t, 0, clock.Pending())
}

func TestMockEvery(t *testing.T) {
	clock := NewMock(epoch)
	var seen []time.Time

	timer := clock.Every(time.Second, func() { seen = append(seen, clock.Now()) })
	clock.Add(3500 * time.Millisecond)

	assert.Equal(t, []time.Time{
		epoch.Add(time.Second),
		epoch.Add(2 * time.Second),
		epoch.Add(3 * time.Second),
	}, seen)
	assert.Equal(t, epoch.Add(3500*time.Millisecond), clock.Now())

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "Stopping twice should report nothing was prevented")

	clock.Add(5 * time.Second)
	assert.Len(t, seen, 3, "Stopped periodic timers should not fire")
}

func TestMockCallbacksCanCancelOtherTimers(t *testing.T) {
	clock := NewMock(epoch)
	var order []string

	var second Timer
	clock.AfterFunc(time.Second, func() {
		order = append(order, "first")
		second.Stop()
	})
	second = clock.AfterFunc(time.Second, func() { order = append(order, "second") })

	clock.Add(time.Second)

	assert.Equal(t, []string{"first"}, order)
}

func TestMockCallbacksCanSchedule(t *testing.T) {
	clock := NewMock(epoch)
	count := 0

	var reschedule func()
	reschedule = func() {
		count++
		if count < 3 {
			clock.AfterFunc(time.Second, reschedule)
		}
	}
	clock.AfterFunc(time.Second, reschedule)

	clock.Add(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestMockTiesFireInSchedulingOrder(t *testing.T) {
	clock := NewMock(epoch)
	var order []int

	for i := 0; i < 4; i++ {
		i := i
		clock.AfterFunc(time.Second, func() { order = append(order, i) })
	}
	clock.Add(time.Second)

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}
