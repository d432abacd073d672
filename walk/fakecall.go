package walk

import (
	"sync"
	"time"

	"github.com/Daskott/walkwithme/clock"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
)

const DefaultFakeCallDuration = 15 * time.Second

// FakeCall rings the phone so the user has an excuse to leave a situation. An
// unanswered call hangs up by itself when the countdown runs out.
type FakeCall struct {
	mu        sync.Mutex
	clock     clock.Clock
	hub       *Hub
	duration  time.Duration
	ringing   bool
	countdown int
	ticker    clock.Timer
	token     uint64
}

func NewFakeCall(clk clock.Clock, hub *Hub, duration time.Duration) *FakeCall {
	if duration <= 0 {
		duration = DefaultFakeCallDuration
	}
	return &FakeCall{clock: clk, hub: hub, duration: duration}
}

// Ring starts an incoming call. It returns false if one is already ringing.
func (f *FakeCall) Ring() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ringing {
		return false
	}
	f.ringing = true
	f.countdown = int(f.duration / time.Second)
	f.token++
	token := f.token
	f.ticker = f.clock.Every(time.Second, func() { f.tick(token) })

	now := f.clock.Now()
	f.hub.Publish(Signal{Kind: SignalPlayTone, At: now, Tone: TonePhoneRing})
	f.hub.Publish(Signal{Kind: SignalFakeCall, At: now, Call: CALL_RINGING, Countdown: f.countdown})

	logger.Shared().Info(colors.Blue("[fake call] ") + "ringing")
	return true
}

// Accept picks up the ringing call.
func (f *FakeCall) Accept() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.endLocked() {
		return false
	}
	now := f.clock.Now()
	f.hub.Publish(Signal{Kind: SignalPlayTone, At: now, Tone: ToneCallConnected})
	f.hub.Publish(Signal{Kind: SignalFakeCall, At: now, Call: CALL_CONNECTED})
	return true
}

// Decline hangs up the ringing call.
func (f *FakeCall) Decline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.declineLocked()
}

func (f *FakeCall) Ringing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ringing
}

func (f *FakeCall) tick(token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ringing || f.token != token {
		return
	}
	f.countdown--
	if f.countdown <= 0 {
		f.declineLocked()
		return
	}
	f.hub.Publish(Signal{Kind: SignalFakeCall, At: f.clock.Now(), Call: CALL_RINGING, Countdown: f.countdown})
}

func (f *FakeCall) declineLocked() bool {
	if !f.endLocked() {
		return false
	}
	now := f.clock.Now()
	f.hub.Publish(Signal{Kind: SignalPlayTone, At: now, Tone: ToneSuccess})
	f.hub.Publish(Signal{Kind: SignalFakeCall, At: now, Call: CALL_ENDED})
	return true
}

func (f *FakeCall) endLocked() bool {
	if !f.ringing {
		return false
	}
	f.ringing = false
	stopTimer(&f.ticker)
	return true
}
