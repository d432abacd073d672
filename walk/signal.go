package walk

import (
	"sync"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
)

type SignalKind string

const (
	SignalStateChanged        SignalKind = "state_changed"
	SignalTick                SignalKind = "tick"
	SignalPlayTone            SignalKind = "play_tone"
	SignalShowCheckPrompt     SignalKind = "show_check_prompt"
	SignalHideCheckPrompt     SignalKind = "hide_check_prompt"
	SignalShowEmergencyScreen SignalKind = "show_emergency_screen"
	SignalFakeCall            SignalKind = "fake_call"
)

// Tone names a sound for the audio layer to play.
type Tone string

const (
	ToneSuccess       Tone = "success"
	ToneAlert         Tone = "alert"
	ToneAlarm         Tone = "alarm"
	ToneSiren         Tone = "siren"
	TonePhoneRing     Tone = "phone-ring"
	ToneCallConnected Tone = "call-connected"
)

const (
	CALL_RINGING   = "ringing"
	CALL_CONNECTED = "connected"
	CALL_ENDED     = "ended"
)

// Signal is an instruction for presentation layers. Only the fields relevant
// to Kind are set.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	At        time.Time  `json:"at"`
	SessionID string     `json:"session_id,omitempty"`

	From  State `json:"from,omitempty"`
	State State `json:"state,omitempty"`

	Tone Tone `json:"tone,omitempty"`

	Elapsed          time.Duration  `json:"-"`
	Remaining        *time.Duration `json:"-"`
	ElapsedSeconds   int64          `json:"elapsed_seconds,omitempty"`
	RemainingSeconds *int64         `json:"remaining_seconds,omitempty"`
	Timer            string         `json:"timer,omitempty"`

	Deadline *time.Time            `json:"deadline,omitempty"`
	Alert    *alert.EmergencyAlert `json:"alert,omitempty"`

	Call      string `json:"call,omitempty"`
	Countdown int    `json:"countdown,omitempty"`
}

// Hub fans signals out to subscribers without ever blocking the publisher. A
// subscriber whose buffer is full misses the signal.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Signal
	nextID  int
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Signal)}
}

// Subscribe returns a channel of signals and a function that closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Signal, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Signal, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(signal Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- signal:
		default:
			h.dropped++
			logger.Shared().Warnf(colors.Yellow("[signals] ")+"subscriber full, dropped %v signal", signal.Kind)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func setTimer(signal *Signal, elapsed time.Duration, remaining *time.Duration) {
	signal.Elapsed = elapsed
	signal.ElapsedSeconds = int64(elapsed / time.Second)
	signal.Timer = FormatTimer(elapsed)
	if remaining != nil {
		r := *remaining
		seconds := int64(r / time.Second)
		signal.Remaining = &r
		signal.RemainingSeconds = &seconds
		signal.Timer = FormatTimer(r)
	}
}
