// Package trigger holds the producers of walk events: manual user actions, the
// shake detector and the voice keyword detector.
package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned when a detector's capability is missing on the host.
var ErrUnsupported = errors.New("capability unsupported")

type Kind int

const (
	TriggerEmergency Kind = iota
	RespondSafe
	StopWalk
)

func (k Kind) String() string {
	switch k {
	case TriggerEmergency:
		return "trigger-emergency"
	case RespondSafe:
		return "respond-safe"
	case StopWalk:
		return "stop-walk"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Source names what produced an emergency.
type Source string

const (
	SourceManual  Source = "manual"
	SourceSOS     Source = "sos"
	SourceShake   Source = "shake"
	SourceVoice   Source = "voice"
	SourceTimeout Source = "timeout"
)

type Event struct {
	Kind   Kind
	Source Source
}

// Target consumes trigger events. Each method reports whether it changed state.
type Target interface {
	ManualEmergency(source Source) bool
	RespondSafe() bool
	Stop() bool
}

// Deliver routes event to the matching Target method.
func Deliver(target Target, event Event) bool {
	switch event.Kind {
	case TriggerEmergency:
		source := event.Source
		if source == "" {
			source = SourceManual
		}
		return target.ManualEmergency(source)
	case RespondSafe:
		return target.RespondSafe()
	case StopWalk:
		return target.Stop()
	}
	return false
}

// ParseCommand maps a manual user action to an Event.
func ParseCommand(command string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "safe", "respond-safe", "ok":
		return Event{Kind: RespondSafe, Source: SourceManual}, nil
	case "stop", "stop-walk":
		return Event{Kind: StopWalk, Source: SourceManual}, nil
	case "sos", "emergency", "panic":
		return Event{Kind: TriggerEmergency, Source: SourceSOS}, nil
	}
	return Event{}, fmt.Errorf("unknown command %q", command)
}
