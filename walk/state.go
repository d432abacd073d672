package walk

import (
	"time"

	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/trigger"
)

type State string

const (
	Idle          State = "idle"
	Active        State = "active"
	AwaitingCheck State = "awaiting_check"
	Completed     State = "completed"
	StoppedByUser State = "stopped_by_user"
	Emergency     State = "emergency"
)

// Live reports whether a session in this state still has running timers.
func (s State) Live() bool {
	return s == Active || s == AwaitingCheck
}

func (s State) Terminal() bool {
	return s == Completed || s == StoppedByUser || s == Emergency
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID                   string         `json:"id,omitempty"`
	State                State          `json:"state"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	EndedAt              *time.Time     `json:"ended_at,omitempty"`
	ChecksPerformed      int            `json:"checks_performed"`
	LastCheckAt          *time.Time     `json:"last_check_at,omitempty"`
	PendingCheckDeadline *time.Time     `json:"pending_check_deadline,omitempty"`
	Elapsed              time.Duration  `json:"-"`
	Remaining            *time.Duration `json:"-"`
	ElapsedSeconds       int64          `json:"elapsed_seconds"`
	RemainingSeconds     *int64         `json:"remaining_seconds,omitempty"`
	Timer                string         `json:"timer"`
	Location             *location.Fix  `json:"location,omitempty"`
	DistanceKm           float64        `json:"distance_km"`
}

// Summary describes a finished walk for the history log.
type Summary struct {
	SessionID       string
	StartedAt       time.Time
	EndedAt         time.Time
	Duration        time.Duration
	FinalState      State
	ChecksPerformed int
	DistanceKm      float64
	Source          trigger.Source
	AlertID         string
}
