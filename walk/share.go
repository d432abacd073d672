package walk

import (
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/location"
)

const SHARE_MESSAGE = "Share this link with your trusted contacts"

// Share is the current position as a link the walker can hand to someone,
// outside of any emergency.
type Share struct {
	MapURL         string        `json:"map_url"`
	Coordinates    string        `json:"coordinates"`
	Location       location.Fix  `json:"location"`
	State          State         `json:"state"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds int64         `json:"elapsed_seconds"`
	Timer          string        `json:"timer"`
	Message        string        `json:"message"`
}

// Share returns the last known position of the walker, and false while no fix
// has been seen.
func (c *Controller) Share() (Share, bool) {
	snapshot := c.Snapshot()

	fix := c.tracker.Last()
	if fix == nil {
		return Share{}, false
	}

	return Share{
		MapURL:         alert.MapURL(fix),
		Coordinates:    location.FormatCoordinates(fix),
		Location:       *fix,
		State:          snapshot.State,
		Elapsed:        snapshot.Elapsed,
		ElapsedSeconds: snapshot.ElapsedSeconds,
		Timer:          FormatTimer(snapshot.Elapsed),
		Message:        SHARE_MESSAGE,
	}, true
}
