package walk

import (
	"testing"
	"time"

	"github.com/Daskott/walkwithme/trigger"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	opRespondSafe = iota
	opGraceElapses
	opStop
	opSOS
	opCheckElapses
	opSecond
	opCount
)

// TestTriggerInterleavings drives random sequences of competing triggers and
// clock movement through one walk.
func TestTriggerInterleavings(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	config := testConfig()
	config.TickInterval = 10 * time.Second

	properties.Property("at most one resolution and no orphaned timers", prop.ForAll(
		func(ops []int) bool {
			h := newHarness(t, config, Options{})
			if err := h.controller.Start(testProfile, testContacts); err != nil {
				return false
			}

			for _, op := range ops {
				switch op {
				case opRespondSafe:
					h.controller.RespondSafe()
				case opGraceElapses:
					h.clock.Add(config.GracePeriod)
				case opStop:
					h.controller.Stop()
				case opSOS:
					h.controller.ManualEmergency(trigger.SourceSOS)
				case opCheckElapses:
					h.clock.Add(config.CheckInterval)
				case opSecond:
					h.clock.Add(time.Second)
				}
			}

			signals := drain(h.signals)
			state := h.controller.State()
			walks, emergencies := h.recorder.recorded()
			alerts := h.notifier.alerts()

			if len(alerts) > 1 || len(emergencies) != len(alerts) {
				return false
			}
			if count(signals, SignalShowEmergencyScreen) != len(alerts) {
				return false
			}

			open := count(signals, SignalShowCheckPrompt) - count(signals, SignalHideCheckPrompt)
			if state == AwaitingCheck && open != 1 || state != AwaitingCheck && open != 0 {
				return false
			}

			if !state.Terminal() {
				return len(walks) == 0 && len(alerts) == 0
			}
			if len(walks) != 1 {
				return false
			}
			// an SOS after the walk ended escalates on its own
			if walks[0].FinalState != state && (state != Emergency || len(alerts) != 1) {
				return false
			}
			if h.clock.Pending() != 0 {
				return false
			}

			h.clock.Add(time.Hour)
			return len(drain(h.signals)) == 0
		},
		gen.SliceOf(gen.IntRange(0, opCount-1)),
	))

	properties.TestingRun(t)
}
