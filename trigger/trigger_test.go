package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2021, time.October, 1, 18, 0, 0, 0, time.UTC)

type recordingTarget struct {
	mu          sync.Mutex
	emergencies []Source
	safe        int
	stops       int
}

func (r *recordingTarget) ManualEmergency(source Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emergencies = append(r.emergencies, source)
	return true
}

func (r *recordingTarget) RespondSafe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.safe++
	return true
}

func (r *recordingTarget) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return true
}

func (r *recordingTarget) emergencyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emergencies)
}

func (r *recordingTarget) sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Source(nil), r.emergencies...)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		command  string
		expected Event
		wantErr  bool
	}{
		{"safe", Event{Kind: RespondSafe, Source: SourceManual}, false},
		{"  STOP ", Event{Kind: StopWalk, Source: SourceManual}, false},
		{"sos", Event{Kind: TriggerEmergency, Source: SourceSOS}, false},
		{"dance", Event{}, true},
	}

	for _, tcase := range cases {
		t.Run(tcase.command, func(t *testing.T) {
			event, err := ParseCommand(tcase.command)
			if tcase.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tcase.expected, event)
		})
	}
}

func TestDeliver(t *testing.T) {
	target := &recordingTarget{}

	Deliver(target, Event{Kind: RespondSafe})
	Deliver(target, Event{Kind: StopWalk})
	Deliver(target, Event{Kind: TriggerEmergency})
	Deliver(target, Event{Kind: TriggerEmergency, Source: SourceVoice})

	assert.Equal(t, 1, target.safe)
	assert.Equal(t, 1, target.stops)
	assert.Equal(t, []Source{SourceManual, SourceVoice}, target.emergencies)
}

func TestShakeThresholdIsStrict(t *testing.T) {
	target := &recordingTarget{}
	detector := NewShakeDetector(ShakeConfig{}, nil, target)

	assert.False(t, detector.Process(Sample{X: 15, At: epoch}), "Magnitude exactly at threshold should not trigger")
	assert.False(t, detector.Process(Sample{X: 9, Y: 12, At: epoch}), "3-4-5 triangle magnitude of 15 should not trigger")
	assert.True(t, detector.Process(Sample{X: 15.01, At: epoch}))
	assert.Equal(t, []Source{SourceShake}, target.emergencies)
}

func TestShakeDebounce(t *testing.T) {
	target := &recordingTarget{}
	detector := NewShakeDetector(ShakeConfig{}, nil, target)

	assert.True(t, detector.Process(Sample{X: 20, At: epoch}))
	assert.False(t, detector.Process(Sample{X: 20, At: epoch.Add(499 * time.Millisecond)}))
	assert.True(t, detector.Process(Sample{X: 20, At: epoch.Add(500 * time.Millisecond)}))
	assert.Equal(t, 2, target.emergencyCount())
}

func TestShakeAtMostOncePerDebounceWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("no two triggers closer than the debounce", prop.ForAll(
		func(gapsMs []int, magnitudes []float64) bool {
			detector := NewShakeDetector(ShakeConfig{}, nil, nil)

			at := epoch
			var triggers []time.Time
			for i, gap := range gapsMs {
				at = at.Add(time.Duration(gap) * time.Millisecond)
				magnitude := DefaultShakeThreshold + 1
				if i < len(magnitudes) {
					magnitude = magnitudes[i]
				}
				if detector.Process(Sample{X: magnitude, At: at}) {
					triggers = append(triggers, at)
				}
			}

			for i := 1; i < len(triggers); i++ {
				if triggers[i].Sub(triggers[i-1]) < DefaultShakeDebounce {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 300)),
		gen.SliceOf(gen.Float64Range(0, 40)),
	))

	properties.TestingRun(t)
}

func TestShakeEnableDisableReleasesSubscription(t *testing.T) {
	feed := NewFeed(4)
	target := &recordingTarget{}
	detector := NewShakeDetector(ShakeConfig{}, feed, target)

	require.NoError(t, detector.Enable())
	require.NoError(t, detector.Enable(), "Enabling twice should be a no-op")
	motion, _ := feed.Subscribers()
	assert.Equal(t, 1, motion)

	feed.PushSample(Sample{X: 30, At: epoch})
	assert.Eventually(t, func() bool { return target.emergencyCount() == 1 }, time.Second, 5*time.Millisecond)

	detector.Disable()
	motion, _ = feed.Subscribers()
	assert.Equal(t, 0, motion, "Disabling should cancel the sensor subscription")
	assert.False(t, detector.Enabled())

	assert.Equal(t, 0, feed.PushSample(Sample{X: 30, At: epoch.Add(time.Second)}))
	assert.Equal(t, 1, target.emergencyCount())
}

func TestShakeToggle(t *testing.T) {
	detector := NewShakeDetector(ShakeConfig{}, NewFeed(1), nil)

	enabled, err := detector.Toggle()
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = detector.Toggle()
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestShakeUnsupported(t *testing.T) {
	assert.ErrorIs(t, NewShakeDetector(ShakeConfig{}, nil, nil).Enable(), ErrUnsupported)

	feed := NewFeed(1)
	feed.DisableMotion()
	detector := NewShakeDetector(ShakeConfig{}, feed, nil)

	assert.ErrorIs(t, detector.Enable(), ErrUnsupported)
	assert.False(t, detector.Enabled())
}

func TestVoiceDetectorFiresOnceAndStops(t *testing.T) {
	feed := NewFeed(8)
	target := &recordingTarget{}
	detector := NewVoiceDetector(feed, target)

	require.NoError(t, detector.Enable())
	feed.PushUtterance("walking home now")
	feed.PushUtterance("Somebody HELP me")
	feed.PushUtterance("help again")

	assert.Eventually(t, func() bool { return target.emergencyCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, detector.Enabled())
	assert.Eventually(t, func() bool {
		_, speech := feed.Subscribers()
		return speech == 0
	}, time.Second, 5*time.Millisecond, "Listening should stop after the keyword")

	assert.Equal(t, []Source{SourceVoice}, target.sources())

	require.NoError(t, detector.Enable(), "Detector should be re-activatable")
	feed.PushUtterance("help")
	assert.Eventually(t, func() bool { return target.emergencyCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestVoiceDetectorDisable(t *testing.T) {
	feed := NewFeed(8)
	target := &recordingTarget{}
	detector := NewVoiceDetector(feed, target)

	require.NoError(t, detector.Enable())
	detector.Disable()

	assert.Eventually(t, func() bool {
		_, speech := feed.Subscribers()
		return speech == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, feed.PushUtterance("help"))
	assert.Equal(t, 0, target.emergencyCount())
}

type unsupportedRecognizer struct{}

func (unsupportedRecognizer) Listen(context.Context) (<-chan string, error) {
	return nil, ErrUnsupported
}

func TestVoiceDetectorUnsupported(t *testing.T) {
	assert.ErrorIs(t, NewVoiceDetector(nil, nil).Enable(), ErrUnsupported)
	assert.ErrorIs(t, NewVoiceDetector(unsupportedRecognizer{}, nil).Enable(), ErrUnsupported)
}

func TestVoiceMatchesIgnoresCase(t *testing.T) {
	detector := NewVoiceDetector(nil, nil)

	assert.True(t, detector.Matches("HeLp"))
	assert.True(t, detector.Matches("please help me"))
	assert.False(t, detector.Matches("hello"))
}
