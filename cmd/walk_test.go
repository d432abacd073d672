package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/clock"
	devconfig "github.com/Daskott/walkwithme/dev/config"
	"github.com/Daskott/walkwithme/shared"
	"github.com/Daskott/walkwithme/walk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, time.October, 1, 21, 0, 0, 0, time.UTC)

type TestDataProvider []struct {
	description string
	args        []string
	expectedOut string
}

// syncBuffer is written by the signal printer and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testServerConfig() shared.ServerConfig {
	return shared.ServerConfig{
		Profile:  alert.Profile{Name: "Ada", Phone: "+15550001000"},
		Contacts: []alert.Contact{{Name: "Bea", Phone: "+15550001001"}},
	}
}

func newTestSession(t *testing.T, serverConfig shared.ServerConfig) (*walkSession, *clock.Mock, *syncBuffer) {
	clk := clock.NewMock(t0)
	out := &syncBuffer{}

	walkConfig := walk.Config{CheckInterval: time.Minute, GracePeriod: 30 * time.Second, LocationTimeout: 10 * time.Millisecond}
	session := newWalkSession(serverConfig, walkConfig, walkDeps{Clock: clk}, out)
	t.Cleanup(session.close)

	return session, clk, out
}

func TestLoadServerConfig(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(devconfig.DEV_YAML), 0600))

	v := viper.New()
	v.SetConfigFile(valid)
	require.NoError(t, v.ReadInConfig())

	serverConfig, err := loadServerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, serverConfig.Walk.CheckInterval)
	assert.Equal(t, 20*time.Second, serverConfig.Walk.GracePeriod)
	assert.Equal(t, 500*time.Millisecond, serverConfig.Shake.Debounce)
	assert.Equal(t, 3000, serverConfig.Listener.Port)
	assert.Equal(t, "Dev Walker", serverConfig.Profile.Name)
	if assert.Len(t, serverConfig.Contacts, 1) {
		assert.Equal(t, "+15550000001", serverConfig.Contacts[0].Phone)
	}
	if assert.NotNil(t, serverConfig.Location.Fallback) {
		assert.Equal(t, 40.7128, serverConfig.Location.Fallback.Latitude)
	}

	cases := []struct {
		description string
		yaml        string
		expectedErr string
	}{
		{
			description: "Should fail without a listener port",
			yaml:        "cron:\n  timeZone: UTC\n",
			expectedErr: "Port",
		},
		{
			description: "Should fail with more than 3 contacts",
			yaml: "listener:\n  port: 3000\ncron:\n  timeZone: UTC\ncontacts:\n" +
				strings.Repeat("  - name: a\n    phone: \"+15550000001\"\n", 4),
			expectedErr: "Contacts",
		},
		{
			description: "Should fail with an unknown walk mode",
			yaml:        "listener:\n  port: 3000\ncron:\n  timeZone: UTC\nwalk:\n  mode: sprint\n",
			expectedErr: "Mode",
		},
		{
			description: "Should fail with a malformed duration",
			yaml:        "listener:\n  port: 3000\ncron:\n  timeZone: UTC\nwalk:\n  gracePeriod: soon\n",
			expectedErr: "soon",
		},
	}

	for _, tc := range cases {
		file := filepath.Join(dir, "case.yaml")
		require.NoError(t, os.WriteFile(file, []byte(tc.yaml), 0600))

		v := viper.New()
		v.SetConfigFile(file)
		require.NoError(t, v.ReadInConfig())

		_, err := loadServerConfig(v)
		if assert.Error(t, err, tc.description) {
			assert.Contains(t, err.Error(), tc.expectedErr, tc.description)
		}
	}
}

func TestWalkConfigFromFlags(t *testing.T) {
	cases := []struct {
		description string
		args        []string
		walkConfig  shared.WalkConfig
		expected    walk.Config
	}{
		{
			description: "Should use the recurring preset by default",
			expected:    walk.RecurringConfig(),
		},
		{
			description: "Should use the timed preset from config",
			walkConfig:  shared.WalkConfig{Mode: shared.TIMED_WALK},
			expected:    walk.TimedConfig(),
		},
		{
			description: "Should let flags override config",
			args:        []string{"--timed", "--duration", "20m", "--check", "2m"},
			walkConfig:  shared.WalkConfig{CheckInterval: 4 * time.Minute, GracePeriod: 10 * time.Second},
			expected: walk.Config{
				CheckInterval:   2 * time.Minute,
				GracePeriod:     10 * time.Second,
				TickInterval:    walk.DefaultTickInterval,
				WalkDuration:    20 * time.Minute,
				LocationTimeout: walk.DefaultLocationTimeout,
			},
		},
		{
			description: "Should drop the duration of a recurring walk",
			args:        []string{"--timed=false"},
			walkConfig:  shared.WalkConfig{Mode: shared.TIMED_WALK, WalkDuration: 10 * time.Minute},
			expected:    walk.RecurringConfig(),
		},
	}

	for _, tc := range cases {
		cmd := &cobra.Command{Use: "walk"}
		cmd.Flags().BoolVar(&timedWalk, "timed", false, "")
		cmd.Flags().DurationVarP(&walkDuration, "duration", "d", 0, "")
		cmd.Flags().DurationVarP(&checkInterval, "check", "c", 0, "")
		cmd.Flags().DurationVarP(&gracePeriod, "grace", "g", 0, "")
		require.NoError(t, cmd.ParseFlags(tc.args), tc.description)

		assert.Equal(t, tc.expected, walkConfigFromFlags(cmd, tc.walkConfig), tc.description)
	}
}

func TestWalkSessionCommands(t *testing.T) {
	session, _, out := newTestSession(t, testServerConfig())
	require.NoError(t, session.start())

	cases := TestDataProvider{
		{
			description: "Should reject a shake without three readings",
			args:        []string{"shake 1 2"},
			expectedOut: "usage: shake <x> <y> <z>",
		},
		{
			description: "Should reject a position that is not a number",
			args:        []string{"loc north 2"},
			expectedOut: "\"north\" is not a number",
		},
		{
			description: "Should reject unknown commands",
			args:        []string{"dance"},
			expectedOut: "unknown command \"dance\"",
		},
		{
			description: "Should not ring a fake call twice",
			args:        []string{"call", "call"},
			expectedOut: "a fake call is already ringing",
		},
		{
			description: "Should not share without a position",
			args:        []string{"share"},
			expectedOut: "no location available to share",
		},
		{
			description: "Should share a map link of the last position",
			args:        []string{"loc 43.6532 -79.3832", "share"},
			expectedOut: "📍 43.653200, -79.383200\nhttps://maps.google.com/?q=43.6532,-79.3832",
		},
		{
			description: "Should reject an unknown voice setting",
			args:        []string{"voice maybe"},
			expectedOut: "usage: voice on|off",
		},
		{
			description: "Should turn voice detection off",
			args:        []string{"voice off"},
			expectedOut: "voice detection off",
		},
		{
			description: "Should say when a command does not apply",
			args:        []string{"safe"},
			expectedOut: "nothing to do in state active",
		},
	}

	for _, tc := range cases {
		var err error
		for _, line := range tc.args {
			if err = session.handle(line); err != nil {
				break
			}
		}

		actualOut := out.String()
		if err != nil {
			actualOut = err.Error()
		}
		assert.Contains(t, actualOut, tc.expectedOut, tc.description)
	}

	assert.ErrorIs(t, session.handle("quit"), errQuit)
	assert.Nil(t, session.handle("   "))
}

func TestWalkSessionCheckAndEmergency(t *testing.T) {
	session, clk, out := newTestSession(t, testServerConfig())

	in := strings.NewReader("status\n")
	require.NoError(t, session.run(in))
	assert.Contains(t, out.String(), "state     active")
	assert.Contains(t, out.String(), "● idle → active")
	assert.Contains(t, out.String(), "● active → stopped_by_user", "Leaving the terminal should stop the walk")

	session, clk, out = newTestSession(t, testServerConfig())
	signals, cancel := session.controller.Subscribe(256)
	defer cancel()
	go func() {
		for signal := range signals {
			session.printSignal(signal)
		}
	}()

	require.NoError(t, session.start())
	clk.Add(time.Minute)
	assert.Equal(t, walk.AwaitingCheck, session.controller.State())

	require.NoError(t, session.handle("safe"))
	assert.Equal(t, walk.Active, session.controller.State())

	require.NoError(t, session.handle("loc 43.6532 -79.3832"))
	require.NoError(t, session.handle("sos"))
	assert.Equal(t, walk.Emergency, session.controller.State())

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "EMERGENCY ALERT SENT") &&
			strings.Contains(out.String(), "source sos") &&
			strings.Contains(out.String(), "⏱  1:00")
	}, time.Second, 5*time.Millisecond, out.String())
	assert.Contains(t, out.String(), "Are you safe? Type 'safe'")
	assert.Contains(t, out.String(), "♪ alarm")
}

func TestWalkSessionNeedsProfileAndContacts(t *testing.T) {
	session, _, _ := newTestSession(t, shared.ServerConfig{Profile: alert.Profile{Name: "Ada"}})

	err := session.run(strings.NewReader("status\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "at least one entry in 'contacts'")
	}
}

func TestWalkSessionAfterWalkEnded(t *testing.T) {
	session, _, _ := newTestSession(t, testServerConfig())
	require.NoError(t, session.start())
	require.True(t, session.voice.Enabled())

	require.NoError(t, session.handle("say please help me"))
	assert.Eventually(t, func() bool {
		return session.controller.State() == walk.Emergency
	}, time.Second, 5*time.Millisecond)
	assert.False(t, session.voice.Enabled(), "Voice detection fires once")

	require.NoError(t, session.handle("start"))
	assert.Equal(t, walk.Active, session.controller.State())
	assert.True(t, session.voice.Enabled(), "A new walk listens again")

	require.NoError(t, session.handle("stop"))
	assert.Equal(t, walk.StoppedByUser, session.controller.State())

	require.NoError(t, session.handle("sos"))
	assert.Equal(t, walk.Emergency, session.controller.State(), "An SOS after the walk ended still escalates")

	escalation, ok := session.controller.LastEscalation()
	require.True(t, ok)
	assert.Equal(t, "sos", string(escalation.Alert.Source))
	assert.Equal(t, "Bea", escalation.Alert.Contacts[0].Name)
}
