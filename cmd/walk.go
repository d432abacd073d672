package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/clock"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/notify"
	"github.com/Daskott/walkwithme/server/cron"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/server/models"
	"github.com/Daskott/walkwithme/server/twilio"
	"github.com/Daskott/walkwithme/shared"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/Daskott/walkwithme/walk"
	"github.com/spf13/cobra"
)

const walkHelp = `commands:
  safe               answer a safety check
  stop               end the walk
  sos                raise an emergency now
  start              start a new walk once the last one is over
  shake <x> <y> <z>  feed an accelerometer reading (m/s²)
  say <words>        feed recognised speech
  loc <lat> <lon>    report your position
  share              print a map link of your position
  voice on|off       listen for the help keyword
  status             show the walk
  siren              play the siren
  call | accept | decline
                     ring a fake incoming call, then pick up or hang up
  quit               stop and exit`

var errQuit = errors.New("quit")

// configStore serves the profile and contacts of the config file.
type configStore struct {
	profile  alert.Profile
	contacts []alert.Contact
}

func (s configStore) Profile() (alert.Profile, error)    { return s.profile, nil }
func (s configStore) Contacts() ([]alert.Contact, error) { return s.contacts, nil }

// walkSession is an interactive walk on a terminal.
type walkSession struct {
	controller *walk.Controller
	locations  *location.Feed
	sensors    *trigger.Feed
	shake      *trigger.ShakeDetector
	voice      *trigger.VoiceDetector
	store      configStore
	clock      clock.Clock
	stopWatch  func()

	mu  sync.Mutex
	out io.Writer
}

type walkDeps struct {
	Clock    clock.Clock
	Recorder walk.Recorder
	Notifier walk.Notifier
}

func newWalkSession(serverConfig shared.ServerConfig, walkConfig walk.Config, deps walkDeps, out io.Writer) *walkSession {
	locations := location.NewFeed(serverConfig.Location.MaxAge)
	var provider location.Provider = locations
	if fallback := serverConfig.Location.Fallback; fallback != nil {
		provider = location.WithFallback(locations, location.Fix{Latitude: fallback.Latitude, Longitude: fallback.Longitude})
	}

	store := configStore{profile: serverConfig.Profile, contacts: serverConfig.Contacts}
	controller := walk.NewController(walkConfig, walk.Options{
		Clock:    deps.Clock,
		Location: provider,
		Store:    store,
		Recorder: deps.Recorder,
		Notifier: deps.Notifier,
	})

	sensors := trigger.NewFeed(16)
	return &walkSession{
		controller: controller,
		locations:  locations,
		sensors:    sensors,
		shake:      trigger.NewShakeDetector(serverConfig.Shake, sensors, controller),
		voice:      trigger.NewVoiceDetector(sensors, controller),
		store:      store,
		clock:      deps.Clock,
		stopWatch:  locations.Watch(controller.ObserveLocation),
		out:        out,
	}
}

// run starts a walk and executes commands from in until quit or EOF.
func (w *walkSession) run(in io.Reader) error {
	signals, cancel := w.controller.Subscribe(256)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for signal := range signals {
			w.printSignal(signal)
		}
	}()
	defer func() {
		w.close()
		cancel()
		<-printed
	}()

	if err := w.start(); err != nil {
		return err
	}
	w.println(walkHelp)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := w.handle(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			w.println(colors.Red("error: ") + err.Error())
		}
	}
	return scanner.Err()
}

func (w *walkSession) start() error {
	profile, _ := w.store.Profile()
	contacts, _ := w.store.Contacts()

	err := w.controller.Start(profile, contacts)
	if errors.Is(err, walk.ErrPreconditionFailed) {
		return formattedError("set 'profile.name' and at least one entry in 'contacts' in your config")
	}
	if err != nil {
		return err
	}

	// voice detection turns itself off after firing, so every walk re-arms both
	if err := w.shake.Enable(); err != nil {
		w.println(colors.Yellow("shake detection unavailable: ") + err.Error())
	}
	if err := w.voice.Enable(); err != nil {
		w.println(colors.Yellow("voice detection unavailable: ") + err.Error())
	}
	return nil
}

// handle executes one command line.
func (w *walkSession) handle(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	command, args := strings.ToLower(fields[0]), fields[1:]
	switch command {
	case "quit", "exit":
		return errQuit

	case "start":
		return w.start()

	case "status":
		w.printSnapshot(w.controller.Snapshot())
		return nil

	case "shake":
		values, err := parseFloats(args, 3, "shake <x> <y> <z>")
		if err != nil {
			return err
		}
		w.sensors.PushSample(trigger.Sample{X: values[0], Y: values[1], Z: values[2], At: time.Now()})
		return nil

	case "say":
		if len(args) == 0 {
			return fmt.Errorf("usage: say <words>")
		}
		w.sensors.PushUtterance(strings.Join(args, " "))
		return nil

	case "loc":
		values, err := parseFloats(args, 2, "loc <lat> <lon>")
		if err != nil {
			return err
		}
		w.locations.Push(location.Fix{Latitude: values[0], Longitude: values[1], CapturedAt: w.clock.Now()})
		return nil

	case "share":
		share, ok := w.controller.Share()
		if !ok {
			return errors.New("no location available to share, report one with 'loc <lat> <lon>'")
		}
		w.println(fmt.Sprintf("📍 %v\n%v\n%v", share.Coordinates, share.MapURL, share.Message))
		return nil

	case "voice":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("usage: voice on|off")
		}
		if args[0] == "off" {
			w.voice.Disable()
			w.println("voice detection off")
			return nil
		}
		if err := w.voice.Enable(); err != nil {
			return err
		}
		w.println("listening for the help keyword")
		return nil

	case "siren":
		w.controller.Siren()
		return nil

	case "call":
		return expect(w.controller.FakeCall().Ring(), "a fake call is already ringing")
	case "accept":
		return expect(w.controller.FakeCall().Accept(), "no fake call is ringing")
	case "decline":
		return expect(w.controller.FakeCall().Decline(), "no fake call is ringing")

	case "help":
		w.println(walkHelp)
		return nil
	}

	event, err := trigger.ParseCommand(command)
	if err != nil {
		return fmt.Errorf("%v, type 'help' for commands", err)
	}
	if !trigger.Deliver(w.controller, event) {
		w.println(colors.Yellow("nothing to do in state " + string(w.controller.State())))
	}
	return nil
}

func (w *walkSession) close() {
	w.shake.Disable()
	w.voice.Disable()
	w.controller.Stop()
	w.stopWatch()
}

// ---------------------------------------------------------------------------------//
// Output
// --------------------------------------------------------------------------------//

func (w *walkSession) printSignal(signal walk.Signal) {
	switch signal.Kind {
	case walk.SignalStateChanged:
		state := string(signal.State)
		switch signal.State {
		case walk.Emergency:
			state = colors.Red(strings.ToUpper(state))
		case walk.Completed, walk.StoppedByUser:
			state = colors.Green(state)
		default:
			state = colors.Yellow(state)
		}
		w.println(fmt.Sprintf("● %v → %v", signal.From, state))

	case walk.SignalTick:
		// once a minute is enough on a terminal
		if signal.ElapsedSeconds > 0 && signal.ElapsedSeconds%60 == 0 {
			w.println(colors.Blue("⏱  " + signal.Timer))
		}

	case walk.SignalPlayTone:
		w.println(colors.Blue("♪ " + string(signal.Tone)))

	case walk.SignalShowCheckPrompt:
		deadline := ""
		if signal.Deadline != nil {
			deadline = " before " + signal.Deadline.Local().Format("15:04:05")
		}
		w.println(colors.Yellow("Are you safe? Type 'safe'" + deadline))

	case walk.SignalHideCheckPrompt:
		w.println("check closed")

	case walk.SignalShowEmergencyScreen:
		w.println(colors.Red("🚨 EMERGENCY ALERT SENT"))
		if signal.Alert != nil {
			for _, line := range signal.Alert.Summary() {
				w.println("   " + line)
			}
		}

	case walk.SignalFakeCall:
		switch signal.Call {
		case walk.CALL_RINGING:
			w.println(fmt.Sprintf("📞 incoming call (%ds)", signal.Countdown))
		default:
			w.println("📞 call " + signal.Call)
		}
	}
}

func (w *walkSession) printSnapshot(snapshot walk.Snapshot) {
	lines := []string{
		fmt.Sprintf("state     %v", snapshot.State),
		fmt.Sprintf("timer     %v", snapshot.Timer),
		fmt.Sprintf("checks    %v", snapshot.ChecksPerformed),
		fmt.Sprintf("distance  %.3f km", snapshot.DistanceKm),
		fmt.Sprintf("location  %v", location.FormatCoordinates(snapshot.Location)),
	}
	w.println(strings.Join(lines, "\n"))
}

func (w *walkSession) println(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, line)
}

// ---------------------------------------------------------------------------------//
// Command
// --------------------------------------------------------------------------------//

var (
	timedWalk     bool
	walkDuration  time.Duration
	checkInterval time.Duration
	gracePeriod   time.Duration
)

// walkCmd represents the walk command
var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Start a walk in this terminal",
	Long: `Starts a walk using the profile and contacts of your config file and reads
commands from stdin. Type 'help' once it is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverConfig, err := loadServerConfig(config)
		if err != nil {
			return err
		}
		logger.Configure(serverConfig.Logging)

		deps, err := walkDependencies(serverConfig)
		if err != nil {
			return err
		}

		session := newWalkSession(serverConfig, walkConfigFromFlags(cmd, serverConfig.Walk), deps, cmd.OutOrStdout())
		return session.run(cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)

	walkCmd.Flags().BoolVar(&timedWalk, "timed", false, "walk for a fixed duration instead of until stopped")
	walkCmd.Flags().DurationVarP(&walkDuration, "duration", "d", 0, "length of a timed walk, e.g. 20m")
	walkCmd.Flags().DurationVarP(&checkInterval, "check", "c", 0, "time between safety checks, e.g. 3m")
	walkCmd.Flags().DurationVarP(&gracePeriod, "grace", "g", 0, "time to answer a safety check, e.g. 30s")
}

// walkConfigFromFlags layers the flags over the walk section of the config.
func walkConfigFromFlags(cmd *cobra.Command, walkConfig shared.WalkConfig) walk.Config {
	base := walk.RecurringConfig()
	timed := walkConfig.Mode == shared.TIMED_WALK
	if cmd.Flags().Changed("timed") {
		timed = timedWalk
	}
	if timed {
		base = walk.TimedConfig()
	}

	overrides := []struct {
		flag       string
		fromFlag   time.Duration
		fromConfig time.Duration
		target     *time.Duration
	}{
		{"check", checkInterval, walkConfig.CheckInterval, &base.CheckInterval},
		{"grace", gracePeriod, walkConfig.GracePeriod, &base.GracePeriod},
		{"duration", walkDuration, walkConfig.WalkDuration, &base.WalkDuration},
	}
	for _, o := range overrides {
		switch {
		case cmd.Flags().Changed(o.flag):
			*o.target = o.fromFlag
		case o.fromConfig > 0:
			*o.target = o.fromConfig
		}
	}

	if !timed {
		base.WalkDuration = 0
	}
	if walkConfig.TickInterval > 0 {
		base.TickInterval = walkConfig.TickInterval
	}
	if walkConfig.LocationTimeout > 0 {
		base.LocationTimeout = walkConfig.LocationTimeout
	}
	return base
}

func walkDependencies(serverConfig shared.ServerConfig) (walkDeps, error) {
	deps := walkDeps{Clock: clock.NewCronClock(cron.NewScheduler(serverConfig.Cron.TimeZone))}

	var sms notify.SMSSender = notify.Simulated{Delay: serverConfig.Notify.SimulatedDelay}
	if serverConfig.Twilio.Enabled {
		sms = twilio.NewClient(serverConfig.Twilio, isTestEnv)
	}
	deps.Notifier = notify.NewService(sms, notify.Simulated{Delay: serverConfig.Notify.SimulatedDelay})

	// Walks are only kept when there is somewhere to keep them
	if serverConfig.Sqlite.Dir != "" {
		if err := models.AutoMigrate(serverConfig.Sqlite.Dir); err != nil {
			return deps, err
		}
		deps.Recorder = models.NewStore()
	}

	return deps, nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func parseFloats(args []string, count int, usage string) ([]float64, error) {
	if len(args) != count {
		return nil, fmt.Errorf("usage: %s", usage)
	}

	values := make([]float64, count)
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: %s, %q is not a number", usage, arg)
		}
		values[i] = v
	}
	return values, nil
}

func expect(applied bool, reason string) error {
	if !applied {
		return errors.New(reason)
	}
	return nil
}
