// Package walk runs the walk session: periodic safety checks, the grace period
// that follows each one, and escalation to an emergency from any trigger.
//
// Every mutation happens under the controller's lock and runs to completion.
// Scheduled callbacks carry the session id and a timer token and check both,
// plus the state, before acting; a callback that lost a race finds a mismatch
// and does nothing.
package walk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/clock"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/notify"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

var (
	ErrPreconditionFailed = errors.New("a walk needs a profile name and at least one contact")
	ErrSessionActive      = errors.New("a walk is already in progress")
)

// ProfileStore supplies the user and contacts for an SOS raised outside a walk.
type ProfileStore interface {
	Profile() (alert.Profile, error)
	Contacts() ([]alert.Contact, error)
}

// Recorder keeps the walk history and the emergency log.
type Recorder interface {
	RecordWalk(summary Summary) error
	RecordEmergency(emergency alert.EmergencyAlert) error
}

// Notifier starts delivery of an alert and returns without waiting for it.
type Notifier interface {
	Send(ctx context.Context, emergency alert.EmergencyAlert) *notify.Delivery
}

// Escalation is the alert of the most recent emergency and its delivery.
type Escalation struct {
	Alert    alert.EmergencyAlert
	Delivery *notify.Delivery
}

type Options struct {
	Clock    clock.Clock
	Location location.Provider
	Tracker  *location.Tracker
	Store    ProfileStore
	Recorder Recorder
	Notifier Notifier
	Hub      *Hub
	NewID    func() string
}

type session struct {
	id        string
	profile   alert.Profile
	contacts  []alert.Contact
	startedAt time.Time
	state     State

	checks      int
	lastCheckAt time.Time
	deadline    time.Time

	checkToken uint64
	graceToken uint64
	checkTimer clock.Timer
	graceTimer clock.Timer
	tickTimer  clock.Timer

	stopWatch    func()
	cancelLocate context.CancelFunc

	lastFix    *location.Fix
	distanceKm float64

	// quick sessions exist only to carry an emergency raised outside a walk
	quick bool
}

type Controller struct {
	mu       sync.Mutex
	config   Config
	clock    clock.Clock
	locator  location.Provider
	tracker  *location.Tracker
	store    ProfileStore
	recorder Recorder
	notifier Notifier
	hub      *Hub
	newID    func() string
	fakeCall *FakeCall

	session    *session
	last       *Snapshot
	escalation *Escalation
	tokens     uint64
}

func NewController(config Config, opts Options) *Controller {
	c := &Controller{
		config:   config.withDefaults(),
		clock:    opts.Clock,
		locator:  opts.Location,
		tracker:  opts.Tracker,
		store:    opts.Store,
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		hub:      opts.Hub,
		newID:    opts.NewID,
	}

	if c.clock == nil {
		c.clock = clock.NewCronClock(gocron.NewScheduler(time.Local))
	}
	if c.locator == nil {
		c.locator = location.Unsupported{}
	}
	if c.tracker == nil {
		c.tracker = location.NewTracker()
	}
	if c.hub == nil {
		c.hub = NewHub()
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	c.fakeCall = NewFakeCall(c.clock, c.hub, DefaultFakeCallDuration)

	return c
}

func (c *Controller) Config() Config {
	return c.config
}

func (c *Controller) Hub() *Hub {
	return c.hub
}

func (c *Controller) Tracker() *location.Tracker {
	return c.tracker
}

func (c *Controller) FakeCall() *FakeCall {
	return c.fakeCall
}

// Subscribe returns the signal stream and a function ending the subscription.
func (c *Controller) Subscribe(buffer int) (<-chan Signal, func()) {
	return c.hub.Subscribe(buffer)
}

// Start begins a walk. It fails with ErrPreconditionFailed when the profile has
// no name or there are no contacts, and with ErrSessionActive while a walk runs.
func (c *Controller) Start(profile alert.Profile, contacts []alert.Contact) error {
	if strings.TrimSpace(profile.Name) == "" || len(contacts) == 0 {
		return ErrPreconditionFailed
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}

	from := c.stateLocked()
	now := c.clock.Now()
	s := &session{
		id:        c.newID(),
		profile:   profile,
		contacts:  append([]alert.Contact(nil), contacts...),
		startedAt: now,
		state:     Active,
	}
	c.session = s
	c.last = nil
	c.escalation = nil

	c.scheduleCheckLocked(s)
	id := s.id
	s.tickTimer = c.clock.Every(c.config.TickInterval, func() { c.tick(id) })

	ctx, cancel := context.WithTimeout(context.Background(), c.config.LocationTimeout)
	s.cancelLocate = cancel

	c.hub.Publish(Signal{Kind: SignalStateChanged, At: now, SessionID: id, From: from, State: Active})
	c.mu.Unlock()

	mode := "recurring"
	if c.config.Timed() {
		mode = "timed " + FormatTimer(c.config.WalkDuration)
	}
	logger.Shared().Infof(prefix(id)+"walk started for %v, %v, %v contact(s), check every %v",
		profile.Name, mode, len(contacts), c.config.CheckInterval)

	go c.locate(ctx, cancel, id)
	c.watch(id)

	return nil
}

// RespondSafe answers an outstanding safety check. Outside AwaitingCheck it does
// nothing and returns false.
func (c *Controller) RespondSafe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.state != AwaitingCheck {
		return false
	}

	now := c.clock.Now()
	stopTimer(&s.graceTimer)
	s.graceToken = 0
	s.checks++
	s.lastCheckAt = now
	s.deadline = time.Time{}
	s.state = Active
	c.scheduleCheckLocked(s)

	c.hub.Publish(Signal{Kind: SignalHideCheckPrompt, At: now, SessionID: s.id})
	c.hub.Publish(Signal{Kind: SignalStateChanged, At: now, SessionID: s.id, From: AwaitingCheck, State: Active})
	c.hub.Publish(Signal{Kind: SignalPlayTone, At: now, SessionID: s.id, Tone: ToneSuccess})

	logger.Shared().Infof(prefix(s.id)+"check %v answered, next in %v", s.checks, c.config.CheckInterval)
	return true
}

// Stop ends a live walk at the user's request.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	s := c.session
	if s == nil || !s.state.Live() {
		c.mu.Unlock()
		return false
	}
	effects := c.finishLocked(s, StoppedByUser, "")
	c.mu.Unlock()

	logger.Shared().Info(prefix(s.id) + "walk stopped by user")
	effects.run()
	return true
}

// ManualEmergency escalates immediately with the last known location. Without a
// live walk, including after one completed or was stopped, the profile and
// contacts come from the ProfileStore. Once an emergency has been raised it does
// nothing until Reset or the next Start.
func (c *Controller) ManualEmergency(source trigger.Source) bool {
	if source == "" {
		source = trigger.SourceManual
	}

	c.mu.Lock()
	s := c.session
	if s == nil {
		if !c.canQuickEscalateLocked() {
			c.mu.Unlock()
			return false
		}
		c.mu.Unlock()
		return c.quickEmergency(source)
	}
	if !s.state.Live() {
		c.mu.Unlock()
		return false
	}
	effects := c.escalateLocked(s, source)
	c.mu.Unlock()

	effects.run()
	return true
}

// canQuickEscalateLocked reports whether no session runs and the last one did
// not end in an emergency.
func (c *Controller) canQuickEscalateLocked() bool {
	return c.session == nil && (c.last == nil || c.last.State != Emergency)
}

func (c *Controller) quickEmergency(source trigger.Source) bool {
	profile, contacts := c.storedProfile()

	c.mu.Lock()
	if !c.canQuickEscalateLocked() {
		c.mu.Unlock()
		return false
	}
	s := &session{
		id:        c.newID(),
		profile:   profile,
		contacts:  contacts,
		startedAt: c.clock.Now(),
		state:     c.stateLocked(),
		quick:     true,
	}
	c.session = s
	c.escalation = nil
	effects := c.escalateLocked(s, source)
	c.mu.Unlock()

	if len(contacts) == 0 {
		logger.Shared().Warn(prefix(s.id) + "emergency raised without any contacts on file")
	}
	effects.run()
	return true
}

func (c *Controller) storedProfile() (alert.Profile, []alert.Contact) {
	if c.store == nil {
		return alert.Profile{}, nil
	}

	profile, err := c.store.Profile()
	if err != nil {
		logger.Shared().Errorf(colors.Red("[walk] ")+"reading profile: %v", err)
	}
	contacts, err := c.store.Contacts()
	if err != nil {
		logger.Shared().Errorf(colors.Red("[walk] ")+"reading contacts: %v", err)
	}
	return profile, contacts
}

// Reset clears a finished session so the controller reads Idle again.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil || c.last == nil {
		return false
	}
	from := c.last.State
	c.last = nil
	c.hub.Publish(Signal{Kind: SignalStateChanged, At: c.clock.Now(), From: from, State: Idle})
	return true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.snapshotLocked(c.session, c.clock.Now())
	}
	if c.last != nil {
		return *c.last
	}
	return Snapshot{State: Idle, Timer: FormatTimer(0), Location: c.tracker.Last()}
}

// LastEscalation returns the most recent emergency of the current or last
// session.
func (c *Controller) LastEscalation() (Escalation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.escalation == nil {
		return Escalation{}, false
	}
	return *c.escalation, true
}

// Siren asks the audio layer for the siren.
func (c *Controller) Siren() {
	c.hub.Publish(Signal{Kind: SignalPlayTone, At: c.clock.Now(), Tone: ToneSiren})
}

// ---------------------------------------------------------------------------------//
// Scheduled callbacks
// --------------------------------------------------------------------------------//

func (c *Controller) safetyCheck(id string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.id != id || s.checkToken != token || s.state != Active {
		stale(id, "safety check")
		return
	}

	now := c.clock.Now()
	s.checkTimer = nil
	s.checkToken = 0
	s.state = AwaitingCheck
	s.deadline = now.Add(c.config.GracePeriod)

	c.tokens++
	grace := c.tokens
	s.graceToken = grace
	s.graceTimer = c.clock.AfterFunc(c.config.GracePeriod, func() { c.graceExpired(id, grace) })

	deadline := s.deadline
	c.hub.Publish(Signal{Kind: SignalStateChanged, At: now, SessionID: id, From: Active, State: AwaitingCheck})
	c.hub.Publish(Signal{Kind: SignalPlayTone, At: now, SessionID: id, Tone: ToneAlert})
	c.hub.Publish(Signal{Kind: SignalShowCheckPrompt, At: now, SessionID: id, Deadline: &deadline})

	logger.Shared().Infof(prefix(id)+"safety check, respond within %v", c.config.GracePeriod)
}

func (c *Controller) graceExpired(id string, token uint64) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.id != id || s.graceToken != token || s.state != AwaitingCheck {
		c.mu.Unlock()
		stale(id, "grace expiry")
		return
	}
	s.graceTimer = nil
	effects := c.escalateLocked(s, trigger.SourceTimeout)
	c.mu.Unlock()

	logger.Shared().Warn(prefix(id) + "safety check missed")
	effects.run()
}

func (c *Controller) tick(id string) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.id != id || !s.state.Live() {
		c.mu.Unlock()
		stale(id, "tick")
		return
	}

	now := c.clock.Now()
	elapsed := now.Sub(s.startedAt)
	remaining := c.remaining(elapsed)

	signal := Signal{Kind: SignalTick, At: now, SessionID: id}
	setTimer(&signal, elapsed, remaining)
	c.hub.Publish(signal)

	if remaining == nil || *remaining > 0 || s.state != Active {
		c.mu.Unlock()
		return
	}

	effects := c.finishLocked(s, Completed, "")
	c.hub.Publish(Signal{Kind: SignalPlayTone, At: now, SessionID: id, Tone: ToneSuccess})
	c.mu.Unlock()

	logger.Shared().Info(prefix(id) + "walk completed")
	effects.run()
}

// ---------------------------------------------------------------------------------//
// Location
// --------------------------------------------------------------------------------//

func (c *Controller) locate(ctx context.Context, cancel context.CancelFunc, id string) {
	defer cancel()

	fix, err := c.locator.Current(ctx)
	if err != nil {
		logger.Shared().Warnf(prefix(id)+"location unavailable: %v", err)
		return
	}
	c.updateLocation(id, fix)
}

func (c *Controller) watch(id string) {
	watcher, ok := c.locator.(location.Watcher)
	if !ok {
		return
	}
	stop := watcher.Watch(func(fix location.Fix) { c.updateLocation(id, fix) })

	c.mu.Lock()
	if s := c.session; s != nil && s.id == id && s.state.Live() {
		s.stopWatch = stop
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	stop()
}

// ObserveLocation records a fix reported outside a walk's own location requests,
// so the last known position stays current while idle.
func (c *Controller) ObserveLocation(fix location.Fix) {
	c.mu.Lock()
	id := ""
	if c.session != nil {
		id = c.session.id
	}
	c.mu.Unlock()

	c.updateLocation(id, fix)
}

// updateLocation feeds the tracker and, for the live session, the distance
// walked.
func (c *Controller) updateLocation(id string, fix location.Fix) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tracker.Update(fix) {
		return
	}

	s := c.session
	if s == nil || s.id != id {
		return
	}
	if s.lastFix != nil {
		s.distanceKm += location.Distance(*s.lastFix, fix)
	}
	stored := fix
	s.lastFix = &stored
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

type effects []func()

func (e effects) run() {
	for _, effect := range e {
		effect()
	}
}

func (c *Controller) stateLocked() State {
	if c.session != nil {
		return c.session.state
	}
	if c.last != nil {
		return c.last.State
	}
	return Idle
}

func (c *Controller) remaining(elapsed time.Duration) *time.Duration {
	if !c.config.Timed() {
		return nil
	}
	remaining := c.config.WalkDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (c *Controller) scheduleCheckLocked(s *session) {
	c.tokens++
	token := c.tokens
	id := s.id
	s.checkToken = token
	s.checkTimer = c.clock.AfterFunc(c.config.CheckInterval, func() { c.safetyCheck(id, token) })
}

func (c *Controller) snapshotLocked(s *session, now time.Time) Snapshot {
	startedAt := s.startedAt
	elapsed := now.Sub(startedAt)
	remaining := c.remaining(elapsed)

	snapshot := Snapshot{
		ID:              s.id,
		State:           s.state,
		StartedAt:       &startedAt,
		ChecksPerformed: s.checks,
		Elapsed:         elapsed,
		ElapsedSeconds:  int64(elapsed / time.Second),
		Timer:           FormatTimer(elapsed),
		Location:        c.tracker.Last(),
		DistanceKm:      s.distanceKm,
	}
	if remaining != nil {
		seconds := int64(*remaining / time.Second)
		snapshot.Remaining = remaining
		snapshot.RemainingSeconds = &seconds
		snapshot.Timer = FormatTimer(*remaining)
	}
	if !s.lastCheckAt.IsZero() {
		lastCheckAt := s.lastCheckAt
		snapshot.LastCheckAt = &lastCheckAt
	}
	if s.state == AwaitingCheck {
		deadline := s.deadline
		snapshot.PendingCheckDeadline = &deadline
	}
	return snapshot
}

// finishLocked moves s into a terminal state, cancelling everything it
// scheduled. The returned effects must run after the lock is released.
func (c *Controller) finishLocked(s *session, state State, source trigger.Source) effects {
	now := c.clock.Now()
	from := s.state

	stopTimer(&s.checkTimer)
	stopTimer(&s.graceTimer)
	stopTimer(&s.tickTimer)
	s.checkToken, s.graceToken = 0, 0
	if s.cancelLocate != nil {
		s.cancelLocate()
		s.cancelLocate = nil
	}
	stopWatch := s.stopWatch
	s.stopWatch = nil

	s.state = state
	s.deadline = time.Time{}

	snapshot := c.snapshotLocked(s, now)
	snapshot.EndedAt = &now
	c.last = &snapshot
	c.session = nil

	if from == AwaitingCheck {
		c.hub.Publish(Signal{Kind: SignalHideCheckPrompt, At: now, SessionID: s.id})
	}
	c.hub.Publish(Signal{Kind: SignalStateChanged, At: now, SessionID: s.id, From: from, State: state})

	summary := Summary{
		SessionID:       s.id,
		StartedAt:       s.startedAt,
		EndedAt:         now,
		Duration:        now.Sub(s.startedAt),
		FinalState:      state,
		ChecksPerformed: s.checks,
		DistanceKm:      s.distanceKm,
		Source:          source,
	}
	if c.escalation != nil && state == Emergency {
		summary.AlertID = c.escalation.Alert.ID
	}

	var out effects
	if stopWatch != nil {
		out = append(out, stopWatch)
	}
	if c.recorder != nil && !s.quick {
		out = append(out, func() {
			if err := c.recorder.RecordWalk(summary); err != nil {
				logger.Shared().Errorf(prefix(s.id)+"recording walk: %v", err)
			}
		})
	}
	return out
}

// escalateLocked composes the one alert of this session and ends it in
// Emergency. Delivery and logging happen in the returned effects.
func (c *Controller) escalateLocked(s *session, source trigger.Source) effects {
	now := c.clock.Now()
	emergency := alert.Compose(c.newID(), s.profile, s.contacts, c.tracker.Last(), source, now)
	escalation := &Escalation{Alert: emergency}
	c.escalation = escalation

	out := c.finishLocked(s, Emergency, source)
	c.hub.Publish(Signal{Kind: SignalPlayTone, At: now, SessionID: s.id, Tone: ToneAlarm})
	c.hub.Publish(Signal{Kind: SignalShowEmergencyScreen, At: now, SessionID: s.id, Alert: &emergency})

	id := s.id
	out = append(out, func() {
		logg := logger.Shared()
		logg.Warnf(prefix(id)+"EMERGENCY (%v)", source)
		for _, line := range emergency.Summary() {
			logg.Warn(prefix(id) + line)
		}

		if c.recorder != nil {
			if err := c.recorder.RecordEmergency(emergency); err != nil {
				logg.Errorf(prefix(id)+"recording emergency: %v", err)
			}
		}

		if c.notifier == nil {
			logg.Warn(prefix(id) + "no notifier configured, alert not delivered")
			return
		}
		delivery := c.notifier.Send(context.Background(), emergency)

		c.mu.Lock()
		escalation.Delivery = delivery
		c.mu.Unlock()
	})
	return out
}

func stopTimer(timer *clock.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

func stale(id, transition string) {
	logger.Shared().Debugf(prefix(id)+"stale %v ignored", transition)
}

func prefix(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return colors.Yellow(fmt.Sprintf("[walk %s] ", id))
}
