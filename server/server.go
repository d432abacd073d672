package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Daskott/walkwithme/clock"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/notify"
	"github.com/Daskott/walkwithme/server/cron"
	"github.com/Daskott/walkwithme/server/gstorage"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/server/models"
	"github.com/Daskott/walkwithme/server/twilio"
	"github.com/Daskott/walkwithme/shared"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/Daskott/walkwithme/walk"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var (
	logg     = logger.Shared()
	validate = validator.New()
)

func init() {
	if err := RegisterValidators(validate); err != nil {
		logg.Fatal(err)
	}
}

// Server owns one walk controller and everything feeding it.
type Server struct {
	config     shared.ServerConfig
	controller *walk.Controller
	store      *models.Store
	locations  *location.Feed
	sensors    *trigger.Feed
	shake      *trigger.ShakeDetector
	voice      *trigger.VoiceDetector
	metrics    *Metrics
	router     *mux.Router

	stopMetrics func()
	stopWatch   func()
}

// Options replace the parts of a Server that talk to the outside world.
type Options struct {
	Clock clock.Clock
	SMS   notify.SMSSender
	Email notify.EmailSender
	NewID func() string
}

// New wires a Server. The db must already be migrated.
func New(config shared.ServerConfig, opts Options) *Server {
	hub := walk.NewHub()
	metrics := NewMetrics(hub)
	store := models.NewStore()

	locations := location.NewFeed(config.Location.MaxAge)
	var provider location.Provider = locations
	if fallback := config.Location.Fallback; fallback != nil {
		provider = location.WithFallback(locations, location.Fix{Latitude: fallback.Latitude, Longitude: fallback.Longitude})
	}

	simulated := notify.Simulated{Delay: config.Notify.SimulatedDelay}
	if opts.SMS == nil {
		opts.SMS = simulated
	}
	if opts.Email == nil {
		opts.Email = simulated
	}
	notifier := notify.NewService(opts.SMS, opts.Email)
	notifier.OnResult(metrics.RecordDelivery)

	controller := walk.NewController(walkConfig(config.Walk), walk.Options{
		Clock:    opts.Clock,
		Location: provider,
		Store:    store,
		Recorder: store,
		Notifier: notifier,
		Hub:      hub,
		NewID:    opts.NewID,
	})

	sensors := trigger.NewFeed(64)
	s := &Server{
		config:     config,
		controller: controller,
		store:      store,
		locations:  locations,
		sensors:    sensors,
		shake:      trigger.NewShakeDetector(config.Shake, sensors, controller),
		voice:      trigger.NewVoiceDetector(sensors, controller),
		metrics:    metrics,
	}
	s.stopMetrics = metrics.Watch(hub)
	s.stopWatch = locations.Watch(controller.ObserveLocation)
	s.router = s.newRouter()

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Controller() *walk.Controller {
	return s.controller
}

// Close stops every detector and ends the current walk.
func (s *Server) Close() {
	s.shake.Disable()
	s.voice.Disable()
	s.controller.Stop()
	s.stopWatch()
	s.stopMetrics()
}

// Start runs the API until SIGINT or SIGTERM.
func Start(config shared.ServerConfig, devMode, testMode bool) {
	logg = logger.Configure(config.Logging)

	dataDir := config.Sqlite.Dir
	if dataDir == "" {
		dataDir = configDirectory(devMode)
	}

	var backups FileStore
	storageConfig := config.Google.Storage
	if storageConfig.EnableSqliteBackupAndSync && !testMode {
		gs, err := gstorage.NewGStorage(config.Google.ApplicationCredentials, storageConfig.Bucket, storageConfig.Prefix)
		fatalOnError(err)
		defer gs.Close()

		backups = gs
		fatalOnError(restoreSqliteDb(context.Background(), backups, dataDir))
	}

	fatalOnError(models.AutoMigrate(dataDir))

	scheduler := cron.NewScheduler(config.Cron.TimeZone)
	if backups != nil {
		fatalOnError(scheduleSqliteBackup(scheduler, storageConfig.SqliteBackupSchedule, backups, dataDir))
	}

	opts := Options{Clock: clock.NewCronClock(scheduler)}
	if config.Twilio.Enabled {
		opts.SMS = twilio.NewClient(config.Twilio, testMode)
	}

	s := New(config, opts)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", config.Listener.Port),
		Handler: s.Handler(),
	}

	go serve(server)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	received := <-stop
	logg.Infow(colors.Yellow("shutting down"), zap.String("signal", received.String()))

	cleanup(s, scheduler, server, backups, dataDir)
}

func walkConfig(config shared.WalkConfig) walk.Config {
	base := walk.RecurringConfig()
	if config.Mode == shared.TIMED_WALK {
		base = walk.TimedConfig()
	}

	if config.CheckInterval > 0 {
		base.CheckInterval = config.CheckInterval
	}
	if config.GracePeriod > 0 {
		base.GracePeriod = config.GracePeriod
	}
	if config.TickInterval > 0 {
		base.TickInterval = config.TickInterval
	}
	if config.LocationTimeout > 0 {
		base.LocationTimeout = config.LocationTimeout
	}
	if config.WalkDuration > 0 {
		base.WalkDuration = config.WalkDuration
	}

	return base
}
