package trigger

import (
	"math"
	"sync"
	"time"

	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
)

const (
	DefaultShakeThreshold = 15.0
	DefaultShakeDebounce  = 500 * time.Millisecond
)

// Sample is one accelerometer reading, gravity included.
type Sample struct {
	X, Y, Z float64
	At      time.Time
}

func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// MotionSensor streams accelerometer samples. Calling cancel ends the
// subscription and closes samples.
type MotionSensor interface {
	Subscribe() (samples <-chan Sample, cancel func(), err error)
}

type ShakeConfig struct {
	Threshold float64       `mapstructure:"threshold" validate:"omitempty,gt=0"`
	Debounce  time.Duration `mapstructure:"debounce" validate:"omitempty,min=0"`
}

// ShakeDetector turns a burst of strong motion into an emergency trigger.
type ShakeDetector struct {
	mu        sync.Mutex
	config    ShakeConfig
	sensor    MotionSensor
	target    Target
	lastShake time.Time
	triggered bool
	cancel    func()
	done      chan struct{}
}

func NewShakeDetector(config ShakeConfig, sensor MotionSensor, target Target) *ShakeDetector {
	if config.Threshold <= 0 {
		config.Threshold = DefaultShakeThreshold
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultShakeDebounce
	}
	return &ShakeDetector{config: config, sensor: sensor, target: target}
}

// Enable starts reading from the sensor. Enabling twice is a no-op.
func (d *ShakeDetector) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return nil
	}
	if d.sensor == nil {
		return ErrUnsupported
	}

	samples, cancel, err := d.sensor.Subscribe()
	if err != nil {
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(samples, d.done)

	logger.Shared().Info(colors.Yellow("[shake] ") + "shake detection active")
	return nil
}

// Disable ends the sensor subscription and waits for the reader to exit.
func (d *ShakeDetector) Disable() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	logger.Shared().Info(colors.Yellow("[shake] ") + "shake detection inactive")
}

// Toggle flips the detector and reports whether it is now enabled.
func (d *ShakeDetector) Toggle() (bool, error) {
	if d.Enabled() {
		d.Disable()
		return false, nil
	}
	if err := d.Enable(); err != nil {
		return false, err
	}
	return true, nil
}

func (d *ShakeDetector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Process applies one sample and reports whether it produced a trigger.
func (d *ShakeDetector) Process(sample Sample) bool {
	d.mu.Lock()
	if sample.Magnitude() <= d.config.Threshold {
		d.mu.Unlock()
		return false
	}
	if d.triggered && sample.At.Sub(d.lastShake) < d.config.Debounce {
		d.mu.Unlock()
		return false
	}
	d.lastShake = sample.At
	d.triggered = true
	d.mu.Unlock()

	logger.Shared().Warnf(colors.Red("[shake] ")+"shake detected, magnitude=%.2f", sample.Magnitude())
	if d.target != nil {
		d.target.ManualEmergency(SourceShake)
	}
	return true
}

func (d *ShakeDetector) loop(samples <-chan Sample, done chan struct{}) {
	defer close(done)
	for sample := range samples {
		if sample.At.IsZero() {
			sample.At = time.Now()
		}
		d.Process(sample)
	}
}
