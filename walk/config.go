package walk

import (
	"fmt"
	"time"
)

const (
	DefaultGracePeriod            = 30 * time.Second
	DefaultTickInterval           = time.Second
	DefaultLocationTimeout        = 10 * time.Second
	DefaultRecurringCheckInterval = 5 * time.Minute
	DefaultTimedCheckInterval     = 3 * time.Minute
	DefaultWalkDuration           = 5 * time.Minute
)

// Config holds every timing knob of a walk. A zero WalkDuration means the walk
// runs until stopped, with recurring checks.
type Config struct {
	CheckInterval   time.Duration
	GracePeriod     time.Duration
	TickInterval    time.Duration
	WalkDuration    time.Duration
	LocationTimeout time.Duration
}

// RecurringConfig checks in every five minutes until the walk is stopped.
func RecurringConfig() Config {
	return Config{
		CheckInterval:   DefaultRecurringCheckInterval,
		GracePeriod:     DefaultGracePeriod,
		TickInterval:    DefaultTickInterval,
		LocationTimeout: DefaultLocationTimeout,
	}
}

// TimedConfig is a five minute walk with a check after three.
func TimedConfig() Config {
	return Config{
		CheckInterval:   DefaultTimedCheckInterval,
		GracePeriod:     DefaultGracePeriod,
		TickInterval:    DefaultTickInterval,
		WalkDuration:    DefaultWalkDuration,
		LocationTimeout: DefaultLocationTimeout,
	}
}

func (c Config) Timed() bool {
	return c.WalkDuration > 0
}

func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"check interval":   c.CheckInterval,
		"grace period":     c.GracePeriod,
		"tick interval":    c.TickInterval,
		"walk duration":    c.WalkDuration,
		"location timeout": c.LocationTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultRecurringCheckInterval
		if c.Timed() {
			c.CheckInterval = DefaultTimedCheckInterval
		}
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = DefaultLocationTimeout
	}
	return c
}

// FormatTimer renders d as m:ss, or h:mm:ss from one hour up.
func FormatTimer(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
