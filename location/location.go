package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const earthRadiusKm = 6371

// ErrUnavailable is returned (wrapped) whenever a position could not be obtained.
var ErrUnavailable = errors.New("location unavailable")

// Fix is a single position reading.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Provider produces a single position on demand.
type Provider interface {
	Current(ctx context.Context) (Fix, error)
}

// Watcher is implemented by providers that can push a stream of positions.
// Calling the returned function ends the subscription.
type Watcher interface {
	Watch(onFix func(Fix)) (cancel func())
}

// Tracker holds the last known good fix. It only ever moves forward in time.
type Tracker struct {
	mu   sync.RWMutex
	last *Fix
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update stores fix if it is strictly newer than the current one.
func (t *Tracker) Update(fix Fix) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last != nil && !fix.CapturedAt.After(t.last.CapturedAt) {
		return false
	}

	stored := fix
	t.last = &stored
	return true
}

// Last returns a copy of the last known fix, or nil.
func (t *Tracker) Last() *Fix {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.last == nil {
		return nil
	}
	fix := *t.last
	return &fix
}

// Reset forgets the last known fix.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = nil
	t.mu.Unlock()
}

type fallbackProvider struct {
	provider Provider
	fix      Fix
	now      func() time.Time
}

// watchingFallback keeps the Watcher side of the wrapped provider visible.
type watchingFallback struct {
	*fallbackProvider
	watcher Watcher
}

func (w *watchingFallback) Watch(onFix func(Fix)) func() {
	return w.watcher.Watch(onFix)
}

// WithFallback returns a Provider that answers with fix whenever p fails. If p
// is also a Watcher, so is the result.
func WithFallback(p Provider, fix Fix) Provider {
	fallback := &fallbackProvider{provider: p, fix: fix, now: time.Now}
	if watcher, ok := p.(Watcher); ok {
		return &watchingFallback{fallbackProvider: fallback, watcher: watcher}
	}
	return fallback
}

func (f *fallbackProvider) Current(ctx context.Context) (Fix, error) {
	if f.provider != nil {
		fix, err := f.provider.Current(ctx)
		if err == nil {
			return fix, nil
		}
	}

	fix := f.fix
	fix.CapturedAt = f.now()
	return fix, nil
}

// Unsupported is a Provider for hosts without any position source.
type Unsupported struct{}

func (Unsupported) Current(context.Context) (Fix, error) {
	return Fix{}, fmt.Errorf("geolocation not supported: %w", ErrUnavailable)
}

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Fix) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatCoordinates renders fix with six decimals for display.
func FormatCoordinates(fix *Fix) string {
	if fix == nil {
		return "Location unavailable"
	}
	return fmt.Sprintf("%.6f, %.6f", fix.Latitude, fix.Longitude)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
