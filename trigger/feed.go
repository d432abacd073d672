package trigger

import (
	"context"
	"sync"
)

// Feed is a MotionSensor and SpeechRecognizer driven by pushed readings, for
// clients that capture sensor data themselves and forward it.
type Feed struct {
	mu       sync.Mutex
	buffer   int
	motion   map[int]chan Sample
	speech   map[int]chan string
	nextID   int
	noMotion bool
	noSpeech bool
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{
		buffer: buffer,
		motion: make(map[int]chan Sample),
		speech: make(map[int]chan string),
	}
}

// DisableMotion makes Subscribe report ErrUnsupported, as on a host without an
// accelerometer.
func (f *Feed) DisableMotion() {
	f.mu.Lock()
	f.noMotion = true
	f.mu.Unlock()
}

// DisableSpeech makes Listen report ErrUnsupported.
func (f *Feed) DisableSpeech() {
	f.mu.Lock()
	f.noSpeech = true
	f.mu.Unlock()
}

func (f *Feed) Subscribe() (<-chan Sample, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.noMotion {
		return nil, nil, ErrUnsupported
	}

	id := f.nextID
	f.nextID++
	ch := make(chan Sample, f.buffer)
	f.motion[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.motion, id)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (f *Feed) Listen(ctx context.Context) (<-chan string, error) {
	f.mu.Lock()
	if f.noSpeech {
		f.mu.Unlock()
		return nil, ErrUnsupported
	}

	id := f.nextID
	f.nextID++
	ch := make(chan string, f.buffer)
	f.speech[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.speech, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch, nil
}

// PushSample fans sample out to every subscriber. Full subscribers miss it.
func (f *Feed) PushSample(sample Sample) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, ch := range f.motion {
		select {
		case ch <- sample:
			delivered++
		default:
		}
	}
	return delivered
}

// PushUtterance fans a recognised fragment out to every listener.
func (f *Feed) PushUtterance(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, ch := range f.speech {
		select {
		case ch <- fragment:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live motion and speech subscriptions.
func (f *Feed) Subscribers() (motion, speech int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.motion), len(f.speech)
}
