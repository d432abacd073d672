package trigger

import (
	"context"
	"strings"
	"sync"

	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
)

const DefaultKeyword = "help"

// SpeechRecognizer streams recognised utterance fragments until ctx ends.
type SpeechRecognizer interface {
	Listen(ctx context.Context) (<-chan string, error)
}

// VoiceDetector listens for a keyword and fires a single emergency trigger per
// activation.
type VoiceDetector struct {
	mu         sync.Mutex
	keyword    string
	recognizer SpeechRecognizer
	target     Target
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewVoiceDetector(recognizer SpeechRecognizer, target Target) *VoiceDetector {
	return &VoiceDetector{keyword: DefaultKeyword, recognizer: recognizer, target: target}
}

// Enable starts listening. Enabling an active detector is a no-op.
func (d *VoiceDetector) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return nil
	}
	if d.recognizer == nil {
		return ErrUnsupported
	}

	ctx, cancel := context.WithCancel(context.Background())
	fragments, err := d.recognizer.Listen(ctx)
	if err != nil {
		cancel()
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(ctx, fragments, d.done)

	logger.Shared().Info(colors.Yellow("[voice] ") + "listening for keyword")
	return nil
}

// Disable stops listening and waits for the listener to exit.
func (d *VoiceDetector) Disable() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *VoiceDetector) Toggle() (bool, error) {
	if d.Enabled() {
		d.Disable()
		return false, nil
	}
	if err := d.Enable(); err != nil {
		return false, err
	}
	return true, nil
}

func (d *VoiceDetector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Matches reports whether fragment contains the keyword, ignoring case.
func (d *VoiceDetector) Matches(fragment string) bool {
	return strings.Contains(strings.ToLower(fragment), d.keyword)
}

func (d *VoiceDetector) loop(ctx context.Context, fragments <-chan string, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case fragment, ok := <-fragments:
			if !ok {
				d.release(done)
				return
			}
			if !d.Matches(fragment) {
				continue
			}

			if !d.release(done) {
				return
			}
			logger.Shared().Warn(colors.Red("[voice] ") + "keyword detected")
			if d.target != nil {
				d.target.ManualEmergency(SourceVoice)
			}
			return
		}
	}
}

// release ends the activation from inside the listener, leaving Disable with
// nothing to wait on.
func (d *VoiceDetector) release(done chan struct{}) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != done {
		return false
	}
	d.cancel()
	d.cancel, d.done = nil, nil
	return true
}
