// Package notify hands emergency alerts to contacts over SMS and email. Every
// message is attempted once; failures are reported, never retried.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
	"golang.org/x/sync/errgroup"
)

const (
	PENDING_DELIVERY = "pending"
	SENT_DELIVERY    = "sent"
	FAILED_DELIVERY  = "failed"
	SKIPPED_DELIVERY = "skipped"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

var ErrNoAddress = errors.New("contact has no address for channel")

type SMSSender interface {
	SendSMS(ctx context.Context, to alert.Contact, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to alert.Contact, email alert.EmailPayload) error
}

// Result tracks one message to one contact.
type Result struct {
	Contact alert.Contact
	Channel Channel

	mu     sync.Mutex
	status string
	err    error
	done   chan struct{}
}

func newResult(contact alert.Contact, channel Channel) *Result {
	return &Result{Contact: contact, Channel: channel, status: PENDING_DELIVERY, done: make(chan struct{})}
}

func (r *Result) finish(status string, err error) {
	r.mu.Lock()
	r.status, r.err = status, err
	r.mu.Unlock()
	close(r.done)
}

// Done is closed once the message was sent, failed or skipped.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Result) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Wait blocks until the result settles or ctx ends. A skipped message is not an
// error.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is a point-in-time view of a Result.
type Outcome struct {
	Contact string  `json:"contact"`
	Channel Channel `json:"channel"`
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
}

// Delivery groups the results of one alert.
type Delivery struct {
	AlertID string
	Results []*Result
}

// Wait blocks until every result settles and returns the first failure.
func (d *Delivery) Wait(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, result := range d.Results {
		result := result
		g.Go(func() error {
			if err := result.Wait(ctx); err != nil {
				return fmt.Errorf("%s to %s: %w", result.Channel, result.Contact.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Delivery) Outcomes() []Outcome {
	outcomes := make([]Outcome, 0, len(d.Results))
	for _, result := range d.Results {
		outcome := Outcome{Contact: result.Contact.String(), Channel: result.Channel, Status: result.Status()}
		if err := result.Err(); err != nil {
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Service fans an alert out to its contacts. Contacts are handled concurrently;
// each contact gets its SMS before its email.
type Service struct {
	sms     SMSSender
	email   EmailSender
	observe func(*Result)
}

func NewService(sms SMSSender, email EmailSender) *Service {
	return &Service{sms: sms, email: email}
}

// OnResult registers fn to be called as each result settles.
func (s *Service) OnResult(fn func(*Result)) {
	s.observe = fn
}

// Send starts delivery and returns immediately.
func (s *Service) Send(ctx context.Context, emergency alert.EmergencyAlert) *Delivery {
	delivery := &Delivery{AlertID: emergency.ID}
	logg := logger.Shared()

	logg.Warnf(colors.Red("[notify] ")+"sending alert %v to %v contact(s)", emergency.ID, len(emergency.Contacts))

	for _, contact := range emergency.Contacts {
		smsResult := newResult(contact, ChannelSMS)
		emailResult := newResult(contact, ChannelEmail)
		delivery.Results = append(delivery.Results, smsResult, emailResult)

		go func(contact alert.Contact) {
			s.settle(smsResult, s.sendSMS(ctx, contact, emergency.SMSText))

			if contact.Email == "" {
				s.skip(emailResult)
				return
			}
			s.settle(emailResult, s.sendEmail(ctx, contact, emergency.Email))
		}(contact)
	}

	return delivery
}

func (s *Service) sendSMS(ctx context.Context, contact alert.Contact, body string) error {
	if s.sms == nil {
		return fmt.Errorf("no sms transport configured")
	}
	if contact.Phone == "" {
		return ErrNoAddress
	}
	return s.sms.SendSMS(ctx, contact, body)
}

func (s *Service) sendEmail(ctx context.Context, contact alert.Contact, email alert.EmailPayload) error {
	if s.email == nil {
		return fmt.Errorf("no email transport configured")
	}
	return s.email.SendEmail(ctx, contact, email)
}

func (s *Service) settle(result *Result, err error) {
	logg := logger.Shared()
	if err != nil {
		logg.Errorf(colors.Red("[notify] ")+"%v to %v failed: %v", result.Channel, result.Contact, err)
		result.finish(FAILED_DELIVERY, err)
	} else {
		logg.Infof(colors.Green("[notify] ")+"%v sent to %v", result.Channel, result.Contact)
		result.finish(SENT_DELIVERY, nil)
	}
	s.notify(result)
}

func (s *Service) skip(result *Result) {
	logger.Shared().Infof(colors.Yellow("[notify] ")+"%v skipped for %v, no address", result.Channel, result.Contact)
	result.finish(SKIPPED_DELIVERY, nil)
	s.notify(result)
}

func (s *Service) notify(result *Result) {
	if s.observe != nil {
		s.observe(result)
	}
}
