package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	channel Channel
	to      string
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor string
	block   chan struct{}
}

func (r *recordingSender) SendSMS(ctx context.Context, to alert.Contact, body string) error {
	return r.record(ctx, ChannelSMS, to)
}

func (r *recordingSender) SendEmail(ctx context.Context, to alert.Contact, email alert.EmailPayload) error {
	return r.record(ctx, ChannelEmail, to)
}

func (r *recordingSender) record(ctx context.Context, channel Channel, to alert.Contact) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if to.Name == r.failFor {
		return errors.New("carrier rejected message")
	}
	r.sent = append(r.sent, sentMessage{channel: channel, to: to.Name})
	return nil
}

func (r *recordingSender) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

func testAlert(contacts ...alert.Contact) alert.EmergencyAlert {
	return alert.Compose("alert-1", alert.Profile{Name: "Ada", Phone: "+15550100"}, contacts, nil,
		trigger.SourceSOS, time.Date(2021, time.October, 1, 22, 0, 0, 0, time.UTC))
}

func TestSendReportsEveryChannel(t *testing.T) {
	sender := &recordingSender{}
	service := NewService(sender, sender)

	delivery := service.Send(context.Background(), testAlert(
		alert.Contact{Name: "Bea", Phone: "+15550101", Email: "bea@example.com"},
		alert.Contact{Name: "Cal", Phone: "+15550102"},
	))

	require.Len(t, delivery.Results, 4)
	assert.Equal(t, "alert-1", delivery.AlertID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, delivery.Wait(ctx))

	outcomes := delivery.Outcomes()
	assert.Equal(t, Outcome{Contact: "Bea (+15550101)", Channel: ChannelSMS, Status: SENT_DELIVERY}, outcomes[0])
	assert.Equal(t, Outcome{Contact: "Bea (+15550101)", Channel: ChannelEmail, Status: SENT_DELIVERY}, outcomes[1])
	assert.Equal(t, Outcome{Contact: "Cal (+15550102)", Channel: ChannelSMS, Status: SENT_DELIVERY}, outcomes[2])
	assert.Equal(t, Outcome{Contact: "Cal (+15550102)", Channel: ChannelEmail, Status: SKIPPED_DELIVERY}, outcomes[3])

	assert.ElementsMatch(t, []sentMessage{
		{ChannelSMS, "Bea"}, {ChannelEmail, "Bea"}, {ChannelSMS, "Cal"},
	}, sender.messages())
}

func TestSendSMSBeforeEmailPerContact(t *testing.T) {
	sender := &recordingSender{}
	delivery := NewService(sender, sender).Send(context.Background(), testAlert(
		alert.Contact{Name: "Bea", Phone: "+15550101", Email: "bea@example.com"},
	))

	require.NoError(t, delivery.Wait(context.Background()))
	assert.Equal(t, []sentMessage{{ChannelSMS, "Bea"}, {ChannelEmail, "Bea"}}, sender.messages())
}

func TestSendFailureIsIsolated(t *testing.T) {
	sender := &recordingSender{failFor: "Bea"}
	delivery := NewService(sender, sender).Send(context.Background(), testAlert(
		alert.Contact{Name: "Bea", Phone: "+15550101", Email: "bea@example.com"},
		alert.Contact{Name: "Cal", Phone: "+15550102", Email: "cal@example.com"},
	))

	for _, result := range delivery.Results {
		<-result.Done()
	}

	err := delivery.Wait(context.Background())
	assert.ErrorContains(t, err, "carrier rejected message")

	for _, result := range delivery.Results {
		if result.Contact.Name == "Bea" {
			assert.Equal(t, FAILED_DELIVERY, result.Status())
			assert.Error(t, result.Err())
		} else {
			assert.Equal(t, SENT_DELIVERY, result.Status())
			assert.NoError(t, result.Err())
		}
	}
}

func TestSendReturnsBeforeDelivery(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	delivery := NewService(sender, sender).Send(context.Background(), testAlert(
		alert.Contact{Name: "Bea", Phone: "+15550101"},
	))

	assert.Equal(t, PENDING_DELIVERY, delivery.Results[0].Status())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, delivery.Wait(ctx), context.DeadlineExceeded)

	close(sender.block)
	assert.NoError(t, delivery.Wait(context.Background()))
}

func TestSendObserver(t *testing.T) {
	var mu sync.Mutex
	settled := map[string]int{}

	service := NewService(Simulated{}, Simulated{})
	service.OnResult(func(result *Result) {
		mu.Lock()
		settled[result.Status()]++
		mu.Unlock()
	})

	delivery := service.Send(context.Background(), testAlert(alert.Contact{Name: "Cal", Phone: "+15550102"}))
	require.NoError(t, delivery.Wait(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return settled[SENT_DELIVERY] == 1 && settled[SKIPPED_DELIVERY] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSendWithoutTransport(t *testing.T) {
	delivery := NewService(nil, nil).Send(context.Background(), testAlert(
		alert.Contact{Name: "Bea", Phone: "+15550101", Email: "bea@example.com"},
	))

	assert.Error(t, delivery.Wait(context.Background()))
}

func TestSimulatedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Simulated{Delay: time.Hour}.SendSMS(ctx, alert.Contact{Name: "Bea"}, "body")
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, Simulated{Delay: time.Millisecond}.SendEmail(context.Background(), alert.Contact{Name: "Bea"}, alert.EmailPayload{}))
}
