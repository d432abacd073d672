package notify

import (
	"context"
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
)

const DefaultSimulatedDelay = 500 * time.Millisecond

// Simulated pretends to deliver messages: it waits Delay, then logs.
type Simulated struct {
	Delay time.Duration
}

func (s Simulated) SendSMS(ctx context.Context, to alert.Contact, body string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	logger.Shared().Infof(colors.Blue("[simulated] ")+"📱 SMS sent to %v: %v", to.Name, to.Phone)
	return nil
}

func (s Simulated) SendEmail(ctx context.Context, to alert.Contact, email alert.EmailPayload) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	logger.Shared().Infof(colors.Blue("[simulated] ")+"📧 Email %q sent to %v <%v>", email.Subject, to.Name, to.Email)
	return nil
}

func (s Simulated) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
