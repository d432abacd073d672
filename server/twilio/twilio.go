package twilio

import (
	"context"
	"fmt"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/shared"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ClientWrapper sends alert SMS through Twilio. In test mode messages are only
// logged.
type ClientWrapper struct {
	client   *twilio.RestClient
	config   shared.TwilioConfig
	testMode bool
}

func NewClient(config shared.TwilioConfig, testMode bool) *ClientWrapper {
	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{
		client:   client,
		config:   config,
		testMode: testMode,
	}
}

func (cw *ClientWrapper) SendSMS(ctx context.Context, to alert.Contact, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if cw.testMode {
		logger.Shared().Infof(colors.Blue("[twilio] ")+"test mode, sms to %v: %q", to.Phone, body)
		return nil
	}

	params := &openapi.CreateMessageParams{}
	if cw.config.MessagingServiceSid != "" {
		params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	} else {
		params.SetFrom(cw.config.From)
	}
	params.SetTo(to.Phone)
	params.SetBody(body)

	resp, err := cw.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("SendSMS: %v", err)
	}

	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return fmt.Errorf("SendSMS: %v", *resp.ErrorMessage)
	}

	return nil
}
