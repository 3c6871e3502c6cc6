package twilio

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/shared"
)

const COUNTRY_CODE = "+91"

var logg = logger.NewLogger()

// ClientWrapper sends SMS & places calls. Without credentials it runs in
// log-only mode and every send succeeds.
type ClientWrapper struct {
	client  *twilio.RestClient
	config  shared.TwilioConfig
	logOnly bool
}

func NewClient(config shared.TwilioConfig) *ClientWrapper {
	if config.AccountSid == "" || config.AuthToken == "" {
		logg.Warn(colors.Yellow("twilio credentials not set, SMS & calls will only be logged"))
		return &ClientWrapper{config: config, logOnly: true}
	}

	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{client: client, config: config}
}

func (cw *ClientWrapper) LogOnly() bool {
	return cw.logOnly
}

func (cw *ClientWrapper) SendMessage(ctx context.Context, to, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if cw.logOnly {
		logg.Infof("%s SMS to %s: %s", colors.Blue("[twilio]"), to, msg)
		return nil
	}

	params := &openapi.CreateMessageParams{}
	if cw.config.MessagingServiceSid != "" {
		params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	} else {
		params.SetFrom(cw.config.FromNumber)
	}
	params.SetTo(E164(to))
	params.SetBody(msg)

	resp, err := cw.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %v", err)
	}

	if resp.ErrorMessage != nil {
		return fmt.Errorf("failed to send SMS: %v", *resp.ErrorMessage)
	}

	return nil
}

// MakeCall rings 'to' & reads out 'say' if the call is picked up.
func (cw *ClientWrapper) MakeCall(ctx context.Context, to, say string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if cw.logOnly {
		logg.Infof("%s Missed call to %s: %s", colors.Blue("[twilio]"), to, say)
		return nil
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(E164(to))
	params.SetFrom(cw.config.FromNumber)
	params.SetTwiml(fmt.Sprintf("<Response><Say>%s</Say><Hangup/></Response>", html.EscapeString(say)))

	_, err := cw.client.ApiV2010.CreateCall(params)
	if err != nil {
		return fmt.Errorf("failed to place call: %v", err)
	}

	return nil
}

// E164 normalizes a local 10 digit number (spaces allowed) to +91XXXXXXXXXX.
func E164(phoneNumber string) string {
	number := strings.ReplaceAll(strings.TrimSpace(phoneNumber), " ", "")
	if strings.HasPrefix(number, "+") {
		return number
	}
	return COUNTRY_CODE + number
}
