package actionprovider

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioProvider sends a single SMS and reports the provider's message sid.
type TwilioProvider interface {
	SendSMS(ctx context.Context, to, message string) (sid string, err error)
}

// NewTwilioProvider returns a real Twilio-backed provider, or a simulated
// one when accountSID or authToken is empty.
func NewTwilioProvider(accountSID, authToken, fromNumber string) TwilioProvider {
	if accountSID == "" || authToken == "" {
		return simulatedTwilioProvider{}
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &realTwilioProvider{client: client, from: fromNumber}
}

type realTwilioProvider struct {
	client *twilio.RestClient
	from   string
}

func (p *realTwilioProvider) SendSMS(_ context.Context, to, message string) (string, error) {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(message)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio: send sms: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: send sms: no sid in response")
	}
	return *resp.Sid, nil
}

// simulatedTwilioProvider stands in for act.twilio when Twilio credentials
// are not configured.
type simulatedTwilioProvider struct{}

func (simulatedTwilioProvider) SendSMS(_ context.Context, to, _ string) (string, error) {
	return "SMsimulated-" + to, nil
}
