package actionprovider

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailProvider sends a single email and reports the provider's message id.
type EmailProvider interface {
	Send(ctx context.Context, to, subject, body string) (messageID string, err error)
}

// NewEmailProvider returns a real SendGrid-backed provider, or a simulated
// one when apiKey is empty.
func NewEmailProvider(apiKey, fromAddress string) EmailProvider {
	if apiKey == "" {
		return simulatedEmailProvider{}
	}
	return &realEmailProvider{apiKey: apiKey, from: fromAddress}
}

type realEmailProvider struct {
	apiKey string
	from   string
}

func (p *realEmailProvider) Send(ctx context.Context, to, subject, body string) (string, error) {
	from := mail.NewEmail("workflow engine", p.from)
	toEmail := mail.NewEmail("", to)
	msg := mail.NewSingleEmail(from, subject, toEmail, body, body)

	client := sendgrid.NewSendClient(p.apiKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("sendgrid: send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid: send: status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return messageID, nil
}

// simulatedEmailProvider stands in for act.email when no SMTP_API_KEY is
// configured.
type simulatedEmailProvider struct{}

func (simulatedEmailProvider) Send(_ context.Context, to, _, _ string) (string, error) {
	return "simulated-" + to, nil
}
