package actionprovider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

// SlackProvider posts a message to a channel and reports where it landed.
type SlackProvider interface {
	PostMessage(ctx context.Context, channel, message string) (timestamp string, err error)
}

// NewSlackProvider returns a real token-backed provider, or a simulated one
// when token is empty.
func NewSlackProvider(token string) SlackProvider {
	if token == "" {
		return simulatedSlackProvider{}
	}
	return &realSlackProvider{client: slack.New(token)}
}

type realSlackProvider struct {
	client *slack.Client
}

func (p *realSlackProvider) PostMessage(ctx context.Context, channel, message string) (string, error) {
	_, timestamp, err := p.client.PostMessageContext(ctx, channel, slack.MsgOptionText(message, false))
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return timestamp, nil
}

// simulatedSlackProvider stands in for act.slack when no SLACK_TOKEN is
// configured: it synthesizes a plausible timestamp without calling out.
type simulatedSlackProvider struct{}

func (simulatedSlackProvider) PostMessage(_ context.Context, _, _ string) (string, error) {
	return strconv.FormatInt(time.Now().Unix(), 10) + ".000000", nil
}
