package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts digests to a Slack channel via the Web API.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a SlackNotifier.
type SlackOpts struct {
	Token     string // xoxb-... Slack bot token
	ChannelID string // channel to post digests to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a SlackNotifier.
func NewSlack(opts SlackOpts) (*SlackNotifier, error) {
	if opts.Client == nil && opts.Token == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}

	n := &SlackNotifier{channelID: opts.ChannelID}
	if opts.Client != nil {
		n.client = opts.Client
	} else {
		n.client = slackapi.New(opts.Token)
	}
	return n, nil
}

func (n *SlackNotifier) Name() string { return "slack" }

// Post delivers the digest as an attachment so scores render as side-by-side
// fields.
func (n *SlackNotifier) Post(ctx context.Context, digest Digest) error {
	attachment := slackapi.Attachment{
		Title: digest.Title(),
		Text:  digest.Body(),
		Color: slackColor(digest),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}

func slackColor(digest Digest) string {
	if !digest.Disclosed {
		return "#cccccc"
	}
	switch digest.Trend {
	case "up":
		return "#36a64f"
	case "down":
		return "#d00000"
	default:
		return "#439fe0"
	}
}
