package notify

import (
	"context"
	"fmt"
	"strings"
	"testing"

	slackapi "github.com/slack-go/slack"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

func disclosedDigest() Digest {
	flow, friction, safety, portfolio := 72.0, 65.0, 80.0, 58.0
	return Digest{
		TeamName:              "platform",
		SurveyID:              3,
		RespondentCount:       9,
		Disclosed:             true,
		FlowScore:             &flow,
		FrictionScore:         &friction,
		SafetyScore:           &safety,
		PortfolioBalanceScore: &portfolio,
		Trend:                 models.TrendUp,
		Opportunities: []models.Opportunity{
			{Title: "Upgrade tooling and automation", RICEScore: 5.0},
		},
	}
}

func TestDigestBody_Disclosed(t *testing.T) {
	body := disclosedDigest().Body()

	for _, want := range []string{
		"9 responses", "Flow: 72/100", "Friction: 65/100", "Safety: 80/100",
		"Portfolio Balance: 58/100", "improving", "Upgrade tooling",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestDigestBody_Withheld(t *testing.T) {
	digest := Digest{TeamName: "tiny", RespondentCount: 3, Disclosed: false}
	body := digest.Body()

	if !strings.Contains(body, "privacy threshold") {
		t.Errorf("withheld body missing privacy notice:\n%s", body)
	}
	if strings.Contains(body, "/100") {
		t.Errorf("withheld body leaks scores:\n%s", body)
	}
}

// failingNotifier always errors, for fanout tests.
type failingNotifier struct{ name string }

func (f *failingNotifier) Name() string                       { return f.name }
func (f *failingNotifier) Post(context.Context, Digest) error { return fmt.Errorf("down") }

// recordingNotifier captures the digest it was given.
type recordingNotifier struct {
	name string
	got  *Digest
}

func (r *recordingNotifier) Name() string { return r.name }
func (r *recordingNotifier) Post(_ context.Context, d Digest) error {
	r.got = &d
	return nil
}

func TestFanout_ContinuesPastFailures(t *testing.T) {
	rec := &recordingNotifier{name: "discord"}
	err := Fanout(context.Background(), []Notifier{
		&failingNotifier{name: "slack"},
		rec,
	}, disclosedDigest())

	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !strings.Contains(err.Error(), "slack") {
		t.Errorf("error = %q, want to name slack", err.Error())
	}
	if rec.got == nil {
		t.Error("second notifier skipped after first failure")
	}
}

// mockSlackClient records the channel and options it was called with.
type mockSlackClient struct {
	channel string
	calls   int
	err     error
}

func (m *mockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	return "", "", m.err
}

func TestSlackNotifier_Post(t *testing.T) {
	mock := &mockSlackClient{}
	n, err := NewSlack(SlackOpts{Client: mock, ChannelID: "C123", Token: "ignored-with-mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := n.Post(context.Background(), disclosedDigest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 1 || mock.channel != "C123" {
		t.Errorf("mock = %+v, want one call to C123", mock)
	}
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack(SlackOpts{ChannelID: "C123"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := NewSlack(SlackOpts{Token: "xoxb-1"}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{ChannelID: "123"}); err == nil {
		t.Error("expected error without token or session")
	}
	if _, err := NewDiscord(DiscordOpts{Token: "abc"}); err == nil {
		t.Error("expected error without channel")
	}
}
