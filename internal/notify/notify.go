// Package notify delivers survey-close metric digests to chat platforms
// (Slack, Discord).
package notify

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// Notifier posts a digest to a single platform.
type Notifier interface {
	// Name identifies the platform, for logging.
	Name() string

	// Post delivers the digest.
	Post(ctx context.Context, digest Digest) error
}

// Digest is the survey-close summary pushed to chat. Scores are nil when the
// privacy threshold was not met; the digest then says so instead of showing
// numbers.
type Digest struct {
	TeamName        string
	SurveyID        uint
	RespondentCount int
	Disclosed       bool

	FlowScore             *float64
	FrictionScore         *float64
	SafetyScore           *float64
	PortfolioBalanceScore *float64
	Trend                 models.TrendDirection

	Opportunities []models.Opportunity
}

// BuildDigest assembles a digest from a metric result and the team's top
// opportunities.
func BuildDigest(teamName string, result *models.MetricResult, opportunities []models.Opportunity) Digest {
	return Digest{
		TeamName:              teamName,
		SurveyID:              result.SurveyID,
		RespondentCount:       result.RespondentCount,
		Disclosed:             result.MeetsPrivacyThreshold,
		FlowScore:             result.FlowScore,
		FrictionScore:         result.FrictionScore,
		SafetyScore:           result.SafetyScore,
		PortfolioBalanceScore: result.PortfolioBalanceScore,
		Trend:                 result.TrendDirection,
		Opportunities:         opportunities,
	}
}

// Fanout posts the digest to every notifier, collecting failures instead of
// stopping at the first. One unreachable platform must not block the others.
func Fanout(ctx context.Context, notifiers []Notifier, digest Digest) error {
	var failed []string
	for _, n := range notifiers {
		if err := n.Post(ctx, digest); err != nil {
			log.WithField("platform", n.Name()).WithError(err).Error("notify: digest post failed")
			failed = append(failed, n.Name())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: digest failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

// Title renders the digest headline.
func (d Digest) Title() string {
	return fmt.Sprintf("Survey results for %s", d.TeamName)
}

// Body renders the digest as plain text, the lowest common denominator both
// platforms accept.
func (d Digest) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d responses collected.\n", d.RespondentCount)

	if !d.Disclosed {
		b.WriteString("Not enough respondents yet to share scores. Results stay hidden until the privacy threshold is met.\n")
		return b.String()
	}

	for _, line := range d.scoreLines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Trend vs previous survey: %s\n", trendLabel(d.Trend))

	if len(d.Opportunities) > 0 {
		b.WriteString("Top opportunities:\n")
		for _, o := range d.Opportunities {
			fmt.Fprintf(&b, "  %.1f  %s\n", o.RICEScore, o.Title)
		}
	}
	return b.String()
}

func (d Digest) scoreLines() []string {
	lines := make([]string, 0, 4)
	add := func(name string, score *float64) {
		if score != nil {
			lines = append(lines, fmt.Sprintf("%s: %.0f/100", name, *score))
		}
	}
	add("Flow", d.FlowScore)
	add("Friction", d.FrictionScore)
	add("Safety", d.SafetyScore)
	add("Portfolio Balance", d.PortfolioBalanceScore)
	return lines
}

func trendLabel(t models.TrendDirection) string {
	switch t {
	case models.TrendUp:
		return "improving"
	case models.TrendDown:
		return "declining"
	default:
		return "stable"
	}
}
