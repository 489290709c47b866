// Package metrics aggregates per-respondent dimension scores into the four
// team metrics (Flow, Friction, Safety, Portfolio Balance), gated by the
// minimum-respondent privacy threshold.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/models"
)

// neutralScore substitutes for dimensions with no answers so a sparse pool
// still yields all four metrics.
const neutralScore = 50.0

// Contribution is one dimension's share of a metric, retained for UI
// drill-down.
type Contribution struct {
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Calculator computes metric results for surveys.
type Calculator struct {
	db       *gorm.DB
	min      int
	weights  map[models.MetricType]map[models.FrictionDimension]float64
	deadBand float64
}

// NewCalculator builds a Calculator from configuration. Metric weights are
// normalized so each metric's dimension weights sum to 1.
func NewCalculator(db *gorm.DB, cfg *config.Config) *Calculator {
	weights := make(map[models.MetricType]map[models.FrictionDimension]float64, len(cfg.Metrics.Weights))
	for metric, dims := range cfg.Metrics.Weights {
		var total float64
		for _, w := range dims {
			total += w
		}
		normalized := make(map[models.FrictionDimension]float64, len(dims))
		for dim, w := range dims {
			if total > 0 {
				normalized[models.FrictionDimension(dim)] = w / total
			}
		}
		weights[models.MetricType(metric)] = normalized
	}

	return &Calculator{
		db:       db,
		min:      cfg.Privacy.MinRespondents,
		weights:  weights,
		deadBand: cfg.Metrics.TrendDeadBand,
	}
}

// Recalculate computes and stores a fresh MetricResult for a survey. It is
// the hook the chat engine calls after a session completes.
func (c *Calculator) Recalculate(ctx context.Context, surveyID uint) error {
	_, err := c.Calculate(ctx, surveyID)
	return err
}

// Calculate runs one aggregation for a survey. The whole computation,
// including the response snapshot, runs in a single transaction so a
// concurrently submitted response is either fully counted or not at all.
// The result row is always written; when the privacy threshold is not met
// the four scores and breakdowns stay nil.
func (c *Calculator) Calculate(ctx context.Context, surveyID uint) (*models.MetricResult, error) {
	var result *models.MetricResult

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var survey models.Survey
		if err := tx.First(&survey, surveyID).Error; err != nil {
			return fmt.Errorf("load survey %d: %w", surveyID, err)
		}

		var responses []models.Response
		if err := tx.Preload("Answers").
			Where("survey_id = ? AND is_complete = ?", surveyID, true).
			Find(&responses).Error; err != nil {
			return fmt.Errorf("load responses: %w", err)
		}

		respondentCount := len(responses)
		meets := respondentCount >= c.min

		dimAverages := dimensionAverages(responses)

		result = &models.MetricResult{
			TeamID:                survey.TeamID,
			SurveyID:              surveyID,
			RespondentCount:       respondentCount,
			MeetsPrivacyThreshold: meets,
			TrendDirection:        models.TrendStable,
			CalculatedAt:          time.Now(),
		}

		if meets {
			flow, flowBD := c.score(models.MetricFlow, dimAverages)
			friction, frictionBD := c.score(models.MetricFriction, dimAverages)
			safety, safetyBD := c.score(models.MetricSafety, dimAverages)
			portfolio, portfolioBD := c.score(models.MetricPortfolioBalance, dimAverages)

			result.FlowScore = &flow
			result.FrictionScore = &friction
			result.SafetyScore = &safety
			result.PortfolioBalanceScore = &portfolio
			result.FlowBreakdown = marshalBreakdown(flowBD)
			result.FrictionBreakdown = marshalBreakdown(frictionBD)
			result.SafetyBreakdown = marshalBreakdown(safetyBD)
			result.PortfolioBreakdown = marshalBreakdown(portfolioBD)
			result.DimensionBreakdown = marshalAverages(dimAverages)

			previous, err := c.previousResult(tx, survey.TeamID, surveyID)
			if err != nil {
				return err
			}
			if previous != nil {
				result.PreviousResultID = &previous.ID
				result.TrendDirection = c.trend(result, previous)
			}
		}

		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: calculate survey %d: %w", surveyID, err)
	}

	log.WithFields(log.Fields{
		"survey":      surveyID,
		"respondents": result.RespondentCount,
		"disclosed":   result.MeetsPrivacyThreshold,
	}).Info("metrics: calculation run stored")
	return result, nil
}

// Latest returns the most recent result for a survey, if any.
func (c *Calculator) Latest(surveyID uint) (*models.MetricResult, error) {
	var result models.MetricResult
	err := c.db.Where("survey_id = ?", surveyID).
		Order("calculated_at DESC, id DESC").First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("metrics: latest for survey %d: %w", surveyID, err)
	}
	return &result, nil
}

// dimensionAverages computes the mean 0-100 answer per dimension across the
// snapshot.
func dimensionAverages(responses []models.Response) map[models.FrictionDimension]float64 {
	sums := map[models.FrictionDimension]float64{}
	counts := map[models.FrictionDimension]int{}
	for _, r := range responses {
		for _, a := range r.Answers {
			if !models.ValidDimension(a.Dimension) {
				continue
			}
			sums[a.Dimension] += a.NumericValue
			counts[a.Dimension]++
		}
	}

	averages := make(map[models.FrictionDimension]float64, len(sums))
	for dim, sum := range sums {
		averages[dim] = sum / float64(counts[dim])
	}
	return averages
}

// score combines the dimension averages for one metric using its
// configured weights. Dimensions without data contribute the neutral score.
func (c *Calculator) score(metric models.MetricType, averages map[models.FrictionDimension]float64) (float64, map[models.FrictionDimension]Contribution) {
	breakdown := map[models.FrictionDimension]Contribution{}
	var total float64
	for dim, weight := range c.weights[metric] {
		avg, ok := averages[dim]
		if !ok {
			avg = neutralScore
		}
		weighted := avg * weight
		breakdown[dim] = Contribution{Score: avg, Weight: weight, Weighted: weighted}
		total += weighted
	}
	return total, breakdown
}

// previousResult finds the team's most recent disclosed result from another
// survey, for trend comparison.
func (c *Calculator) previousResult(tx *gorm.DB, teamID, currentSurveyID uint) (*models.MetricResult, error) {
	var previous models.MetricResult
	err := tx.Where("team_id = ? AND survey_id != ? AND meets_privacy_threshold = ?",
		teamID, currentSurveyID, true).
		Order("calculated_at DESC, id DESC").First(&previous).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load previous result: %w", err)
	}
	return &previous, nil
}

// trend compares the new result against the previous one using the mean
// delta across the four metrics, with a dead-band around zero.
func (c *Calculator) trend(current, previous *models.MetricResult) models.TrendDirection {
	var deltas []float64
	pairs := [][2]*float64{
		{current.FlowScore, previous.FlowScore},
		{current.FrictionScore, previous.FrictionScore},
		{current.SafetyScore, previous.SafetyScore},
		{current.PortfolioBalanceScore, previous.PortfolioBalanceScore},
	}
	for _, p := range pairs {
		if p[0] != nil && p[1] != nil {
			deltas = append(deltas, *p[0]-*p[1])
		}
	}
	if len(deltas) == 0 {
		return models.TrendStable
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))

	switch {
	case mean > c.deadBand:
		return models.TrendUp
	case mean < -c.deadBand:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func marshalBreakdown(b map[models.FrictionDimension]Contribution) string {
	data, err := json.Marshal(b)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalAverages(a map[models.FrictionDimension]float64) string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}
