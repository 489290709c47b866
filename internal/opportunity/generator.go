// Package opportunity turns low-scoring friction dimensions into RICE-scored
// improvement opportunities (reach * impact * confidence / effort).
package opportunity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/models"
)

// ErrInvalidEffort is returned when a candidate or adjustment carries a
// non-positive effort, which would make the RICE quotient meaningless.
var ErrInvalidEffort = fmt.Errorf("opportunity: effort must be positive")

// ErrNoDisclosedResult is returned when a survey has no metric result that
// meets the privacy threshold, so no dimension data may be consumed.
var ErrNoDisclosedResult = fmt.Errorf("opportunity: no disclosed metric result for survey")

// Skipped describes a candidate the generator refused to score.
type Skipped struct {
	Dimension models.FrictionDimension `json:"dimension"`
	Reason    string                   `json:"reason"`
}

// Report summarizes one generation run.
type Report struct {
	SurveyID  uint      `json:"survey_id"`
	TeamID    uint      `json:"team_id"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Preserved int       `json:"preserved"`
	Skipped   []Skipped `json:"skipped,omitempty"`
}

// Generator produces and maintains opportunities from metric results.
type Generator struct {
	db        *gorm.DB
	threshold float64
	efforts   map[models.FrictionDimension]float64
}

// NewGenerator builds a Generator from configuration.
func NewGenerator(db *gorm.DB, cfg *config.Config) *Generator {
	efforts := make(map[models.FrictionDimension]float64, len(cfg.RICE.EffortByDimension))
	for dim, e := range cfg.RICE.EffortByDimension {
		efforts[models.FrictionDimension(dim)] = e
	}
	return &Generator{
		db:        db,
		threshold: cfg.RICE.ImprovementThreshold,
		efforts:   efforts,
	}
}

// Generate derives opportunities from a survey's latest disclosed metric
// result. Dimensions averaging below the improvement threshold become
// candidates; each is upserted per (team, dimension), and rows a human has
// already moved out of "identified" are never rewritten.
func (g *Generator) Generate(ctx context.Context, surveyID uint) (*Report, error) {
	var report *Report

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var result models.MetricResult
		err := tx.Where("survey_id = ? AND meets_privacy_threshold = ?", surveyID, true).
			Order("calculated_at DESC, id DESC").First(&result).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNoDisclosedResult
			}
			return fmt.Errorf("load metric result: %w", err)
		}

		var team models.Team
		if err := tx.First(&team, result.TeamID).Error; err != nil {
			return fmt.Errorf("load team %d: %w", result.TeamID, err)
		}

		averages := map[models.FrictionDimension]float64{}
		if err := json.Unmarshal([]byte(result.DimensionBreakdown), &averages); err != nil {
			return fmt.Errorf("parse dimension breakdown: %w", err)
		}

		stats, err := dimensionStats(tx, surveyID, g.threshold)
		if err != nil {
			return err
		}

		report = &Report{SurveyID: surveyID, TeamID: team.ID}

		for _, dim := range models.Dimensions() {
			avg, ok := averages[dim]
			if !ok || avg >= g.threshold {
				continue
			}

			effort := g.efforts[dim]
			if effort <= 0 {
				report.Skipped = append(report.Skipped, Skipped{
					Dimension: dim,
					Reason:    fmt.Sprintf("configured effort %.1f is not positive", effort),
				})
				continue
			}

			st := stats[dim]
			reach := reachFor(team.MemberCount, st)
			impact := impactFor(avg)
			confidence := confidenceFor(st)
			rice := riceScore(reach, impact, confidence, effort)

			candidate := models.Opportunity{
				TeamID:       team.ID,
				SurveyID:     &surveyID,
				FrictionType: ptrDim(dim),
				Reach:        reach,
				Impact:       impact,
				Confidence:   confidence,
				Effort:       effort,
				RICEScore:    rice,
				SourceScore:  avg,
				Title:        titleFor(dim),
				Description:  descriptionFor(dim, avg, reach, team.MemberCount),
				Status:       models.OpportunityIdentified,
			}

			created, updated, err := upsert(tx, &candidate)
			if err != nil {
				return err
			}
			switch {
			case created:
				report.Created++
			case updated:
				report.Updated++
			default:
				report.Preserved++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"survey":    surveyID,
		"created":   report.Created,
		"updated":   report.Updated,
		"preserved": report.Preserved,
		"skipped":   len(report.Skipped),
	}).Info("opportunity: generation run finished")
	return report, nil
}

// upsert creates the candidate, refreshes an existing identified row, or
// leaves a human-owned row alone. Returns (created, updated).
func upsert(tx *gorm.DB, candidate *models.Opportunity) (bool, bool, error) {
	var existing models.Opportunity
	err := tx.Where("team_id = ? AND friction_type = ?", candidate.TeamID, candidate.FrictionType).
		First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			if err := tx.Create(candidate).Error; err != nil {
				return false, false, fmt.Errorf("create opportunity: %w", err)
			}
			return true, false, nil
		}
		return false, false, fmt.Errorf("load opportunity: %w", err)
	}

	if existing.Status != models.OpportunityIdentified {
		return false, false, nil
	}

	updates := map[string]interface{}{
		"survey_id":    candidate.SurveyID,
		"reach":        candidate.Reach,
		"impact":       candidate.Impact,
		"confidence":   candidate.Confidence,
		"effort":       candidate.Effort,
		"rice_score":   candidate.RICEScore,
		"source_score": candidate.SourceScore,
		"title":        candidate.Title,
		"description":  candidate.Description,
	}
	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return false, false, fmt.Errorf("update opportunity: %w", err)
	}
	return false, true, nil
}

// ListForTeam returns a team's opportunities ordered by RICE score,
// highest-leverage first.
func (g *Generator) ListForTeam(teamID uint) ([]models.Opportunity, error) {
	var opps []models.Opportunity
	err := g.db.Where("team_id = ?", teamID).
		Order("rice_score DESC, id ASC").Find(&opps).Error
	if err != nil {
		return nil, fmt.Errorf("opportunity: list team %d: %w", teamID, err)
	}
	return opps, nil
}

// UpdateStatus applies a manual workflow transition. Moving to completed
// stamps CompletedAt; moving back to identified hands the row back to the
// generator.
func (g *Generator) UpdateStatus(ctx context.Context, id uint, status models.OpportunityStatus) (*models.Opportunity, error) {
	switch status {
	case models.OpportunityIdentified, models.OpportunityInProgress,
		models.OpportunityCompleted, models.OpportunityDeferred:
	default:
		return nil, fmt.Errorf("opportunity: unknown status %q", status)
	}

	var opp models.Opportunity
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&opp, id).Error; err != nil {
			return fmt.Errorf("load opportunity %d: %w", id, err)
		}
		updates := map[string]interface{}{"status": status}
		if status == models.OpportunityCompleted {
			now := time.Now()
			updates["completed_at"] = &now
		} else {
			updates["completed_at"] = nil
		}
		return tx.Model(&opp).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &opp, nil
}

// Adjustment carries manual overrides for an opportunity's RICE inputs. Nil
// fields keep the stored value.
type Adjustment struct {
	Reach      *int     `json:"reach"`
	Impact     *float64 `json:"impact"`
	Confidence *float64 `json:"confidence"`
	Effort     *float64 `json:"effort"`
}

// Adjust applies manual RICE input overrides and recomputes the score.
func (g *Generator) Adjust(ctx context.Context, id uint, adj Adjustment) (*models.Opportunity, error) {
	var opp models.Opportunity
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&opp, id).Error; err != nil {
			return fmt.Errorf("load opportunity %d: %w", id, err)
		}
		if adj.Reach != nil {
			opp.Reach = *adj.Reach
		}
		if adj.Impact != nil {
			opp.Impact = *adj.Impact
		}
		if adj.Confidence != nil {
			opp.Confidence = *adj.Confidence
		}
		if adj.Effort != nil {
			opp.Effort = *adj.Effort
		}
		if opp.Effort <= 0 {
			return ErrInvalidEffort
		}
		opp.RICEScore = riceScore(opp.Reach, opp.Impact, opp.Confidence, opp.Effort)
		return tx.Save(&opp).Error
	})
	if err != nil {
		return nil, err
	}
	return &opp, nil
}

// dimStats are per-dimension answer statistics over complete responses.
type dimStats struct {
	count       int
	belowCount  int
	mean        float64
	sumSqDeltas float64
}

func (s dimStats) stddev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.sumSqDeltas / float64(s.count-1))
}

// dimensionStats gathers per-dimension answer counts, below-threshold
// counts, and spread from a survey's complete responses.
func dimensionStats(tx *gorm.DB, surveyID uint, threshold float64) (map[models.FrictionDimension]dimStats, error) {
	var answers []models.Answer
	err := tx.Joins("JOIN responses ON responses.id = answers.response_id").
		Where("responses.survey_id = ? AND responses.is_complete = ?", surveyID, true).
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	grouped := map[models.FrictionDimension][]float64{}
	for _, a := range answers {
		grouped[a.Dimension] = append(grouped[a.Dimension], a.NumericValue)
	}

	stats := make(map[models.FrictionDimension]dimStats, len(grouped))
	for dim, values := range grouped {
		st := dimStats{count: len(values)}
		var sum float64
		for _, v := range values {
			sum += v
			if v < threshold {
				st.belowCount++
			}
		}
		st.mean = sum / float64(st.count)
		for _, v := range values {
			d := v - st.mean
			st.sumSqDeltas += d * d
		}
		stats[dim] = st
	}
	return stats, nil
}

// reachFor estimates affected people: team size scaled by the share of
// respondents below the threshold. Always at least 1 once a dimension has
// qualified.
func reachFor(memberCount int, st dimStats) int {
	if memberCount <= 0 {
		memberCount = st.count
	}
	prevalence := 1.0
	if st.count > 0 {
		prevalence = float64(st.belowCount) / float64(st.count)
	}
	reach := int(math.Round(float64(memberCount) * prevalence))
	if reach < 1 {
		reach = 1
	}
	return reach
}

// impactFor bands the dimension average into the RICE impact scale.
func impactFor(avg float64) float64 {
	switch {
	case avg < 40:
		return 3.0 // massive
	case avg < 50:
		return 2.0 // high
	case avg < 60:
		return 1.0 // medium
	case avg < 70:
		return 0.5 // low
	default:
		return 0.25 // minimal
	}
}

// confidenceFor maps sample size and spread to the RICE confidence scale.
// A wide spread means respondents disagree, so the estimate is discounted.
func confidenceFor(st dimStats) float64 {
	switch {
	case st.count >= 7 && st.stddev() <= 15:
		return 1.0
	case st.count >= 7:
		return 0.8
	default:
		return 0.5
	}
}

// riceScore is the RICE quotient, rounded to one decimal.
func riceScore(reach int, impact, confidence, effort float64) float64 {
	return math.Round(float64(reach)*impact*confidence/effort*10) / 10
}

var dimensionTitles = map[models.FrictionDimension]string{
	models.DimClarity: "Clarify goals and priorities",
	models.DimTooling: "Upgrade tooling and automation",
	models.DimProcess: "Streamline process overhead",
	models.DimRework:  "Reduce rework and churn",
	models.DimDelay:   "Remove wait states and handoff delays",
	models.DimSafety:  "Strengthen psychological safety",
}

func titleFor(dim models.FrictionDimension) string {
	if t, ok := dimensionTitles[dim]; ok {
		return t
	}
	return fmt.Sprintf("Reduce %s friction", dim)
}

func descriptionFor(dim models.FrictionDimension, avg float64, reach, memberCount int) string {
	if memberCount <= 0 {
		memberCount = reach
	}
	return fmt.Sprintf(
		"The team's average %s score is %.0f/100, below the improvement threshold. Roughly %d of %d team members report notable friction in this area.",
		dim, avg, reach, memberCount)
}

func ptrDim(d models.FrictionDimension) *models.FrictionDimension {
	return &d
}

// TopOpportunities sorts a slice by RICE score descending, for digest
// rendering.
func TopOpportunities(opps []models.Opportunity, n int) []models.Opportunity {
	sorted := make([]models.Opportunity, len(opps))
	copy(sorted, opps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RICEScore > sorted[j].RICEScore
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
