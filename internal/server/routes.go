package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/chat"
	"github.com/frictiondesk/frictiondesk/internal/metrics"
	"github.com/frictiondesk/frictiondesk/internal/models"
	"github.com/frictiondesk/frictiondesk/internal/notify"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
)

type handlers struct {
	db     *gorm.DB
	engine *chat.Engine
	calc   *metrics.Calculator
	opps   *opportunity.Generator
	notifs []notify.Notifier
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	api := router.Group("/api")

	api.POST("/surveys/:id/chat", h.startChat)
	api.POST("/chat/:token/messages", h.postMessage)
	api.POST("/chat/:token/confirm", h.confirmRating)
	api.POST("/chat/:token/complete", h.completion)

	api.POST("/surveys/:id/close", h.closeSurvey)
	api.GET("/surveys/:id/metrics", h.surveyMetrics)

	api.GET("/teams/:id/opportunities", h.teamOpportunities)
	api.PATCH("/opportunities/:id", h.updateOpportunity)
}

// --- view types ---

type messageView struct {
	Sequence             int     `json:"sequence"`
	Role                 string  `json:"role"`
	Content              string  `json:"content"`
	Dimension            *string `json:"dimension,omitempty"`
	IsRatingConfirmation bool    `json:"is_rating_confirmation"`
}

type ratingView struct {
	Dimension         string   `json:"dimension"`
	AIInferredScore   float64  `json:"ai_inferred_score"`
	AIConfidence      float64  `json:"ai_confidence"`
	Reasoning         string   `json:"reasoning,omitempty"`
	UserConfirmed     bool     `json:"user_confirmed"`
	UserAdjustedScore *float64 `json:"user_adjusted_score,omitempty"`
	FinalScore        *float64 `json:"final_score,omitempty"`
}

type summaryView struct {
	ExecutiveSummary       string          `json:"executive_summary"`
	KeyPainPoints          json.RawMessage `json:"key_pain_points"`
	PositiveAspects        json.RawMessage `json:"positive_aspects"`
	ImprovementSuggestions json.RawMessage `json:"improvement_suggestions"`
	OverallSentiment       string          `json:"overall_sentiment"`
	DimensionSentiments    json.RawMessage `json:"dimension_sentiments"`
}

type opportunityView struct {
	ID           uint       `json:"id"`
	TeamID       uint       `json:"team_id"`
	FrictionType *string    `json:"friction_type,omitempty"`
	Reach        int        `json:"reach"`
	Impact       float64    `json:"impact"`
	Confidence   float64    `json:"confidence"`
	Effort       float64    `json:"effort"`
	RICEScore    float64    `json:"rice_score"`
	SourceScore  float64    `json:"source_score"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func viewMessage(m *models.ChatMessage) *messageView {
	if m == nil {
		return nil
	}
	v := &messageView{
		Sequence:             m.Sequence,
		Role:                 string(m.Role),
		Content:              m.Content,
		IsRatingConfirmation: m.IsRatingConfirmation,
	}
	if m.DimensionContext != nil {
		s := string(*m.DimensionContext)
		v.Dimension = &s
	}
	return v
}

func viewRating(r *models.ChatExtractedRating) ratingView {
	return ratingView{
		Dimension:         string(r.Dimension),
		AIInferredScore:   r.AIInferredScore,
		AIConfidence:      r.AIConfidence,
		Reasoning:         r.AIReasoning,
		UserConfirmed:     r.UserConfirmed,
		UserAdjustedScore: r.UserAdjustedScore,
		FinalScore:        r.FinalScore,
	}
}

func viewSummary(s *models.ChatSummary) *summaryView {
	if s == nil {
		return nil
	}
	return &summaryView{
		ExecutiveSummary:       s.ExecutiveSummary,
		KeyPainPoints:          rawOr(s.KeyPainPoints, "[]"),
		PositiveAspects:        rawOr(s.PositiveAspects, "[]"),
		ImprovementSuggestions: rawOr(s.ImprovementSuggestions, "[]"),
		OverallSentiment:       s.OverallSentiment,
		DimensionSentiments:    rawOr(s.DimensionSentiments, "{}"),
	}
}

func viewOpportunity(o *models.Opportunity) opportunityView {
	v := opportunityView{
		ID:          o.ID,
		TeamID:      o.TeamID,
		Reach:       o.Reach,
		Impact:      o.Impact,
		Confidence:  o.Confidence,
		Effort:      o.Effort,
		RICEScore:   o.RICEScore,
		SourceScore: o.SourceScore,
		Title:       o.Title,
		Description: o.Description,
		Status:      string(o.Status),
		CompletedAt: o.CompletedAt,
	}
	if o.FrictionType != nil {
		s := string(*o.FrictionType)
		v.FrictionType = &s
	}
	return v
}

func rawOr(s, fallback string) json.RawMessage {
	if !json.Valid([]byte(s)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}

func coverageKeys(coverage map[models.FrictionDimension]bool) map[string]bool {
	out := make(map[string]bool, len(coverage))
	for dim, covered := range coverage {
		out[string(dim)] = covered
	}
	return out
}

func dimString(d *models.FrictionDimension) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

// --- chat handlers ---

func (h *handlers) startChat(c *gin.Context) {
	surveyID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.engine.StartSession(c.Request.Context(), surveyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":             result.Session.Token,
		"status":            result.Session.Status,
		"current_dimension": dimString(result.Session.CurrentDimension),
		"opening_message":   viewMessage(result.Opening),
	})
}

type messageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *handlers) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	result, err := h.engine.ProcessMessage(c.Request.Context(), c.Param("token"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"assistant_message": viewMessage(result.AssistantMessage),
		"status":            result.Status,
		"current_dimension": dimString(result.CurrentDimension),
		"coverage":          coverageKeys(result.Coverage),
	}
	if result.PendingRating != nil {
		resp["pending_rating"] = result.PendingRating
	}
	c.JSON(http.StatusOK, resp)
}

type confirmRequest struct {
	Confirmed     bool     `json:"confirmed"`
	AdjustedScore *float64 `json:"adjusted_score"`
}

func (h *handlers) confirmRating(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmation body"})
		return
	}

	result, err := h.engine.ConfirmRating(c.Request.Context(), c.Param("token"), req.Confirmed, req.AdjustedScore)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rating":            viewRating(result.Rating),
		"next_dimension":    dimString(result.NextDimension),
		"all_confirmed":     result.AllConfirmed,
		"assistant_message": viewMessage(result.AssistantMessage),
	})
}

func (h *handlers) completion(c *gin.Context) {
	result, err := h.engine.Completion(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	ratings := make([]ratingView, 0, len(result.Ratings))
	for i := range result.Ratings {
		ratings = append(ratings, viewRating(&result.Ratings[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               result.Session.Status,
		"completed_at":         result.Session.CompletedAt,
		"summary":              viewSummary(result.Summary),
		"ratings":              ratings,
		"metrics_recalculated": result.MetricsRecalculated,
	})
}

// --- survey handlers ---

// closeSurvey flips a survey to closed, recomputes metrics, regenerates
// opportunities, and pushes the digest. Digest delivery is best-effort; the
// close itself never depends on a chat platform being up.
func (h *handlers) closeSurvey(c *gin.Context) {
	surveyID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var survey models.Survey
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Team").First(&survey, surveyID).Error; err != nil {
			return err
		}
		if survey.Status == models.SurveyClosed {
			return errAlreadyClosed
		}
		now := time.Now()
		return tx.Model(&survey).Updates(map[string]interface{}{
			"status":    models.SurveyClosed,
			"closed_at": now,
		}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.calc.Calculate(c.Request.Context(), surveyID)
	if err != nil {
		respondError(c, err)
		return
	}

	var generated *opportunity.Report
	if result.MeetsPrivacyThreshold {
		generated, err = h.opps.Generate(c.Request.Context(), surveyID)
		if err != nil && !errors.Is(err, opportunity.ErrNoDisclosedResult) {
			respondError(c, err)
			return
		}
	}

	if len(h.notifs) > 0 {
		opps, err := h.opps.ListForTeam(survey.TeamID)
		if err != nil {
			opps = nil
		}
		digest := notify.BuildDigest(survey.Team.Name, result, opportunity.TopOpportunities(opps, 3))
		if err := notify.Fanout(c.Request.Context(), h.notifs, digest); err != nil {
			log.WithField("survey", surveyID).WithError(err).Warn("server: digest delivery incomplete")
		}
	}

	resp := gin.H{
		"status":                  models.SurveyClosed,
		"respondent_count":        result.RespondentCount,
		"meets_privacy_threshold": result.MeetsPrivacyThreshold,
	}
	if generated != nil {
		resp["opportunities"] = generated
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) surveyMetrics(c *gin.Context) {
	surveyID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.calc.Latest(surveyID)
	if err != nil {
		respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metric results for survey"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"survey_id":               result.SurveyID,
		"team_id":                 result.TeamID,
		"respondent_count":        result.RespondentCount,
		"meets_privacy_threshold": result.MeetsPrivacyThreshold,
		"flow_score":              result.FlowScore,
		"friction_score":          result.FrictionScore,
		"safety_score":            result.SafetyScore,
		"portfolio_balance_score": result.PortfolioBalanceScore,
		"flow_breakdown":          rawOr(result.FlowBreakdown, "null"),
		"friction_breakdown":      rawOr(result.FrictionBreakdown, "null"),
		"safety_breakdown":        rawOr(result.SafetyBreakdown, "null"),
		"portfolio_breakdown":     rawOr(result.PortfolioBreakdown, "null"),
		"dimension_breakdown":     rawOr(result.DimensionBreakdown, "null"),
		"trend_direction":         result.TrendDirection,
		"calculated_at":           result.CalculatedAt,
	})
}

// --- opportunity handlers ---

func (h *handlers) teamOpportunities(c *gin.Context) {
	teamID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	opps, err := h.opps.ListForTeam(teamID)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]opportunityView, 0, len(opps))
	for i := range opps {
		views = append(views, viewOpportunity(&opps[i]))
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": views})
}

type opportunityPatch struct {
	Status     *string  `json:"status"`
	Reach      *int     `json:"reach"`
	Impact     *float64 `json:"impact"`
	Confidence *float64 `json:"confidence"`
	Effort     *float64 `json:"effort"`
}

func (h *handlers) updateOpportunity(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var patch opportunityPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patch body"})
		return
	}

	var opp *models.Opportunity
	var err error

	if patch.Reach != nil || patch.Impact != nil || patch.Confidence != nil || patch.Effort != nil {
		opp, err = h.opps.Adjust(c.Request.Context(), id, opportunity.Adjustment{
			Reach:      patch.Reach,
			Impact:     patch.Impact,
			Confidence: patch.Confidence,
			Effort:     patch.Effort,
		})
		if err != nil {
			respondError(c, err)
			return
		}
	}

	if patch.Status != nil {
		opp, err = h.opps.UpdateStatus(c.Request.Context(), id, models.OpportunityStatus(*patch.Status))
		if err != nil {
			respondError(c, err)
			return
		}
	}

	if opp == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	c.JSON(http.StatusOK, viewOpportunity(opp))
}

// --- helpers ---

var errAlreadyClosed = errors.New("server: survey is already closed")

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionClosed), errors.Is(err, chat.ErrNoPendingRating),
		errors.Is(err, errAlreadyClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, opportunity.ErrInvalidEffort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("server: request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
