package chat

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// summaryPayload is the structured summary the model is asked for.
type summaryPayload struct {
	ExecutiveSummary       string            `json:"executive_summary"`
	KeyPainPoints          []painPoint       `json:"key_pain_points"`
	PositiveAspects        []string          `json:"positive_aspects"`
	ImprovementSuggestions []string          `json:"improvement_suggestions"`
	OverallSentiment       string            `json:"overall_sentiment"`
	DimensionSentiments    map[string]string `json:"dimension_sentiments"`
}

type painPoint struct {
	Dimension   string `json:"dimension"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// generateSummary produces the qualitative executive summary for a session
// whose six ratings are finalized. A provider failure yields a placeholder
// summary; it never fails the completion, since the ratings are valid
// artifacts on their own.
func (e *Engine) generateSummary(ctx context.Context, session *models.ChatSession, history []models.ChatMessage, ratings []models.ChatExtractedRating) *models.ChatSummary {
	lines := make([]ratingLine, 0, len(ratings))
	for _, r := range ratings {
		score := r.AIInferredScore
		if r.FinalScore != nil {
			score = *r.FinalScore
		}
		lines = append(lines, ratingLine{Dimension: r.Dimension, Score: score, Confidence: r.AIConfidence})
	}

	placeholder := &models.ChatSummary{
		SessionID:              session.ID,
		ExecutiveSummary:       "Summary could not be generated.",
		KeyPainPoints:          "[]",
		PositiveAspects:        "[]",
		ImprovementSuggestions: "[]",
		OverallSentiment:       "neutral",
		DimensionSentiments:    "{}",
	}

	comp, err := e.client.Complete(ctx, extractionSystemPrompt,
		summaryPrompt(formatTranscript(history, 100), lines))
	if err != nil {
		log.WithField("session", session.ID).WithError(err).Warn("chat: summary generation failed, storing placeholder")
		return placeholder
	}

	body, err := jsonBody(comp.Content)
	if err != nil {
		log.WithField("session", session.ID).WithError(err).Warn("chat: summary reply unparseable, storing placeholder")
		return placeholder
	}
	var payload summaryPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		log.WithField("session", session.ID).WithError(err).Warn("chat: summary reply unparseable, storing placeholder")
		return placeholder
	}
	if payload.ExecutiveSummary == "" {
		payload.ExecutiveSummary = "Summary could not be generated."
	}
	if payload.OverallSentiment == "" {
		payload.OverallSentiment = "neutral"
	}

	return &models.ChatSummary{
		SessionID:              session.ID,
		ExecutiveSummary:       payload.ExecutiveSummary,
		KeyPainPoints:          marshalOr(payload.KeyPainPoints, "[]"),
		PositiveAspects:        marshalOr(payload.PositiveAspects, "[]"),
		ImprovementSuggestions: marshalOr(payload.ImprovementSuggestions, "[]"),
		OverallSentiment:       payload.OverallSentiment,
		DimensionSentiments:    marshalOr(payload.DimensionSentiments, "{}"),
	}
}

// marshalOr encodes v as JSON, falling back to fallback on error or nil.
func marshalOr(v interface{}, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return fallback
	}
	return string(data)
}
