package chat

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// PendingRating is a provisional rating awaiting the respondent's verdict.
type PendingRating struct {
	Dimension  models.FrictionDimension `json:"dimension"`
	Score      float64                  `json:"score"`
	Confidence float64                  `json:"confidence"`
	Reasoning  string                   `json:"reasoning"`
}

// StartResult is returned when a session is created.
type StartResult struct {
	Session *models.ChatSession
	Opening *models.ChatMessage
}

// TurnResult is returned for every respondent message.
type TurnResult struct {
	UserMessage      *models.ChatMessage
	AssistantMessage *models.ChatMessage
	Status           models.ChatSessionStatus
	CurrentDimension *models.FrictionDimension
	Coverage         map[models.FrictionDimension]bool
	PendingRating    *PendingRating
}

// ConfirmResult is returned by the explicit confirmation operation.
type ConfirmResult struct {
	Rating           *models.ChatExtractedRating
	NextDimension    *models.FrictionDimension
	AllConfirmed     bool
	AssistantMessage *models.ChatMessage
}

// CompletionResult bundles the artifacts of a completed session.
type CompletionResult struct {
	Session             *models.ChatSession
	Summary             *models.ChatSummary
	Ratings             []models.ChatExtractedRating
	MetricsRecalculated bool
}

// StartSession creates a session for an active survey, emits the opening
// assistant message, and activates the first dimension in canonical order.
func (e *Engine) StartSession(ctx context.Context, surveyID uint) (*StartResult, error) {
	var survey models.Survey
	if err := e.db.Preload("Team").First(&survey, surveyID).Error; err != nil {
		return nil, fmt.Errorf("chat: survey %d not found: %w", surveyID, err)
	}
	if survey.Status != models.SurveyActive {
		return nil, fmt.Errorf("chat: survey %d is %s, not active", surveyID, survey.Status)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.ChatSession{
		Token:             token,
		SurveyID:          survey.ID,
		Status:            models.SessionStarted,
		DimensionsCovered: NewCoverage().JSON(),
		StartedAt:         now,
		LastActivityAt:    now,
	}

	// The opening message is generated before any rows exist, so a provider
	// failure costs nothing; the static fallback keeps startup infallible.
	occupation := survey.Team.Occupation
	content := openingFallback(occupation)
	var tokensIn, tokensOut, latencyMS int
	started := time.Now()
	if comp, err := e.client.Complete(ctx, systemPrompt, openingPrompt(occupation)); err != nil {
		log.WithField("survey", surveyID).WithError(err).Warn("chat: opening message fell back to static copy")
	} else {
		content = comp.Content
		tokensIn, tokensOut = comp.TokensInput, comp.TokensOutput
		latencyMS = int(time.Since(started).Milliseconds())
	}

	// The opening precedes any active dimension, so its context comes from
	// keyword detection over the generated copy rather than the tracker.
	var openingDim *models.FrictionDimension
	if d, ok := detectDimension(content, ""); ok {
		openingDim = &d
	}

	firstDim, _ := NewCoverage().Next()
	var opening *models.ChatMessage

	err = e.db.Transaction(func(tx *gorm.DB) error {
		response := &models.Response{SurveyID: survey.ID}
		if err := tx.Create(response).Error; err != nil {
			return fmt.Errorf("create response: %w", err)
		}

		session.ResponseID = response.ID
		session.Status = models.SessionInProgress
		session.CurrentDimension = &firstDim
		session.TotalTokensInput = tokensIn
		session.TotalTokensOutput = tokensOut
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		opening = &models.ChatMessage{
			SessionID:        session.ID,
			Sequence:         1,
			Role:             models.RoleAssistant,
			Content:          content,
			DimensionContext: openingDim,
			TokensInput:      tokensIn,
			TokensOutput:     tokensOut,
			LatencyMS:        latencyMS,
		}
		if err := tx.Create(opening).Error; err != nil {
			return fmt.Errorf("create opening message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat: start session: %w", err)
	}

	log.WithFields(log.Fields{"session": session.ID, "survey": surveyID}).Info("chat: session started")
	return &StartResult{Session: session, Opening: opening}, nil
}

// ProcessMessage handles one respondent turn. In the in_progress state it
// generates the next probing reply and, once enough signal has accumulated,
// proposes a rating and moves to rating_confirmation. In the
// rating_confirmation state it tries to resolve the pending rating from the
// free-text reply, re-prompting up to the configured retry limit before
// falling back to the AI-inferred score.
func (e *Engine) ProcessMessage(ctx context.Context, token, content string) (*TurnResult, error) {
	session, err := e.loadSession(token)
	if err != nil {
		return nil, err
	}

	lock := e.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; the sweep may have abandoned the session
	// between lookup and lock acquisition.
	if err := e.db.First(session, session.ID).Error; err != nil {
		return nil, fmt.Errorf("chat: reload session: %w", err)
	}
	if session.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	coverage, err := ParseCoverage(session.DimensionsCovered)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionRatingConfirmation {
		return e.processConfirmationTurn(ctx, session, coverage, content)
	}
	return e.processDialogueTurn(ctx, session, coverage, content)
}

// processDialogueTurn handles a turn while a dimension is under discussion.
func (e *Engine) processDialogueTurn(ctx context.Context, session *models.ChatSession, coverage Coverage, content string) (*TurnResult, error) {
	dim := models.DimClarity
	if session.CurrentDimension != nil {
		dim = *session.CurrentDimension
	}

	var history []models.ChatMessage
	if err := e.db.Where("session_id = ?", session.ID).Order("sequence").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}

	// Count prior user turns on this dimension; the incoming message makes
	// one more.
	userTurns := 1
	for _, m := range history {
		if m.Role == models.RoleUser && m.DimensionContext != nil && *m.DimensionContext == dim {
			userTurns++
		}
	}

	// Attempt extraction once the dimension has enough user turns. A
	// provider failure here is transient: the turn degrades to another
	// probing question and extraction is retried next turn.
	var pending *PendingRating
	var provisional *models.ChatExtractedRating
	if userTurns >= e.cfg.MinUserTurns {
		payload, err := e.extractRating(ctx, dim, history, content)
		if err != nil {
			log.WithFields(log.Fields{"session": session.ID, "dimension": dim}).
				WithError(err).Warn("chat: rating extraction failed, continuing dialogue")
		} else {
			provisional = &models.ChatExtractedRating{
				SessionID:       session.ID,
				Dimension:       dim,
				AIInferredScore: payload.Score,
				AIConfidence:    payload.Confidence,
				AIReasoning:     payload.Reasoning,
				KeyQuotes:       payload.quotesJSON(),
			}
			pending = &PendingRating{
				Dimension:  dim,
				Score:      payload.Score,
				Confidence: payload.Confidence,
				Reasoning:  payload.Reasoning,
			}
		}
	}

	// Build the assistant reply: either the confirmation ask for the
	// proposed rating, or the next probing question.
	var reply string
	var tokensIn, tokensOut, latencyMS int
	started := time.Now()
	if pending != nil {
		lowConf := pending.Confidence < e.cfg.LowConfidence
		comp, err := e.client.Complete(ctx, systemPrompt,
			confirmationPrompt(dim, pending.Score, pending.Reasoning, lowConf))
		if err != nil {
			reply = confirmationFallback(dim, pending.Score)
		} else {
			reply = comp.Content
			tokensIn, tokensOut = comp.TokensInput, comp.TokensOutput
			latencyMS = int(time.Since(started).Milliseconds())
		}
	} else {
		transcript := formatTranscript(history, 10) + fmt.Sprintf("[user] %s\n", content)
		comp, err := e.client.Complete(ctx, systemPrompt, responsePrompt(dim, transcript))
		if err != nil {
			log.WithField("session", session.ID).WithError(err).Warn("chat: response generation fell back to static copy")
			reply = responseFallback(dim)
		} else {
			reply = comp.Content
			tokensIn, tokensOut = comp.TokensInput, comp.TokensOutput
			latencyMS = int(time.Since(started).Milliseconds())
		}
	}

	// All writes for the turn land atomically.
	var userMsg, assistantMsg *models.ChatMessage
	err := e.db.Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, session.ID)
		if err != nil {
			return err
		}

		userMsg = &models.ChatMessage{
			SessionID:        session.ID,
			Sequence:         seq,
			Role:             models.RoleUser,
			Content:          content,
			DimensionContext: &dim,
		}
		if err := tx.Create(userMsg).Error; err != nil {
			return fmt.Errorf("create user message: %w", err)
		}

		assistantMsg = &models.ChatMessage{
			SessionID:            session.ID,
			Sequence:             seq + 1,
			Role:                 models.RoleAssistant,
			Content:              reply,
			DimensionContext:     &dim,
			IsRatingConfirmation: pending != nil,
			TokensInput:          tokensIn,
			TokensOutput:         tokensOut,
			LatencyMS:            latencyMS,
		}
		if err := tx.Create(assistantMsg).Error; err != nil {
			return fmt.Errorf("create assistant message: %w", err)
		}

		updates := map[string]interface{}{
			"status":              models.SessionInProgress,
			"last_activity_at":    time.Now(),
			"total_tokens_input":  gorm.Expr("total_tokens_input + ?", tokensIn),
			"total_tokens_output": gorm.Expr("total_tokens_output + ?", tokensOut),
		}
		if pending != nil {
			if err := tx.Create(provisional).Error; err != nil {
				return fmt.Errorf("create provisional rating: %w", err)
			}
			updates["status"] = models.SessionRatingConfirmation
		}
		if err := tx.Model(session).Updates(updates).Error; err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat: process message: %w", err)
	}

	if pending != nil {
		session.Status = models.SessionRatingConfirmation
		log.WithFields(log.Fields{"session": session.ID, "dimension": dim, "score": pending.Score}).
			Info("chat: rating proposed")
	}

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Status:           session.Status,
		CurrentDimension: session.CurrentDimension,
		Coverage:         coverage.Map(),
		PendingRating:    pending,
	}, nil
}

// processConfirmationTurn handles a free-text turn while a rating awaits a
// verdict.
func (e *Engine) processConfirmationTurn(ctx context.Context, session *models.ChatSession, coverage Coverage, content string) (*TurnResult, error) {
	dim := *session.CurrentDimension

	rating, err := e.pendingRating(session.ID, dim)
	if err != nil {
		return nil, err
	}

	adjusted, resolved := resolveConfirmation(content)

	// Unresolvable reply: re-prompt until the retry budget is spent, then
	// finalize with the AI-inferred score so the session always advances.
	useFallback := false
	if !resolved && rating.ConfirmRetries+1 >= e.cfg.MaxConfirmRetries {
		useFallback = true
		adjusted = nil
	}

	if !resolved && !useFallback {
		var userMsg, assistantMsg *models.ChatMessage
		err := e.db.Transaction(func(tx *gorm.DB) error {
			seq, err := nextSequence(tx, session.ID)
			if err != nil {
				return err
			}
			userMsg = &models.ChatMessage{
				SessionID:        session.ID,
				Sequence:         seq,
				Role:             models.RoleUser,
				Content:          content,
				DimensionContext: &dim,
			}
			if err := tx.Create(userMsg).Error; err != nil {
				return fmt.Errorf("create user message: %w", err)
			}
			assistantMsg = &models.ChatMessage{
				SessionID:            session.ID,
				Sequence:             seq + 1,
				Role:                 models.RoleAssistant,
				Content:              reprompt(dim, rating.AIInferredScore),
				DimensionContext:     &dim,
				IsRatingConfirmation: true,
			}
			if err := tx.Create(assistantMsg).Error; err != nil {
				return fmt.Errorf("create reprompt message: %w", err)
			}
			if err := tx.Model(rating).Update("confirm_retries", rating.ConfirmRetries+1).Error; err != nil {
				return fmt.Errorf("bump confirm retries: %w", err)
			}
			if err := tx.Model(session).Update("last_activity_at", time.Now()).Error; err != nil {
				return fmt.Errorf("touch session: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("chat: confirmation reprompt: %w", err)
		}

		score := rating.AIInferredScore
		return &TurnResult{
			UserMessage:      userMsg,
			AssistantMessage: assistantMsg,
			Status:           session.Status,
			CurrentDimension: session.CurrentDimension,
			Coverage:         coverage.Map(),
			PendingRating: &PendingRating{
				Dimension:  dim,
				Score:      score,
				Confidence: rating.AIConfidence,
				Reasoning:  rating.AIReasoning,
			},
		}, nil
	}

	// Resolved (or fallback): finalize, advance, and answer in one turn.
	var userMsg *models.ChatMessage
	err = e.db.Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, session.ID)
		if err != nil {
			return err
		}
		userMsg = &models.ChatMessage{
			SessionID:        session.ID,
			Sequence:         seq,
			Role:             models.RoleUser,
			Content:          content,
			DimensionContext: &dim,
		}
		if err := tx.Create(userMsg).Error; err != nil {
			return fmt.Errorf("create user message: %w", err)
		}
		return e.finalizeRating(tx, session, rating, &coverage, adjusted, useFallback)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: resolve confirmation: %w", err)
	}

	assistantMsg, err := e.afterResolution(ctx, session, coverage, rating, useFallback)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Status:           session.Status,
		CurrentDimension: session.CurrentDimension,
		Coverage:         coverage.Map(),
	}, nil
}

// ConfirmRating is the explicit confirmation operation: the respondent
// either accepts the pending rating or supplies an adjusted 1-7 score.
func (e *Engine) ConfirmRating(ctx context.Context, token string, confirmed bool, adjustedScore *float64) (*ConfirmResult, error) {
	session, err := e.loadSession(token)
	if err != nil {
		return nil, err
	}

	lock := e.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.db.First(session, session.ID).Error; err != nil {
		return nil, fmt.Errorf("chat: reload session: %w", err)
	}
	if session.Status.Terminal() {
		return nil, ErrSessionClosed
	}
	if session.Status != models.SessionRatingConfirmation || session.CurrentDimension == nil {
		return nil, ErrNoPendingRating
	}

	if !confirmed && adjustedScore == nil {
		return nil, fmt.Errorf("chat: confirmation rejected without an adjusted score")
	}
	if adjustedScore != nil && (*adjustedScore < 1 || *adjustedScore > 7) {
		return nil, fmt.Errorf("chat: adjusted score %.1f out of range 1-7", *adjustedScore)
	}

	dim := *session.CurrentDimension
	rating, err := e.pendingRating(session.ID, dim)
	if err != nil {
		return nil, err
	}

	coverage, err := ParseCoverage(session.DimensionsCovered)
	if err != nil {
		return nil, err
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		return e.finalizeRating(tx, session, rating, &coverage, adjustedScore, false)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: confirm rating: %w", err)
	}

	assistantMsg, err := e.afterResolution(ctx, session, coverage, rating, false)
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{
		Rating:           rating,
		NextDimension:    session.CurrentDimension,
		AllConfirmed:     coverage.AllCovered(),
		AssistantMessage: assistantMsg,
	}, nil
}

// pendingRating loads the unconfirmed rating for a dimension.
func (e *Engine) pendingRating(sessionID uint, dim models.FrictionDimension) (*models.ChatExtractedRating, error) {
	var rating models.ChatExtractedRating
	err := e.db.Where("session_id = ? AND dimension = ? AND user_confirmed = ?", sessionID, dim, false).
		First(&rating).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNoPendingRating
		}
		return nil, fmt.Errorf("chat: load pending rating: %w", err)
	}
	return &rating, nil
}

// finalizeRating freezes a rating and advances the coverage tracker. The
// caller supplies the transaction; the session struct is updated in place
// so callers see the new state.
func (e *Engine) finalizeRating(tx *gorm.DB, session *models.ChatSession, rating *models.ChatExtractedRating, coverage *Coverage, adjusted *float64, viaFallback bool) error {
	final := rating.AIInferredScore
	if adjusted != nil {
		rating.UserAdjustedScore = adjusted
		final = *adjusted
	}
	rating.UserConfirmed = true
	rating.FinalScore = &final

	if err := tx.Model(rating).Updates(map[string]interface{}{
		"user_confirmed":      true,
		"user_adjusted_score": rating.UserAdjustedScore,
		"final_score":         final,
	}).Error; err != nil {
		return fmt.Errorf("finalize rating: %w", err)
	}

	coverage.Mark(rating.Dimension)
	next, hasNext := coverage.Next()

	updates := map[string]interface{}{
		"dimensions_covered": coverage.JSON(),
		"last_activity_at":   time.Now(),
	}
	if hasNext {
		updates["status"] = models.SessionInProgress
		updates["current_dimension"] = next
		session.Status = models.SessionInProgress
		session.CurrentDimension = &next
	} else {
		// Completion (summary, answers, status flip) happens outside this
		// transaction so a summary failure cannot roll back the rating.
		updates["current_dimension"] = nil
		session.CurrentDimension = nil
	}
	if err := tx.Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("advance session: %w", err)
	}

	log.WithFields(log.Fields{
		"session":   session.ID,
		"dimension": rating.Dimension,
		"final":     final,
		"fallback":  viaFallback,
	}).Info("chat: rating finalized")
	return nil
}

// afterResolution emits the post-resolution assistant message and, when no
// dimensions remain, completes the session.
func (e *Engine) afterResolution(ctx context.Context, session *models.ChatSession, coverage Coverage, rating *models.ChatExtractedRating, viaFallback bool) (*models.ChatMessage, error) {
	var content string
	if next, ok := coverage.Next(); ok {
		content = transitionFallback(next)
		if viaFallback {
			content = fallbackResolution(rating.Dimension, rating.AIInferredScore) + " " + content
		}
	} else {
		content = "That was the last topic - thank you! Give me a moment to put together your summary."
	}

	var assistantMsg *models.ChatMessage
	err := e.db.Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, session.ID)
		if err != nil {
			return err
		}
		assistantMsg = &models.ChatMessage{
			SessionID:        session.ID,
			Sequence:         seq,
			Role:             models.RoleAssistant,
			Content:          content,
			DimensionContext: session.CurrentDimension,
		}
		if err := tx.Create(assistantMsg).Error; err != nil {
			return fmt.Errorf("create transition message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat: post-resolution message: %w", err)
	}

	if coverage.AllCovered() {
		if err := e.completeSession(ctx, session); err != nil {
			return nil, err
		}
	}
	return assistantMsg, nil
}

// completeSession generates the summary, mirrors finalized ratings into the
// shared answer pool, marks the response complete, and flips the session to
// its terminal state. Metrics recalculation is best-effort.
func (e *Engine) completeSession(ctx context.Context, session *models.ChatSession) error {
	var ratings []models.ChatExtractedRating
	if err := e.db.Where("session_id = ?", session.ID).Find(&ratings).Error; err != nil {
		return fmt.Errorf("chat: load ratings: %w", err)
	}
	if len(ratings) != models.NumDimensions {
		return fmt.Errorf("chat: session %d has %d finalized ratings, want %d", session.ID, len(ratings), models.NumDimensions)
	}

	var history []models.ChatMessage
	if err := e.db.Where("session_id = ?", session.ID).Order("sequence").Find(&history).Error; err != nil {
		return fmt.Errorf("chat: load history: %w", err)
	}

	summary := e.generateSummary(ctx, session, history, ratings)

	now := time.Now()
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(summary).Error; err != nil {
			return fmt.Errorf("create summary: %w", err)
		}

		for _, r := range ratings {
			if r.FinalScore == nil {
				return fmt.Errorf("rating for %s has no final score", r.Dimension)
			}
			answer := models.Answer{
				ResponseID:   session.ResponseID,
				Dimension:    r.Dimension,
				NumericValue: normalizeScore(*r.FinalScore),
				Comment:      r.AIReasoning,
			}
			if err := tx.Create(&answer).Error; err != nil {
				return fmt.Errorf("create answer for %s: %w", r.Dimension, err)
			}
		}

		if err := tx.Model(&models.Response{}).Where("id = ?", session.ResponseID).Updates(map[string]interface{}{
			"is_complete":             true,
			"submitted_at":            now,
			"completion_time_seconds": int(now.Sub(session.StartedAt).Seconds()),
		}).Error; err != nil {
			return fmt.Errorf("complete response: %w", err)
		}

		if err := tx.Model(session).Updates(map[string]interface{}{
			"status":           models.SessionCompleted,
			"completed_at":     now,
			"last_activity_at": now,
		}).Error; err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat: complete session: %w", err)
	}

	session.Status = models.SessionCompleted
	session.CompletedAt = &now
	e.releaseLock(session.ID)

	log.WithFields(log.Fields{"session": session.ID, "survey": session.SurveyID}).Info("chat: session completed")

	if e.recalc != nil {
		if err := e.recalc.Recalculate(ctx, session.SurveyID); err != nil {
			log.WithField("survey", session.SurveyID).WithError(err).Warn("chat: metrics recalculation failed")
		}
	}
	return nil
}

// Completion returns the stored artifacts of a completed session along with
// whether team metrics are current for its survey.
func (e *Engine) Completion(ctx context.Context, token string) (*CompletionResult, error) {
	session, err := e.loadSession(token)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCompleted {
		return nil, fmt.Errorf("chat: session is %s, not completed", session.Status)
	}

	var summary models.ChatSummary
	summaryErr := e.db.Where("session_id = ?", session.ID).First(&summary).Error

	var ratings []models.ChatExtractedRating
	if err := e.db.Where("session_id = ?", session.ID).Order("dimension").Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("chat: load ratings: %w", err)
	}

	result := &CompletionResult{Session: session, Ratings: ratings}
	if summaryErr == nil {
		result.Summary = &summary
	}

	var count int64
	e.db.Model(&models.MetricResult{}).Where("survey_id = ?", session.SurveyID).Count(&count)
	result.MetricsRecalculated = count > 0

	return result, nil
}
