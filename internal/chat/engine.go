// Package chat implements the conversational survey engine: the session
// state machine, dimension coverage tracking, rating extraction and
// confirmation, and summary generation.
package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/llm"
	"github.com/frictiondesk/frictiondesk/internal/models"
)

// ErrSessionClosed is returned for any write against a completed or
// abandoned session. Late-arriving messages after an abandonment sweep land
// here.
var ErrSessionClosed = errors.New("chat: session is closed")

// ErrNoPendingRating is returned when a confirmation arrives but the
// session has no provisional rating awaiting a verdict.
var ErrNoPendingRating = errors.New("chat: no rating awaiting confirmation")

// MetricsRecalculator recomputes team metrics for a survey. The chat engine
// calls it after a session completes; failures are logged, never fatal to
// the session.
type MetricsRecalculator interface {
	Recalculate(ctx context.Context, surveyID uint) error
}

// Engine drives chat survey sessions. All mutations for one session are
// serialized through a per-session mutex, so turns can never interleave;
// sessions for different respondents share nothing and run in parallel.
type Engine struct {
	db     *gorm.DB
	client llm.Client
	cfg    config.ChatConfig
	recalc MetricsRecalculator

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	DB     *gorm.DB
	Client llm.Client
	Config config.ChatConfig
	// Recalc is optional; when set, metrics are recomputed after each
	// session completion.
	Recalc MetricsRecalculator
}

// NewEngine creates a chat engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("chat: engine: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("chat: engine: llm client is required")
	}
	cfg := opts.Config
	if cfg.MinUserTurns <= 0 {
		cfg.MinUserTurns = 2
	}
	if cfg.MaxConfirmRetries <= 0 {
		cfg.MaxConfirmRetries = 3
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = 0.6
	}
	return &Engine{
		db:     opts.DB,
		client: opts.Client,
		cfg:    cfg,
		recalc: opts.Recalc,
		locks:  make(map[uint]*sync.Mutex),
	}, nil
}

// sessionLock returns the mutex serializing one session's turns.
func (e *Engine) sessionLock(sessionID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

// releaseLock drops the mutex for a terminal session so the map does not
// grow unbounded.
func (e *Engine) releaseLock(sessionID uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, sessionID)
}

// newToken returns a 32-hex-char anonymous session token.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("chat: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// nextSequence returns the next message sequence for a session. Callers
// must hold the session lock, which makes the max+1 read-then-write safe;
// the unique (session_id, sequence) index backstops it at the schema level.
func nextSequence(tx *gorm.DB, sessionID uint) (int, error) {
	var maxSeq int
	err := tx.Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error
	if err != nil {
		return 0, fmt.Errorf("chat: next sequence: %w", err)
	}
	return maxSeq + 1, nil
}

// normalizeScore maps a 1-7 rating onto the shared 0-100 scale.
func normalizeScore(score float64) float64 {
	return (score - 1) / 6 * 100
}

// loadSession fetches a session by token.
func (e *Engine) loadSession(token string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := e.db.Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat: session not found for token")
		}
		return nil, fmt.Errorf("chat: load session: %w", err)
	}
	return &session, nil
}
