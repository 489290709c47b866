package models

import "time"

// ChatSession drives one respondent's conversational survey. Status moves
// started -> in_progress -> rating_confirmation -> completed, or to
// abandoned from any non-terminal state via the inactivity sweep. Once
// terminal the row is never mutated again.
type ChatSession struct {
	ID                uint               `gorm:"primaryKey;autoIncrement"`
	Token             string             `gorm:"size:64;not null;uniqueIndex"`
	SurveyID          uint               `gorm:"not null;index"`
	ResponseID        uint               `gorm:"not null;index"`
	Status            ChatSessionStatus  `gorm:"size:24;default:started;index"`
	CurrentDimension  *FrictionDimension `gorm:"size:16"`
	DimensionsCovered string             `gorm:"type:json;not null"` // JSON object with exactly 6 keys
	LLMProvider       string             `gorm:"size:32;default:openai"`
	TotalTokensInput  int                `gorm:"default:0"`
	TotalTokensOutput int                `gorm:"default:0"`
	StartedAt         time.Time
	LastActivityAt    time.Time `gorm:"index"`
	CompletedAt       *time.Time

	Survey           Survey                `gorm:"foreignKey:SurveyID"`
	Response         Response              `gorm:"foreignKey:ResponseID"`
	Messages         []ChatMessage         `gorm:"foreignKey:SessionID"`
	ExtractedRatings []ChatExtractedRating `gorm:"foreignKey:SessionID"`
}

// ChatMessage is one turn in a session transcript. Rows are append-only;
// sequence numbers are assigned server-side and strictly increase.
type ChatMessage struct {
	ID                   uint               `gorm:"primaryKey;autoIncrement"`
	SessionID            uint               `gorm:"not null;uniqueIndex:idx_session_seq"`
	Sequence             int                `gorm:"not null;uniqueIndex:idx_session_seq"`
	Role                 ChatMessageRole    `gorm:"size:16;not null"`
	Content              string             `gorm:"type:text;not null"`
	DimensionContext     *FrictionDimension `gorm:"size:16"`
	IsRatingConfirmation bool               `gorm:"default:false"`
	TokensInput          int                `gorm:"default:0"`
	TokensOutput         int                `gorm:"default:0"`
	LatencyMS            int                `gorm:"default:0"`
	CreatedAt            time.Time

	Session ChatSession `gorm:"foreignKey:SessionID"`
}

// ChatExtractedRating is the AI-inferred friction rating for one dimension
// of one session. Created provisional (UserConfirmed false, FinalScore nil),
// mutated exactly once by the confirmation workflow, then frozen.
type ChatExtractedRating struct {
	ID                uint              `gorm:"primaryKey;autoIncrement"`
	SessionID         uint              `gorm:"not null;uniqueIndex:idx_session_dimension"`
	Dimension         FrictionDimension `gorm:"size:16;not null;uniqueIndex:idx_session_dimension"`
	AIInferredScore   float64           `gorm:"not null"` // 1-7
	AIConfidence      float64           `gorm:"not null"` // 0-1
	AIReasoning       string            `gorm:"type:text"`
	KeyQuotes         string            `gorm:"type:json"` // JSON array of strings
	UserConfirmed     bool              `gorm:"default:false"`
	UserAdjustedScore *float64
	FinalScore        *float64 // 1-7, set only when the confirmation workflow resolves
	ConfirmRetries    int      `gorm:"default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Session ChatSession `gorm:"foreignKey:SessionID"`
}

// ChatSummary is the qualitative executive summary for a completed session.
// One per session, written once.
type ChatSummary struct {
	ID                     uint   `gorm:"primaryKey;autoIncrement"`
	SessionID              uint   `gorm:"not null;uniqueIndex"`
	ExecutiveSummary       string `gorm:"type:text;not null"`
	KeyPainPoints          string `gorm:"type:json"` // [{dimension, description, severity}]
	PositiveAspects        string `gorm:"type:json"` // JSON array of strings
	ImprovementSuggestions string `gorm:"type:json"` // JSON array of strings
	OverallSentiment       string `gorm:"size:16;default:neutral"`
	DimensionSentiments    string `gorm:"type:json"` // dimension -> sentiment
	CreatedAt              time.Time

	Session ChatSession `gorm:"foreignKey:SessionID"`
}
