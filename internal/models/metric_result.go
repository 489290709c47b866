package models

import "time"

// MetricResult holds one calculation run of the four team metrics for a
// survey. Score and breakdown columns are nil whenever the privacy
// threshold is not met; the row is still written so callers can render an
// "insufficient data" state. Rows are computed atomically from the full
// respondent pool, never partially.
type MetricResult struct {
	ID                    uint `gorm:"primaryKey;autoIncrement"`
	TeamID                uint `gorm:"not null;index"`
	SurveyID              uint `gorm:"not null;index"`
	RespondentCount       int  `gorm:"default:0"`
	MeetsPrivacyThreshold bool `gorm:"default:false"`

	FlowScore             *float64
	FrictionScore         *float64
	SafetyScore           *float64
	PortfolioBalanceScore *float64

	FlowBreakdown      string `gorm:"type:json"`
	FrictionBreakdown  string `gorm:"type:json"`
	SafetyBreakdown    string `gorm:"type:json"`
	PortfolioBreakdown string `gorm:"type:json"`

	// DimensionBreakdown holds the raw per-dimension averages (0-100) the
	// opportunity engine consumes.
	DimensionBreakdown string `gorm:"type:json"`

	PreviousResultID *uint
	TrendDirection   TrendDirection `gorm:"size:8;default:stable"`
	CalculatedAt     time.Time      `gorm:"index"`

	Team     Team          `gorm:"foreignKey:TeamID"`
	Survey   Survey        `gorm:"foreignKey:SurveyID"`
	Previous *MetricResult `gorm:"foreignKey:PreviousResultID"`
}

// Opportunity is a RICE-scored improvement item. The scoring engine creates
// and refreshes rows while they are "identified"; after a human moves one to
// in_progress/completed/deferred the engine never touches it again.
type Opportunity struct {
	ID           uint               `gorm:"primaryKey;autoIncrement"`
	TeamID       uint               `gorm:"not null;uniqueIndex:idx_team_dimension"`
	SurveyID     *uint              `gorm:"index"`
	FrictionType *FrictionDimension `gorm:"size:16;uniqueIndex:idx_team_dimension"`

	Reach      int     `gorm:"default:0"`
	Impact     float64 `gorm:"default:1.0"`
	Confidence float64 `gorm:"default:0.8"`
	Effort     float64 `gorm:"default:2.0"`
	RICEScore  float64 `gorm:"column:rice_score;default:0"`

	// SourceScore is the dimension average (0-100) that triggered the
	// opportunity.
	SourceScore float64 `gorm:"default:0"`

	Title       string            `gorm:"size:256;not null"`
	Description string            `gorm:"type:text"`
	Status      OpportunityStatus `gorm:"size:16;default:identified;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	Team   Team    `gorm:"foreignKey:TeamID"`
	Survey *Survey `gorm:"foreignKey:SurveyID"`
}
