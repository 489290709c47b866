package models

import "time"

// Team is the unit of aggregation for metrics and opportunities.
type Team struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"size:128;not null;uniqueIndex"`
	Occupation  string `gorm:"size:128"`
	MemberCount int    `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Surveys       []Survey      `gorm:"foreignKey:TeamID"`
	Opportunities []Opportunity `gorm:"foreignKey:TeamID"`
}

// Survey is a collection round for one team. Chat sessions and Likert
// responses both hang off a survey.
type Survey struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	TeamID    uint         `gorm:"not null;index"`
	Title     string       `gorm:"size:256;not null"`
	Status    SurveyStatus `gorm:"size:16;default:draft;index"`
	CreatedAt time.Time
	ClosedAt  *time.Time

	Team      Team       `gorm:"foreignKey:TeamID"`
	Responses []Response `gorm:"foreignKey:SurveyID"`
}

// Response is one respondent's anonymous submission. Incomplete responses
// (including abandoned chat sessions) never count toward aggregation.
type Response struct {
	ID                    uint `gorm:"primaryKey;autoIncrement"`
	SurveyID              uint `gorm:"not null;index"`
	IsComplete            bool `gorm:"default:false;index"`
	SubmittedAt           *time.Time
	CompletionTimeSeconds int
	CreatedAt             time.Time

	Survey  Survey   `gorm:"foreignKey:SurveyID"`
	Answers []Answer `gorm:"foreignKey:ResponseID"`
}

// Answer is a single per-dimension score on the shared 0-100 scale. Both
// structured Likert answers and finalized chat ratings land here, so the
// metrics engine aggregates one pool.
type Answer struct {
	ID           uint              `gorm:"primaryKey;autoIncrement"`
	ResponseID   uint              `gorm:"not null;index"`
	Dimension    FrictionDimension `gorm:"size:16;not null;index"`
	NumericValue float64           `gorm:"not null"` // 0-100
	Comment      string            `gorm:"type:text"`
	CreatedAt    time.Time

	Response Response `gorm:"foreignKey:ResponseID"`
}
