package models

// FrictionDimension is one of the six fixed categories of workplace friction.
type FrictionDimension string

const (
	DimClarity FrictionDimension = "clarity"
	DimTooling FrictionDimension = "tooling"
	DimProcess FrictionDimension = "process"
	DimRework  FrictionDimension = "rework"
	DimDelay   FrictionDimension = "delay"
	DimSafety  FrictionDimension = "safety"
)

// NumDimensions is the fixed dimension count. Every session finalizes
// exactly this many ratings.
const NumDimensions = 6

// Dimensions returns the six friction dimensions in canonical discussion
// order. The chat engine walks this order, so it must never change.
func Dimensions() [NumDimensions]FrictionDimension {
	return [NumDimensions]FrictionDimension{
		DimClarity, DimTooling, DimProcess, DimRework, DimDelay, DimSafety,
	}
}

// DimensionIndex returns the canonical index of d, or -1 if d is not a
// known dimension.
func DimensionIndex(d FrictionDimension) int {
	for i, dim := range Dimensions() {
		if dim == d {
			return i
		}
	}
	return -1
}

// ValidDimension reports whether d is one of the six known dimensions.
func ValidDimension(d FrictionDimension) bool {
	return DimensionIndex(d) >= 0
}

// ChatSessionStatus is the closed set of chat session states.
type ChatSessionStatus string

const (
	SessionStarted            ChatSessionStatus = "started"
	SessionInProgress         ChatSessionStatus = "in_progress"
	SessionRatingConfirmation ChatSessionStatus = "rating_confirmation"
	SessionCompleted          ChatSessionStatus = "completed"
	SessionAbandoned          ChatSessionStatus = "abandoned"
)

// Terminal reports whether the session accepts no further transitions.
func (s ChatSessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// ChatMessageRole identifies who produced a chat message.
type ChatMessageRole string

const (
	RoleSystem    ChatMessageRole = "system"
	RoleAssistant ChatMessageRole = "assistant"
	RoleUser      ChatMessageRole = "user"
)

// SurveyStatus is the survey lifecycle state.
type SurveyStatus string

const (
	SurveyDraft  SurveyStatus = "draft"
	SurveyActive SurveyStatus = "active"
	SurveyClosed SurveyStatus = "closed"
)

// MetricType names the four team metrics derived from survey responses.
type MetricType string

const (
	MetricFlow             MetricType = "flow"
	MetricFriction         MetricType = "friction"
	MetricSafety           MetricType = "safety"
	MetricPortfolioBalance MetricType = "portfolio_balance"
)

// TrendDirection compares a metric result against the team's previous one.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// OpportunityStatus is the manual workflow state of an opportunity. Only
// "identified" rows may be rewritten by the scoring engine; the rest are
// owned by humans.
type OpportunityStatus string

const (
	OpportunityIdentified OpportunityStatus = "identified"
	OpportunityInProgress OpportunityStatus = "in_progress"
	OpportunityCompleted  OpportunityStatus = "completed"
	OpportunityDeferred   OpportunityStatus = "deferred"
)
