package metrics

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Team{},
		&models.Survey{},
		&models.Response{},
		&models.Answer{},
		&models.MetricResult{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedSurvey(t *testing.T, db *gorm.DB) *models.Survey {
	t.Helper()
	team := models.Team{Name: "payments", MemberCount: 8}
	if err := db.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	survey := models.Survey{TeamID: team.ID, Title: "pulse", Status: models.SurveyActive}
	if err := db.Create(&survey).Error; err != nil {
		t.Fatalf("create survey: %v", err)
	}
	return &survey
}

// addResponse creates one complete response scoring every dimension at the
// given value.
func addResponse(t *testing.T, db *gorm.DB, surveyID uint, value float64) {
	t.Helper()
	now := time.Now()
	resp := models.Response{SurveyID: surveyID, IsComplete: true, SubmittedAt: &now}
	if err := db.Create(&resp).Error; err != nil {
		t.Fatalf("create response: %v", err)
	}
	for _, dim := range models.Dimensions() {
		if err := db.Create(&models.Answer{
			ResponseID: resp.ID, Dimension: dim, NumericValue: value,
		}).Error; err != nil {
			t.Fatalf("create answer: %v", err)
		}
	}
}

func TestCalculate_WithholdsBelowThreshold(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)
	for i := 0; i < 6; i++ {
		addResponse(t, db, survey.ID, 60)
	}

	calc := NewCalculator(db, config.Default()) // min_respondents 7
	result, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.MeetsPrivacyThreshold {
		t.Fatal("6 respondents must not meet a threshold of 7")
	}
	if result.RespondentCount != 6 {
		t.Errorf("respondent count = %d, want 6", result.RespondentCount)
	}
	if result.FlowScore != nil || result.FrictionScore != nil ||
		result.SafetyScore != nil || result.PortfolioBalanceScore != nil {
		t.Error("withheld result must carry nil scores")
	}
	if result.DimensionBreakdown != "" {
		t.Error("withheld result must carry no dimension breakdown")
	}
}

func TestCalculate_DisclosesAtThreshold(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)
	for i := 0; i < 7; i++ {
		addResponse(t, db, survey.ID, 60)
	}

	calc := NewCalculator(db, config.Default())
	result, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.MeetsPrivacyThreshold {
		t.Fatal("7 respondents must meet the threshold")
	}
	// Every dimension averages 60, so each weighted metric is also 60.
	for name, score := range map[string]*float64{
		"flow":              result.FlowScore,
		"friction":          result.FrictionScore,
		"safety":            result.SafetyScore,
		"portfolio_balance": result.PortfolioBalanceScore,
	} {
		if score == nil {
			t.Fatalf("%s score is nil", name)
		}
		if *score < 59.99 || *score > 60.01 {
			t.Errorf("%s = %.2f, want 60", name, *score)
		}
	}
}

func TestCalculate_WeightedCombination(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)

	// Seven responses: clarity 40, delay 80, everything else 60.
	now := time.Now()
	for i := 0; i < 7; i++ {
		resp := models.Response{SurveyID: survey.ID, IsComplete: true, SubmittedAt: &now}
		db.Create(&resp)
		for _, dim := range models.Dimensions() {
			value := 60.0
			switch dim {
			case models.DimClarity:
				value = 40
			case models.DimDelay:
				value = 80
			}
			db.Create(&models.Answer{ResponseID: resp.ID, Dimension: dim, NumericValue: value})
		}
	}

	calc := NewCalculator(db, config.Default())
	result, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flow = 0.4*clarity + 0.6*delay = 16 + 48 = 64.
	if result.FlowScore == nil || *result.FlowScore < 63.99 || *result.FlowScore > 64.01 {
		t.Errorf("flow = %v, want 64", result.FlowScore)
	}
	// Portfolio = 0.5*process + 0.5*delay = 30 + 40 = 70.
	if result.PortfolioBalanceScore == nil || *result.PortfolioBalanceScore < 69.99 || *result.PortfolioBalanceScore > 70.01 {
		t.Errorf("portfolio = %v, want 70", result.PortfolioBalanceScore)
	}
}

func TestCalculate_IgnoresIncompleteResponses(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)
	for i := 0; i < 7; i++ {
		addResponse(t, db, survey.ID, 60)
	}
	// An abandoned chat leaves an incomplete response behind.
	db.Create(&models.Response{SurveyID: survey.ID, IsComplete: false})

	calc := NewCalculator(db, config.Default())
	result, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RespondentCount != 7 {
		t.Errorf("respondent count = %d, want 7 (incomplete excluded)", result.RespondentCount)
	}
}

func TestCalculate_TrendAgainstPreviousSurvey(t *testing.T) {
	db := openTestDB(t)

	team := models.Team{Name: "infra", MemberCount: 10}
	db.Create(&team)
	old := models.Survey{TeamID: team.ID, Title: "old", Status: models.SurveyClosed}
	db.Create(&old)
	current := models.Survey{TeamID: team.ID, Title: "new", Status: models.SurveyActive}
	db.Create(&current)

	for i := 0; i < 7; i++ {
		addResponse(t, db, old.ID, 50)
		addResponse(t, db, current.ID, 70)
	}

	calc := NewCalculator(db, config.Default())
	previous, err := calc.Calculate(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("previous run: %v", err)
	}
	result, err := calc.Calculate(context.Background(), current.ID)
	if err != nil {
		t.Fatalf("current run: %v", err)
	}

	if result.TrendDirection != models.TrendUp {
		t.Errorf("trend = %s, want up (delta +20)", result.TrendDirection)
	}
	if result.PreviousResultID == nil || *result.PreviousResultID != previous.ID {
		t.Errorf("previous result id = %v, want %d", result.PreviousResultID, previous.ID)
	}
}

func TestCalculate_TrendDeadBandIsStable(t *testing.T) {
	db := openTestDB(t)

	team := models.Team{Name: "mobile", MemberCount: 10}
	db.Create(&team)
	old := models.Survey{TeamID: team.ID, Title: "old", Status: models.SurveyClosed}
	db.Create(&old)
	current := models.Survey{TeamID: team.ID, Title: "new", Status: models.SurveyActive}
	db.Create(&current)

	for i := 0; i < 7; i++ {
		addResponse(t, db, old.ID, 60)
		addResponse(t, db, current.ID, 63) // delta +3, inside the 5-point band
	}

	calc := NewCalculator(db, config.Default())
	if _, err := calc.Calculate(context.Background(), old.ID); err != nil {
		t.Fatalf("previous run: %v", err)
	}
	result, err := calc.Calculate(context.Background(), current.ID)
	if err != nil {
		t.Fatalf("current run: %v", err)
	}
	if result.TrendDirection != models.TrendStable {
		t.Errorf("trend = %s, want stable inside dead-band", result.TrendDirection)
	}
}

func TestCalculate_IdempotentOverSamePool(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)
	for i := 0; i < 7; i++ {
		addResponse(t, db, survey.ID, 55)
	}

	calc := NewCalculator(db, config.Default())
	first, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := calc.Calculate(context.Background(), survey.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if *first.FlowScore != *second.FlowScore || *first.FrictionScore != *second.FrictionScore {
		t.Error("same pool must produce identical scores")
	}

	var count int64
	db.Model(&models.MetricResult{}).Where("survey_id = ?", survey.ID).Count(&count)
	if count != 2 {
		t.Errorf("result rows = %d, want 2 (one per run)", count)
	}
}

func TestLatest(t *testing.T) {
	db := openTestDB(t)
	survey := seedSurvey(t, db)

	calc := NewCalculator(db, config.Default())
	if result, err := calc.Latest(survey.ID); err != nil || result != nil {
		t.Fatalf("latest = (%v, %v), want (nil, nil) before any run", result, err)
	}

	for i := 0; i < 7; i++ {
		addResponse(t, db, survey.ID, 50)
	}
	stored, _ := calc.Calculate(context.Background(), survey.ID)

	result, err := calc.Latest(survey.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.ID != stored.ID {
		t.Errorf("latest = %v, want row %d", result, stored.ID)
	}
}
