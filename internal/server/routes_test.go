package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frictiondesk/frictiondesk/internal/chat"
	"github.com/frictiondesk/frictiondesk/internal/config"
	"github.com/frictiondesk/frictiondesk/internal/db"
	"github.com/frictiondesk/frictiondesk/internal/llm"
	"github.com/frictiondesk/frictiondesk/internal/metrics"
	"github.com/frictiondesk/frictiondesk/internal/models"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
)

// scriptedClient answers extraction and summary prompts with fixed JSON and
// everything else with a canned reply.
type scriptedClient struct{}

func (s *scriptedClient) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	switch {
	case strings.Contains(user, `"key_quotes"`):
		return &llm.Completion{Content: `{"score": 5, "confidence": 0.9, "reasoning": "fine", "key_quotes": []}`}, nil
	case strings.Contains(user, `"executive_summary"`):
		return &llm.Completion{Content: `{"executive_summary": "All good.", "overall_sentiment": "positive"}`}, nil
	default:
		return &llm.Completion{Content: "Tell me more?"}, nil
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Default()
	calc := metrics.NewCalculator(gormDB, cfg)
	engine, err := chat.NewEngine(chat.EngineOpts{
		DB:     gormDB,
		Client: &scriptedClient{},
		Config: cfg.Chat,
		Recalc: calc,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, &handlers{
		db:     gormDB,
		engine: engine,
		calc:   calc,
		opps:   opportunity.NewGenerator(gormDB, cfg),
	})
	return router, gormDB
}

func seedActiveSurvey(t *testing.T, gormDB *gorm.DB) *models.Survey {
	t.Helper()
	team := models.Team{Name: "web", Occupation: "frontend engineers", MemberCount: 6}
	if err := gormDB.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	survey := models.Survey{TeamID: team.ID, Title: "sprint pulse", Status: models.SurveyActive}
	if err := gormDB.Create(&survey).Error; err != nil {
		t.Fatalf("create survey: %v", err)
	}
	return &survey
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestStartChatEndpoint(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	w, body := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/surveys/%d/chat", survey.ID), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	token, _ := body["token"].(string)
	if len(token) != 32 {
		t.Errorf("token = %q, want 32 hex chars", token)
	}
	if body["status"] != string(models.SessionInProgress) {
		t.Errorf("status = %v, want in_progress", body["status"])
	}
	if body["opening_message"] == nil {
		t.Error("opening message missing")
	}
}

func TestStartChatEndpoint_BadSurvey(t *testing.T) {
	router, _ := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/surveys/999/chat", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/surveys/abc/chat", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-numeric id", w.Code)
	}
}

func TestMessageEndpoint_FlowToConfirmation(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	_, start := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/surveys/%d/chat", survey.ID), nil)
	token := start["token"].(string)

	w, _ := doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/messages",
		map[string]string{"content": "my requirements are usually clear"})
	if w.Code != http.StatusOK {
		t.Fatalf("turn 1 status = %d: %s", w.Code, w.Body.String())
	}

	w, body := doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/messages",
		map[string]string{"content": "though sometimes priorities shift mid-sprint"})
	if w.Code != http.StatusOK {
		t.Fatalf("turn 2 status = %d: %s", w.Code, w.Body.String())
	}
	if body["status"] != string(models.SessionRatingConfirmation) {
		t.Errorf("status = %v, want rating_confirmation", body["status"])
	}
	if body["pending_rating"] == nil {
		t.Error("pending rating missing after two turns")
	}

	// Empty content is rejected before touching the engine.
	w, _ = doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/messages", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", w.Code)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	_, start := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/surveys/%d/chat", survey.ID), nil)
	token := start["token"].(string)

	// Confirm with nothing pending is a conflict.
	w, _ := doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/confirm",
		map[string]interface{}{"confirmed": true})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 with nothing pending", w.Code)
	}

	doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/messages", map[string]string{"content": "first"})
	doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/messages", map[string]string{"content": "second"})

	w, body := doJSON(t, router, http.MethodPost, "/api/chat/"+token+"/confirm",
		map[string]interface{}{"confirmed": false, "adjusted_score": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	rating := body["rating"].(map[string]interface{})
	if rating["final_score"].(float64) != 2 {
		t.Errorf("final score = %v, want 2", rating["final_score"])
	}
	if body["next_dimension"] != string(models.DimTooling) {
		t.Errorf("next dimension = %v, want tooling", body["next_dimension"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	w, _ := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/surveys/%d/metrics", survey.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any run", w.Code)
	}

	// Three completed responses: below the threshold of 7, so the stored
	// result withholds scores.
	now := time.Now()
	for i := 0; i < 3; i++ {
		resp := models.Response{SurveyID: survey.ID, IsComplete: true, SubmittedAt: &now}
		gormDB.Create(&resp)
		for _, dim := range models.Dimensions() {
			gormDB.Create(&models.Answer{ResponseID: resp.ID, Dimension: dim, NumericValue: 50})
		}
	}
	calc := metrics.NewCalculator(gormDB, config.Default())
	if _, err := calc.Calculate(context.Background(), survey.ID); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	w, body := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/surveys/%d/metrics", survey.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body["meets_privacy_threshold"] != false {
		t.Error("threshold flag should be false")
	}
	if body["flow_score"] != nil {
		t.Errorf("flow score = %v, want null when withheld", body["flow_score"])
	}
	if body["respondent_count"].(float64) != 3 {
		t.Errorf("respondent count = %v, want 3", body["respondent_count"])
	}
}

func TestCloseSurveyEndpoint(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	w, body := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/surveys/%d/close", survey.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body["status"] != string(models.SurveyClosed) {
		t.Errorf("status = %v, want closed", body["status"])
	}

	var reloaded models.Survey
	gormDB.First(&reloaded, survey.ID)
	if reloaded.Status != models.SurveyClosed || reloaded.ClosedAt == nil {
		t.Errorf("survey = %s closed_at %v, want closed with timestamp", reloaded.Status, reloaded.ClosedAt)
	}

	// Closing twice is a conflict.
	w, _ = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/surveys/%d/close", survey.ID), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second close status = %d, want 409", w.Code)
	}
}

func TestOpportunityEndpoints(t *testing.T) {
	router, gormDB := newTestRouter(t)
	survey := seedActiveSurvey(t, gormDB)

	dim := models.DimTooling
	opp := models.Opportunity{
		TeamID: survey.TeamID, SurveyID: &survey.ID, FrictionType: &dim,
		Reach: 6, Impact: 2.0, Confidence: 0.8, Effort: 4.0, RICEScore: 2.4,
		Title: "Upgrade tooling and automation", Status: models.OpportunityIdentified,
	}
	if err := gormDB.Create(&opp).Error; err != nil {
		t.Fatalf("create opportunity: %v", err)
	}

	w, body := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/teams/%d/opportunities", survey.TeamID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", w.Code, w.Body.String())
	}
	list := body["opportunities"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(list))
	}

	w, patched := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/opportunities/%d", opp.ID),
		map[string]interface{}{"status": "in_progress", "effort": 2.0})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", w.Code, w.Body.String())
	}
	if patched["status"] != string(models.OpportunityInProgress) {
		t.Errorf("status = %v, want in_progress", patched["status"])
	}
	// Effort halved: 6 * 2.0 * 0.8 / 2.0 = 4.8.
	if patched["rice_score"].(float64) != 4.8 {
		t.Errorf("rice = %v, want 4.8", patched["rice_score"])
	}

	bad := map[string]interface{}{"effort": -1}
	w, _ = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/opportunities/%d", opp.ID), bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid effort status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/opportunities/%d", opp.ID),
		map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", w.Code)
	}
}
