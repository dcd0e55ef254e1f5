package front

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/reviewrelay/reviewrelay/internal/config"
	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/models"
	"github.com/reviewrelay/reviewrelay/internal/plan"
	"github.com/reviewrelay/reviewrelay/internal/quota"
	"github.com/reviewrelay/reviewrelay/internal/ratelimit"
	"github.com/reviewrelay/reviewrelay/internal/security"
	"github.com/reviewrelay/reviewrelay/internal/usage"
	"gorm.io/gorm"
)

type testEnv struct {
	engine   *gin.Engine
	conn     *gorm.DB
	registry *plan.Registry
	jwtCfg   config.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.Subscription{}, &models.UsageEvent{}, &models.ReviewJob{}, &models.ReviewArtifact{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	registry := plan.NewRegistry()
	ledger := usage.NewLedger(conn, time.UTC)
	limiter := ratelimit.NewManager(nil, nil, nil)
	checker := quota.NewChecker(conn, registry, ledger, limiter)
	jobStore := jobs.NewStore(conn)

	engine := gin.New()
	RegisterFrontRoutes(engine, conn, jwtCfg, registry, checker, ledger, jobStore)
	return &testEnv{engine: engine, conn: conn, registry: registry, jwtCfg: jwtCfg}
}

func (e *testEnv) createUser(t *testing.T, username, password string, active bool) models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{Username: username, Password: hash, Active: active}
	if errCreate := e.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	// The column has default:true, so a zero-valued Active is dropped on
	// insert; write it explicitly so the fixture matches the argument.
	if errActive := e.conn.Model(&user).Update("active", active).Error; errActive != nil {
		t.Fatalf("set active: %v", errActive)
	}
	return user
}

func (e *testEnv) tokenFor(t *testing.T, userID uint64) string {
	t.Helper()
	token, errSign := security.SignUserToken(e.jwtCfg.Secret, userID, e.jwtCfg.Expiry)
	if errSign != nil {
		t.Fatalf("sign token: %v", errSign)
	}
	return token
}

func (e *testEnv) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pass123", true)

	rec := env.do(http.MethodPost, "/v0/auth/login", `{"username": "alice", "password": "pass123"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in response")
	}
	claims, errParse := security.ParseUserToken(env.jwtCfg.Secret, resp.Token)
	if errParse != nil {
		t.Fatalf("parse issued token: %v", errParse)
	}
	if claims.UserID == 0 {
		t.Fatalf("expected user id in claims")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pass123", true)

	rec := env.do(http.MethodPost, "/v0/auth/login", `{"username": "alice", "password": "nope"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v0/auth/login", `{"username": "ghost", "password": "x"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pass123", false)

	rec := env.do(http.MethodPost, "/v0/auth/login", `{"username": "alice", "password": "pass123"}`, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPlansArePublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v0/plans", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Plans []struct {
			Name          string `json:"name"`
			DailyRequests int    `json:"daily_requests"`
		} `json:"plans"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(resp.Plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(resp.Plans))
	}
	if resp.Plans[0].Name != "free" || resp.Plans[0].DailyRequests != 50 {
		t.Fatalf("expected free plan first, got %+v", resp.Plans[0])
	}
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "hi"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/v0/chat", `{"prompt": "hi"}`, "not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestChatEchoesAndRecordsUsage(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "hello there"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Answer string `json:"answer"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if !strings.HasPrefix(resp.Answer, "Echo: hello there") {
		t.Fatalf("expected echo answer, got %q", resp.Answer)
	}

	var count int64
	if errCount := env.conn.Model(&models.UsageEvent{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count usage: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 usage event, got %d", count)
	}
}

func TestChatDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Apply(map[string]plan.Limits{"free": {DailyRequests: 1}})
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	if rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "one"}`, token); rec.Code != http.StatusOK {
		t.Fatalf("expected first chat to pass, got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "two"}`, token)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over daily limit, got %d", rec.Code)
	}

	var count int64
	if errCount := env.conn.Model(&models.UsageEvent{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count usage: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected rejected request to record nothing, got %d events", count)
	}
}

func TestChatRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Apply(map[string]plan.Limits{"free": {RPM: 1}})
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	if rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "one"}`, token); rec.Code != http.StatusOK {
		t.Fatalf("expected first chat to pass, got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "two"}`, token)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over rate limit, got %d", rec.Code)
	}
}

func TestChatTokenBudget(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Apply(map[string]plan.Limits{"free": {MaxTokens: 10}})
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	prompt := strings.Repeat("a", 100)
	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "`+prompt+`"}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 over token budget, got %d", rec.Code)
	}
}

func TestChatRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "  "}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty prompt, got %d", rec.Code)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	if rec := env.do(http.MethodPost, "/v0/chat", `{"prompt": "one"}`, token); rec.Code != http.StatusOK {
		t.Fatalf("chat: %d", rec.Code)
	}

	rec := env.do(http.MethodGet, "/v0/quota", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		OK    bool   `json:"ok"`
		Used  int    `json:"used"`
		Limit int    `json:"limit"`
		Plan  string `json:"plan"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if !resp.OK || resp.Used != 1 || resp.Limit != 50 || resp.Plan != "free" {
		t.Fatalf("expected free plan with 1/50 used, got %+v", resp)
	}
}

func TestQuotaReflectsSubscription(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	sub := models.Subscription{UserID: user.ID, Plan: "team", Status: models.SubscriptionStatusActive}
	if errCreate := env.conn.Create(&sub).Error; errCreate != nil {
		t.Fatalf("create subscription: %v", errCreate)
	}
	token := env.tokenFor(t, user.ID)

	rec := env.do(http.MethodGet, "/v0/quota", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Limit int    `json:"limit"`
		Plan  string `json:"plan"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Plan != "pro" || resp.Limit != 500 {
		t.Fatalf("expected pro plan with 500 limit, got %+v", resp)
	}
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	store := jobs.NewStore(env.conn)
	job, _, errCreate := store.Create(context.Background(), "https://x/mr/1", jobs.Meta{Provider: "gitlab", MergeRequestID: 1, Class: "quick"}, "key-1")
	if errCreate != nil {
		t.Fatalf("create job: %v", errCreate)
	}

	rec := env.do(http.MethodGet, "/v0/jobs/1", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		ID     uint64 `json:"id"`
		Status string `json:"status"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &view); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if view.ID != job.ID || view.Status != models.ReviewJobStatusQueued {
		t.Fatalf("expected queued job %d, got %+v", job.ID, view)
	}

	rec = env.do(http.MethodGet, "/v0/jobs/999", "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/v0/jobs", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for list, got %d", rec.Code)
	}
	var list struct {
		Jobs []struct {
			ID uint64 `json:"id"`
		} `json:"jobs"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &list); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(list.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list.Jobs))
	}
}

func TestJobIncludesArtifactAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", true)
	token := env.tokenFor(t, user.ID)

	store := jobs.NewStore(env.conn)
	ctx := context.Background()
	job, _, errCreate := store.Create(ctx, "https://x/mr/1", jobs.Meta{Provider: "gitlab", Class: "quick"}, "key-1")
	if errCreate != nil {
		t.Fatalf("create job: %v", errCreate)
	}
	if errTransition := store.Transition(ctx, job.ID, models.ReviewJobStatusQueued, models.ReviewJobStatusRunning); errTransition != nil {
		t.Fatalf("transition: %v", errTransition)
	}
	if errComplete := store.Complete(ctx, job.ID, models.ReviewJobStatusSucceeded, "review text"); errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}

	rec := env.do(http.MethodGet, "/v0/jobs/1", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		Status   string `json:"status"`
		Artifact string `json:"artifact"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &view); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if view.Status != models.ReviewJobStatusSucceeded || view.Artifact != "review text" {
		t.Fatalf("expected succeeded job with artifact, got %+v", view)
	}
}

func TestAuthRejectsInactiveUserToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice", "pass123", false)
	token := env.tokenFor(t, user.ID)

	rec := env.do(http.MethodGet, "/v0/quota", "", token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive user, got %d", rec.Code)
	}
}
