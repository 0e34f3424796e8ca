package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/handlers"
	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

type testServer struct {
	router *gin.Engine
	ledger *services.Ledger
	jwt    *services.JWTService
	hub    *handlers.WebSocketHub
}

func setupServer(t *testing.T, oracle services.Oracle) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := services.NewLedger(services.NewMemoryStore(models.StartingMana))
	hub := handlers.NewWebSocketHub()
	ledger.SetBroadcaster(hub)
	jwtService := services.NewJWTService("test-secret")

	router := handlers.NewRouter(handlers.RouterDeps{
		Ledger:      ledger,
		OddsMaker:   services.NewOddsMaker(oracle, time.Second),
		JWTService:  jwtService,
		Hub:         hub,
		AIRateLimit: 3,
	})

	return &testServer{router: router, ledger: ledger, jwt: jwtService, hub: hub}
}

func failingOracle() services.Oracle {
	return services.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("oracle unavailable")
	})
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode %s %s response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, resp
}

func number(t *testing.T, resp map[string]interface{}, key string) int64 {
	t.Helper()
	v, ok := resp[key].(float64)
	if !ok {
		t.Fatalf("Response field %q missing or not a number: %v", key, resp)
	}
	return int64(v)
}

func TestHealth(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodGet, "/health", nil)
	if code != http.StatusOK || resp["status"] != "ok" || resp["service"] != "chronocharm" {
		t.Errorf("Unexpected health response %d %v", code, resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := setupServer(t, failingOracle())

	req := httptest.NewRequest(http.MethodOptions, "/api/balance", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected permissive CORS header")
	}
}

func TestWagerLifecycle(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodGet, "/api/balance?user_id=alice", nil)
	if code != http.StatusOK {
		t.Fatalf("Balance failed: %d %v", code, resp)
	}
	if number(t, resp, "balance") != 1000 || number(t, resp, "total_earned") != 0 || resp["user_id"] != "alice" {
		t.Errorf("Unexpected fresh account %v", resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "task-1", "stake": 10, "user_id": "alice"})
	if code != http.StatusOK || number(t, resp, "new_balance") != 990 || number(t, resp, "stake_deducted") != 10 {
		t.Fatalf("Unexpected start response %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "task-1", "stake": 10, "bounty": 25, "won": true, "user_id": "alice"})
	if code != http.StatusOK || resp["outcome"] != "won" {
		t.Fatalf("Unexpected complete response %d %v", code, resp)
	}
	if number(t, resp, "new_balance") != 1015 || number(t, resp, "total_gain") != 35 ||
		number(t, resp, "bounty_awarded") != 25 || number(t, resp, "stake_returned") != 10 {
		t.Errorf("Unexpected won payload %v", resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "task-2", "stake": 15, "user_id": "alice"})
	if code != http.StatusOK || number(t, resp, "new_balance") != 1000 {
		t.Fatalf("Unexpected second start %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "task-2", "stake": 15, "bounty": 30, "won": false, "user_id": "alice"})
	if code != http.StatusOK || resp["outcome"] != "lost" {
		t.Fatalf("Unexpected lost response %d %v", code, resp)
	}
	if number(t, resp, "new_balance") != 1000 || number(t, resp, "stake_lost") != 15 {
		t.Errorf("Unexpected lost payload %v", resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance?user_id=alice", nil)
	if number(t, resp, "total_earned") != 25 || number(t, resp, "total_lost") != 15 || number(t, resp, "quests_completed") != 1 {
		t.Errorf("Unexpected counters %v", resp)
	}
}

func TestWagerStartInsufficientFunds(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "big", "stake": 99999})
	if code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d %v", code, resp)
	}
	if number(t, resp, "shortfall") != 98999 || number(t, resp, "balance") != 1000 {
		t.Errorf("Unexpected shortfall payload %v", resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance", nil)
	if number(t, resp, "balance") != 1000 || resp["user_id"] != models.DefaultUserID {
		t.Errorf("Balance should be unchanged for default user, got %v", resp)
	}
}

func TestWagerStateErrors(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, _ := s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "ghost", "stake": 10, "bounty": 20, "won": true})
	if code != http.StatusNotFound {
		t.Errorf("Completing an unknown wager should be 404, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"stake": 10})
	if code != http.StatusBadRequest {
		t.Errorf("Missing task_id should be 400, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "t", "stake": -5})
	if code != http.StatusBadRequest {
		t.Errorf("Negative stake should be 400, got %d", code)
	}

	s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "t", "stake": 10})
	code, _ = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "t", "stake": 10})
	if code != http.StatusConflict {
		t.Errorf("Second open wager should be 409, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "t", "stake": 11, "bounty": 20, "won": true})
	if code != http.StatusBadRequest {
		t.Errorf("Stake mismatch should be 400, got %d", code)
	}

	code, resp := s.do(t, http.MethodGet, "/api/wager/active", nil)
	if code != http.StatusOK || number(t, resp, "count") != 1 {
		t.Errorf("Expected one active wager, got %d %v", code, resp)
	}

	s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "t", "stake": 10, "bounty": 20, "won": true})
	code, resp = s.do(t, http.MethodPost, "/api/wager/complete", gin.H{"task_id": "t", "stake": 10, "bounty": 20, "won": true})
	if code != http.StatusOK || resp["replayed"] != true || number(t, resp, "new_balance") != 1020 {
		t.Errorf("Replay should return the original outcome, got %d %v", code, resp)
	}
}

func TestBreakdownFallback(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodPost, "/api/breakdown", gin.H{"assignment": "Write a lab report", "taskCount": 5})
	if code != http.StatusOK {
		t.Fatalf("Breakdown failed: %d %v", code, resp)
	}

	tasks, ok := resp["tasks"].([]interface{})
	if !ok || len(tasks) != 3 {
		t.Fatalf("Expected 3 fallback tasks, got %v", resp["tasks"])
	}
	for i, raw := range tasks {
		task := raw.(map[string]interface{})
		if task["id"] != fmt.Sprintf("task-%d", i+1) || task["estimatedTime"] != "5 min" || task["completed"] != false {
			t.Errorf("Unexpected board task %v", task)
		}
		if task["description"] == "" {
			t.Errorf("Task %d should carry its encouragement as description", i)
		}
	}
	if resp["totalEstimatedTime"] != "15 minutes" {
		t.Errorf("Expected 15 minutes, got %v", resp["totalEstimatedTime"])
	}
	if resp["quote"] == "" {
		t.Error("Expected a motivational quote")
	}
}

func TestBreakdownTruncatesToTaskCount(t *testing.T) {
	var tasks []string
	for i := 1; i <= 5; i++ {
		tasks = append(tasks, fmt.Sprintf(`{"id": "t%d", "title": "Step %d", "duration_minutes": %d, "required_stake": 5, "reward_bounty": 12, "encouragement_quote": "Go."}`, i, i, i))
	}
	reply := `{"tasks": [` + joinComma(tasks) + `]}`
	oracle := services.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return reply, nil
	})
	s := setupServer(t, oracle)

	code, resp := s.do(t, http.MethodPost, "/api/breakdown", gin.H{"assignment_text": "Five step chore", "taskCount": 2, "user_id": "bob"})
	if code != http.StatusOK {
		t.Fatalf("Breakdown failed: %d %v", code, resp)
	}
	if got := resp["tasks"].([]interface{}); len(got) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(got))
	}
	if resp["totalEstimatedTime"] != "3 minutes" {
		t.Errorf("Expected 3 minutes, got %v", resp["totalEstimatedTime"])
	}

	account, err := s.ledger.GetOrCreate(context.Background(), "bob")
	if err != nil || account.Balance != 1000 {
		t.Errorf("Breakdown should leave the account at its starting balance: %v %v", account, err)
	}
}

func joinComma(parts []string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(p)
	}
	return buf.String()
}

func TestBreakdownValidation(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, _ := s.do(t, http.MethodPost, "/api/breakdown", gin.H{"assignment": "   "})
	if code != http.StatusBadRequest {
		t.Errorf("Empty assignment should be 400, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/breakdown", gin.H{"assignment": "x", "taskCount": 500})
	if code != http.StatusBadRequest {
		t.Errorf("taskCount above 50 should be 400, got %d", code)
	}
}

func TestBreakdownRateLimited(t *testing.T) {
	s := setupServer(t, failingOracle())

	for i := 0; i < 3; i++ {
		code, _ := s.do(t, http.MethodPost, "/api/breakdown?user_id=hasty", gin.H{"assignment": "x"})
		if code != http.StatusOK {
			t.Fatalf("Request %d should pass, got %d", i, code)
		}
	}

	code, resp := s.do(t, http.MethodPost, "/api/breakdown?user_id=hasty", gin.H{"assignment": "x"})
	if code != http.StatusTooManyRequests {
		t.Errorf("Fourth request should be 429, got %d %v", code, resp)
	}

	code, _ = s.do(t, http.MethodPost, "/api/schedule?user_id=hasty", gin.H{"tasks": []gin.H{}})
	if code != http.StatusOK {
		t.Errorf("Schedule has its own budget, got %d", code)
	}
}

func TestScheduleFallback(t *testing.T) {
	s := setupServer(t, failingOracle())

	body := gin.H{
		"tasks": []gin.H{
			{"title": "Outline", "estimatedMinutes": 30, "stake": 10},
			{"title": "Draft", "stake": 30},
			{"title": "Edit", "estimatedMinutes": 45, "stake": 20},
		},
		"available_hours": []gin.H{
			{"dayIndex": 1, "hour": 15},
			{"dayIndex": 0, "hour": 9},
			{"dayIndex": 0, "hour": 6, "isBlocked": true},
		},
	}

	code, resp := s.do(t, http.MethodPost, "/api/schedule", body)
	if code != http.StatusOK {
		t.Fatalf("Schedule failed: %d %v", code, resp)
	}

	schedule := resp["schedule"].([]interface{})
	if len(schedule) != 2 {
		t.Fatalf("Two free days should place two tasks, got %v", schedule)
	}
	first := schedule[0].(map[string]interface{})
	second := schedule[1].(map[string]interface{})
	if first["taskIndex"] != float64(0) || first["dayIndex"] != float64(0) || first["startHour"] != float64(9) {
		t.Errorf("Unexpected first entry %v", first)
	}
	if second["taskIndex"] != float64(1) || second["dayIndex"] != float64(1) || second["startHour"] != float64(15) {
		t.Errorf("Unexpected second entry %v", second)
	}
}

func TestStatsAndReset(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodGet, "/api/stats?user_id=carol", nil)
	if code != http.StatusOK || resp["title"] != "First Year" || number(t, resp, "xpToNextLevel") != 100 {
		t.Fatalf("Unexpected default stats %d %v", code, resp)
	}

	updated := gin.H{"endurance": 12, "focus": 11, "magic": 15, "level": 2, "xp": 40, "xpToNextLevel": 200, "title": "Apprentice", "badges": []string{"first-quest"}}
	code, resp = s.do(t, http.MethodPost, "/api/stats?user_id=carol", updated)
	if code != http.StatusOK || resp["title"] != "Apprentice" {
		t.Fatalf("Unexpected stats update %d %v", code, resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/stats?user_id=carol", nil)
	if number(t, resp, "level") != 2 || len(resp["badges"].([]interface{})) != 1 {
		t.Errorf("Stats were not stored: %v", resp)
	}

	s.do(t, http.MethodPost, "/api/wager/start?user_id=carol", gin.H{"task_id": "t", "stake": 400})
	code, resp = s.do(t, http.MethodPost, "/api/reset?user_id=carol", nil)
	if code != http.StatusOK || resp["success"] != true || number(t, resp, "balance") != 1000 {
		t.Errorf("Unexpected reset response %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodGet, "/api/transactions?user_id=carol&limit=1", nil)
	if code != http.StatusOK || number(t, resp, "count") != 1 {
		t.Fatalf("Unexpected transactions %d %v", code, resp)
	}
	newest := resp["transactions"].([]interface{})[0].(map[string]interface{})
	if newest["type"] != string(models.TransactionTypeReset) {
		t.Errorf("Newest transaction should be the reset, got %v", newest)
	}

	code, _ = s.do(t, http.MethodGet, "/api/transactions?limit=0", nil)
	if code != http.StatusBadRequest {
		t.Errorf("limit=0 should be 400, got %d", code)
	}
}

func TestPartialStatsUpdateKeepsDefaults(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodPost, "/api/stats?user_id=ivy", gin.H{"xp": 40})
	if code != http.StatusOK {
		t.Fatalf("Stats update failed: %d %v", code, resp)
	}
	if number(t, resp, "xp") != 40 || number(t, resp, "endurance") != 10 || number(t, resp, "level") != 1 ||
		number(t, resp, "xpToNextLevel") != 100 || resp["title"] != "First Year" {
		t.Errorf("Omitted fields should keep defaults, got %v", resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/stats?user_id=ivy", nil)
	if number(t, resp, "xp") != 40 || number(t, resp, "magic") != 10 {
		t.Errorf("Stored stats lost defaults: %v", resp)
	}
}

func TestWagerStartRejectsBadRequests(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "forever", "stake": 10, "duration_seconds": 10_000_000_000})
	if code != http.StatusBadRequest {
		t.Errorf("Oversized duration should be 400, got %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/wager/start", gin.H{"task_id": "a\x00b", "stake": 10})
	if code != http.StatusBadRequest || resp["error"] != "Invalid request" {
		t.Errorf("NUL in task id should be 400 Invalid request, got %d %v", code, resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance", nil)
	if number(t, resp, "balance") != 1000 {
		t.Errorf("Rejected starts must not touch the balance, got %v", resp)
	}
}

func TestTokenIdentity(t *testing.T) {
	s := setupServer(t, failingOracle())

	code, resp := s.do(t, http.MethodPost, "/auth/token", gin.H{"user_id": "dana"})
	if code != http.StatusOK {
		t.Fatalf("Token issue failed: %d %v", code, resp)
	}
	token := resp["token"].(string)

	s.do(t, http.MethodPost, "/api/wager/start?user_id=mallory", gin.H{"task_id": "t", "stake": 100}, "Authorization", "Bearer "+token)

	_, resp = s.do(t, http.MethodGet, "/api/balance?user_id=mallory", nil, "Authorization", "Bearer "+token)
	if resp["user_id"] != "dana" || number(t, resp, "balance") != 900 {
		t.Errorf("Token subject should win over user_id, got %v", resp)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance?user_id=mallory", nil)
	if number(t, resp, "balance") != 1000 {
		t.Errorf("mallory should be untouched, got %v", resp)
	}

	code, _ = s.do(t, http.MethodGet, "/api/balance", nil, "Authorization", "Bearer not-a-token")
	if code != http.StatusUnauthorized {
		t.Errorf("Invalid token should be 401, got %d", code)
	}

	code, _ = s.do(t, http.MethodGet, "/api/balance", nil, "Authorization", "Token abc")
	if code != http.StatusUnauthorized {
		t.Errorf("Malformed header should be 401, got %d", code)
	}
}

func TestTokenDisabledWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		Ledger:     services.NewLedger(services.NewMemoryStore(models.StartingMana)),
		OddsMaker:  services.NewOddsMaker(failingOracle(), time.Second),
		JWTService: services.NewJWTService(""),
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without secret, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Tokens are ignored without a secret, got %d", w.Code)
	}
}
