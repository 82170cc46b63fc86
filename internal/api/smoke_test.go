// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require PostgreSQL or Redis — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Admin allow-list gating (403 for non-admins)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/predictru/backend/internal/api"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/service"
)

const adminTelegramID int64 = 777

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			Secret: "test-secret-abcdefghijklmnopqrstuv",
			TTL:    time.Hour,
		},
		Telegram: config.TelegramConfig{
			BotToken:    "123456:TEST-TOKEN",
			BotUsername: "predictru_bot",
			AdminIDs:    []int64{adminTelegramID},
		},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
	}
}

// buildTestRouter creates a Gin engine with a real AuthService (no DB needed
// for token parsing) and nil for everything that requires a DB.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	authSvc := service.NewAuthService(nil, nil, nil, nil, cfg)

	return api.SetupRouter(api.RouterDeps{
		AuthSvc: authSvc,
		Cfg:     cfg,
	})
}

// makeToken signs a JWT the way the auth service does, so middleware accepts
// it without any account lookup.
func makeToken(t *testing.T, telegramID int64) string {
	t.Helper()
	now := time.Now().UTC()
	claims := service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TelegramID: telegramID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg().JWT.Secret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── Auth endpoints — validation layer ─────────────────────────────────────────

func TestTelegramLogin_MissingInitData(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/telegram", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/telegram empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestWidgetLogin_BadSignature(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"id":424242,"first_name":"Olga","auth_date":1700000000,"hash":"deadbeef"}`
	rr := do(t, h, http.MethodPost, "/api/auth/widget", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/auth/widget with bogus hash = %d, want 401", rr.Code)
	}
}

func TestBotLoginStatus_MissingToken(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/auth/bot-login/status", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/auth/bot-login/status without token = %d, want 400", rr.Code)
	}
}

// ── JWT auth middleware (no token → 401) ──────────────────────────────────────

func TestMe_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/users/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/users/me without token = %d, want 401", rr.Code)
	}
}

func TestMyBets_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/bets/my", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/bets/my without token = %d, want 401", rr.Code)
	}
}

func TestTradeBuy_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"market_id":"11111111-1111-1111-1111-111111111111","outcome":"yes","amount":"100.00"}`
	rr := do(t, h, http.MethodPost, "/api/trades/buy", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/trades/buy without token = %d, want 401", rr.Code)
	}
}

func TestPlaceOrder_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"market_id":"11111111-1111-1111-1111-111111111111","intent":"buy_yes","price":"0.5000","quantity":"10"}`
	rr := do(t, h, http.MethodPost, "/api/orderbook/orders", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/orderbook/orders without token = %d, want 401", rr.Code)
	}
}

// ── JWT auth middleware (invalid token → 401) ─────────────────────────────────

func TestMe_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/users/me", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/users/me with bad JWT = %d, want 401", rr.Code)
	}
}

// ── Validation with a valid token ─────────────────────────────────────────────

func TestTradeBuy_BadMarketID_Returns400(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"market_id":"not-a-uuid","outcome":"yes","amount":"100.00"}`
	rr := do(t, h, http.MethodPost, "/api/trades/buy", payload, map[string]string{
		"Authorization": "Bearer " + makeToken(t, 555),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/trades/buy with bad market_id = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["code"] != "ERR_INVALID_MARKET_ID" {
		t.Errorf("error code = %v, want ERR_INVALID_MARKET_ID", body["code"])
	}
}

// ── Admin allow-list gating ───────────────────────────────────────────────────

func TestAdminRoutes_ForbiddenForNonAdmins(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/ugc/proposals/pending", "", map[string]string{
		"Authorization": "Bearer " + makeToken(t, 555),
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("GET /api/ugc/proposals/pending as non-admin = %d, want 403", rr.Code)
	}
}

func TestAdminRoutes_AdminPassesGate(t *testing.T) {
	h := buildTestRouter(t)
	// Empty body fails binding before any service call, so 400 here proves
	// the admin middleware let the request through.
	rr := do(t, h, http.MethodPost, "/api/admin/markets", `{}`, map[string]string{
		"Authorization": "Bearer " + makeToken(t, adminTelegramID),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/admin/markets as admin with empty body = %d, want 400", rr.Code)
	}
}

// ── Public endpoints ──────────────────────────────────────────────────────────

func TestMarketsList_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	// No token: should NOT be 401. Will be 500 (nil marketSvc) — that's acceptable.
	rr := do(t, h, http.MethodGet, "/api/markets", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/markets should be a public endpoint (no 401)")
	}
	t.Logf("GET /api/markets = %d (not 401, public route OK)", rr.Code)
}

func TestBetPreview_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/bets/preview/A7X2B9", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/bets/preview/:code should be public (no 401)")
	}
}

func TestOrderBookView_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/orderbook/markets/11111111-1111-1111-1111-111111111111/book", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/orderbook/markets/:id/book should be public (no 401)")
	}
}

func TestLeaderboard_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/users/leaderboard", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/users/leaderboard should be public (no 401)")
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/telegram", `{}`, nil)
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/telegram", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// OPTIONS should return 204 (no content) in dev mode
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/auth/telegram = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
