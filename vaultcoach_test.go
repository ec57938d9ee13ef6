package vaultcoach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/vaultcoach/billing"
	"github.com/ghiac/vaultcoach/config"
	llminterface "github.com/ghiac/vaultcoach/llm-interface"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/server"
	"github.com/ghiac/vaultcoach/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const sessionsJSON = `[
  {"id": "s1", "date": "2025-02-01", "sessionType": "Training", "location": "Indoor Dome",
   "jumps": [{"height": "4.50", "result": "make"}, {"height": "4.50", "result": "no-make"}]},
  {"date": "2025-02-08", "sessionType": "Competition", "competitionName": "Winter Open",
   "jumps": [{"height": "4.52", "result": "make"}]}
]`

type stubProvider struct {
	customers int
}

func (p *stubProvider) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	p.customers++
	return "cus_" + userID, nil
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	return "https://checkout.test/" + params.PriceID, nil
}

func (p *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

func (p *stubProvider) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	if signature != "valid" {
		return nil, model.NewError(model.CodeInvalidArgument, "bad signature")
	}
	return &billing.Event{
		Type:           billing.EventSubscriptionUpdated,
		UserID:         "athlete-1",
		CustomerID:     "cus_athlete-1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusActive,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Auth:  config.AuthConfig{JWTSecret: "test-secret"},
		Store: config.StoreConfig{Driver: config.StoreMemory},
		Chat: config.ChatConfig{
			Timeout:          5 * time.Second,
			MaxToolIters:     5,
			HistoryLimit:     10,
			PersistToolCalls: true,
		},
		Billing: config.BillingConfig{
			StripeWebhookSecret: "whsec_test",
			MonthlyPriceID:      "price_monthly",
			CouponID:            "LAUNCH50",
			PortalReturnURL:     "https://app.test/settings",
		},
	}
}

// scriptedModel asks for the user's stats once, then answers
func scriptedModel() llminterface.Provider {
	return llminterface.ProviderFunc(func(ctx context.Context, model string, messages []llminterface.Message, tools []llminterface.Tool) (*llminterface.Response, error) {
		last := messages[len(messages)-1]
		if last.Role == "tool" {
			return &llminterface.Response{Content: "You have **3** jumps logged."}, nil
		}
		return &llminterface.Response{ToolCalls: []llminterface.ToolCall{
			{ID: "call_1", Name: "get_user_stats", Arguments: `{"timeframe":"all"}`},
		}}, nil
	})
}

type testEnv struct {
	app    *App
	store  *store.MemoryStore
	server *server.Server
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	st := store.NewMemoryStore()
	app, err := NewWithOptions(cfg, &Options{
		Store:           st,
		LLMClient:       llminterface.NewClient(scriptedModel()),
		PaymentProvider: &stubProvider{},
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	if _, err := app.ImportSessions(context.Background(), "athlete-1", strings.NewReader(sessionsJSON)); err != nil {
		t.Fatalf("ImportSessions: %v", err)
	}
	token, err := server.IssueToken(cfg.Auth, "athlete-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return &testEnv{app: app, store: st, server: server.NewServer(cfg, app), token: token}
}

func (e *testEnv) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return out
}

func TestImportSessions(t *testing.T) {
	env := newTestEnv(t)
	sessions, err := env.store.ListSessions(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("imported %d sessions, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == "" {
			t.Error("session without id")
		}
	}
	if sessions[0].CompetitionName != "Winter Open" || !sessions[0].IsCompetition() {
		t.Errorf("newest session = %+v", sessions[0])
	}

	if _, err := env.app.ImportSessions(context.Background(), "", strings.NewReader(sessionsJSON)); err == nil {
		t.Error("expected an error without a user")
	}
	if _, err := env.app.ImportSessions(context.Background(), "athlete-1", strings.NewReader("{")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestHealthAndTools(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if body := decode(t, w); body["status"] != "ok" || body["tools"] != float64(10) {
		t.Errorf("health = %v", body)
	}

	w = env.do(t, http.MethodGet, "/docs", "", false)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `id="get_height_progression"`) {
		t.Errorf("docs status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/tools", "", false)
	tools, _ := decode(t, w)["tools"].([]interface{})
	if len(tools) != 10 {
		t.Errorf("listed %d tools, want 10", len(tools))
	}
}

func TestChatRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/chat", `{"message":"how many jumps do I have?"}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/chat", `{"message":"how many jumps do I have?","conversationHistory":[]}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp model.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "You have 3 jumps logged." {
		t.Errorf("message = %q", resp.Message)
	}
	stats, _ := resp.Stats.(map[string]interface{})
	if stats["totalJumps"] != float64(3) {
		t.Errorf("stats = %v", resp.Stats)
	}

	w = env.do(t, http.MethodGet, "/api/tool-calls", "", true)
	calls, _ := decode(t, w)["toolCalls"].([]interface{})
	if len(calls) != 1 {
		t.Errorf("recorded %d tool calls, want 1", len(calls))
	}

	w = env.do(t, http.MethodPost, "/api/chat", `{"message":"   "}`, true)
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != string(model.CodeInvalidArgument) {
		t.Errorf("empty message status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestGreetingRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/chat/greeting", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if msg, _ := decode(t, w)["message"].(string); msg == "" {
		t.Error("empty greeting")
	}
}

func TestProgressionChartRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/progression/chart?targetHeight=4.50&tolerance=0.05", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "2025-02-08") || !strings.Contains(body, "2/3 makes") {
		t.Errorf("chart is missing the progression data")
	}

	w = env.do(t, http.MethodGet, "/api/progression/chart", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing target status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/progression/chart?targetHeight=4.5&tolerance=abc", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad tolerance status = %d", w.Code)
	}
}

func TestBillingRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.PutCoupon(ctx, &model.Coupon{ID: "LAUNCH50", MaxRedemptions: 2, DiscountPercent: 50}); err != nil {
		t.Fatalf("PutCoupon: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/billing/coupon", "", false)
	if body := decode(t, w); body["available"] != true || body["remaining"] != float64(2) {
		t.Errorf("coupon = %v", body)
	}

	w = env.do(t, http.MethodPost, "/api/billing/checkout",
		`{"priceId":"price_monthly","userId":"athlete-1","userEmail":"a@example.com","applyCoupon":true}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("checkout status = %d body = %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["url"] != "https://checkout.test/price_monthly" || body["couponApplied"] != true {
		t.Errorf("checkout = %v", body)
	}

	w = env.do(t, http.MethodPost, "/api/billing/checkout",
		`{"priceId":"price_monthly","userId":"someone-else","userEmail":"b@example.com"}`, true)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign checkout status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/billing/portal", "", true)
	if body := decode(t, w); w.Code != http.StatusOK || body["url"] != "https://portal.test/cus_athlete-1" {
		t.Errorf("portal status = %d body = %v", w.Code, body)
	}

	w = env.do(t, http.MethodPost, "/api/billing/webhook", `{}`, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsigned webhook status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "valid")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d body = %s", rec.Code, rec.Body.String())
	}
	user, err := env.store.GetUser(ctx, "athlete-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !user.IsPro() || user.StripeSubscriptionID != "sub_1" {
		t.Errorf("user after webhook = %+v", user)
	}
}
