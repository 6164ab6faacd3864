package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"market-engine/src/config"
	"market-engine/src/engine"
	"market-engine/src/handlers"
	"market-engine/src/models"
	"market-engine/src/settlement"
	"market-engine/src/store"
	"market-engine/src/store/memory"
)

const adminToken = "s3cret"

type testServer struct {
	app    *fiber.App
	st     *memory.Store
	orders *handlers.OrderHandler
}

// setupTestServer serves one market where alice offers yes shares at 50c and
// 60c, bob has $100 and carol has $10.
func setupTestServer(t *testing.T, mutate func(*config.ServerConfig)) *testServer {
	t.Helper()

	st := memory.New(store.RetryPolicy{MaxRetries: 50, InitialInterval: time.Microsecond, MaxInterval: time.Millisecond})
	markets := []*engine.Market{{ID: "m1", Question: "Will it rain?", YesMicroShares: 10_000_000, NoMicroShares: 10_000_000}}
	users := []*engine.User{
		{ID: "alice", Positions: []engine.PositionEntry{{MarketID: "m1", Position: engine.PositionYes, MicroShares: 2_000_000}}},
		{ID: "bob", BalanceCents: 10_000},
		{ID: "carol", BalanceCents: 1_000},
	}
	if err := st.Seed(context.Background(), markets, users); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := st.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, o := range []*engine.Order{
			{ID: "o1", MarketID: "m1", UserID: "alice", Side: engine.SideSell, Position: engine.PositionYes, PriceCents: 50, MicroShares: 500_000, CreatedAt: 1},
			{ID: "o2", MarketID: "m1", UserID: "alice", Side: engine.SideSell, Position: engine.PositionYes, PriceCents: 60, MicroShares: 800_000, CreatedAt: 2},
		} {
			if err := tx.SetOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("rest orders: %v", err)
	}

	cfg := config.ServerConfig{
		AdminToken:         adminToken,
		RequestLogDisabled: true,
		RateLimit:          config.RateLimitConfig{Disabled: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	svc := settlement.NewService(st, settlement.Config{})
	orderHandler := handlers.NewOrderHandler(svc, config.OrderbookConfig{DefaultDepth: 10, MaxDepth: 100}, config.MetricsConfig{})
	adminHandler := handlers.NewAdminHandler(svc, cfg.AdminToken, orderHandler)

	app := fiber.New()
	SetupRoutes(app, cfg, orderHandler, adminHandler)
	return &testServer{app: app, st: st, orders: orderHandler}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func TestSubmitOrderFillsAcrossLevels(t *testing.T) {
	s := setupTestServer(t, nil)

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 0.55}, nil)
	expectStatus(t, resp, http.StatusOK)

	got := decode[models.PlaceOrderResponse](t, resp)
	if got.Status != string(engine.StatusFilled) {
		t.Errorf("Status = %s, want FILLED", got.Status)
	}
	if got.FilledCents != 55 || got.RequestedCents != 55 {
		t.Errorf("filled %d of %d, want 55 of 55", got.FilledCents, got.RequestedCents)
	}
	if len(got.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(got.Trades))
	}
	if got.Trades[0].PriceCents != 50 || got.Trades[0].TotalCents != 25 {
		t.Errorf("first trade = %+v, want 25c at 50c", got.Trades[0])
	}
	if got.Trades[1].PriceCents != 60 || got.Trades[1].MicroShares != 500_000 {
		t.Errorf("second trade = %+v, want 0.5 shares at 60c", got.Trades[1])
	}
	if got.RestingOrder != nil {
		t.Errorf("RestingOrder = %+v, want none", got.RestingOrder)
	}
}

func TestSubmitOrderAcceptsTypeAlias(t *testing.T) {
	s := setupTestServer(t, nil)

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "type": "BUY", "position": "Yes", "amount": 0.25}, nil)
	expectStatus(t, resp, http.StatusOK)

	got := decode[models.PlaceOrderResponse](t, resp)
	if got.FilledCents != 25 {
		t.Errorf("FilledCents = %d, want 25", got.FilledCents)
	}
}

func TestSubmitOrderErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{
			name:     "bad position",
			path:     "/api/v1/markets/m1/orders",
			body:     map[string]any{"userId": "bob", "side": "buy", "position": "maybe", "amount": 1},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "zero amount",
			path:     "/api/v1/markets/m1/orders",
			body:     map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 0},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "unknown market",
			path:     "/api/v1/markets/nope/orders",
			body:     map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 1},
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "unknown user",
			path:     "/api/v1/markets/m1/orders",
			body:     map[string]any{"userId": "mallory", "side": "buy", "position": "yes", "amount": 1},
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, nil)
			resp := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			expectStatus(t, resp, tt.wantCode)

			got := decode[models.ErrorResponse](t, resp)
			if got.Code != tt.wantKind {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantKind)
			}
			if got.Error == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestSubmitOrderMalformedJSON(t *testing.T) {
	s := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/markets/m1/orders", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRestingOrderCancelFlow(t *testing.T) {
	s := setupTestServer(t, nil)

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "carol", "side": "buy", "position": "no", "amount": 1}, nil)
	expectStatus(t, resp, http.StatusOK)

	placed := decode[models.PlaceOrderResponse](t, resp)
	if placed.Status != string(engine.StatusResting) {
		t.Fatalf("Status = %s, want RESTING", placed.Status)
	}
	if placed.RestingOrder == nil || placed.RestingOrder.ReservedCents != 100 {
		t.Fatalf("RestingOrder = %+v, want 100c reserved", placed.RestingOrder)
	}
	orderPath := "/api/v1/markets/m1/orders/" + placed.RestingOrder.OrderID

	resp = s.do(t, http.MethodDelete, orderPath+"?userId=bob", nil, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, http.MethodDelete, orderPath+"?userId=carol", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	cancelled := decode[models.CancelOrderResponse](t, resp)
	if cancelled.Status != "CANCELLED" || cancelled.ReleasedCents != 100 {
		t.Errorf("cancel = %+v, want CANCELLED with 100c released", cancelled)
	}

	resp = s.do(t, http.MethodDelete, orderPath+"?userId=carol", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestGetOrderBook(t *testing.T) {
	s := setupTestServer(t, nil)

	resp := s.do(t, http.MethodGet, "/api/v1/markets/m1/orderbook", nil, nil)
	expectStatus(t, resp, http.StatusOK)

	book := decode[models.OrderBookResponse](t, resp)
	if len(book.Yes.Asks) != 2 {
		t.Fatalf("yes asks = %+v, want two levels", book.Yes.Asks)
	}
	if book.Yes.Asks[0].PriceCents != 50 || book.Yes.Asks[1].PriceCents != 60 {
		t.Errorf("asks not lowest first: %+v", book.Yes.Asks)
	}
	if book.Yes.Asks[1].Shares != 0.8 {
		t.Errorf("Shares = %v, want 0.8", book.Yes.Asks[1].Shares)
	}
	if len(book.Yes.Bids) != 0 || len(book.No.Bids) != 0 || len(book.No.Asks) != 0 {
		t.Errorf("unexpected levels: %+v", book)
	}

	resp = s.do(t, http.MethodGet, "/api/v1/markets/m1/orderbook?depth=1", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	book = decode[models.OrderBookResponse](t, resp)
	if len(book.Yes.Asks) != 1 {
		t.Errorf("depth=1 returned %d levels", len(book.Yes.Asks))
	}

	resp = s.do(t, http.MethodGet, "/api/v1/markets/nope/orderbook", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestResolveAndSettle(t *testing.T) {
	s := setupTestServer(t, nil)

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 0.55}, nil)
	expectStatus(t, resp, http.StatusOK)

	outcome := map[string]any{"outcome": "yes"}

	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", outcome, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", outcome, map[string]string{handlers.AdminTokenHeader: "guess"})
	expectStatus(t, resp, http.StatusForbidden)

	admin := map[string]string{handlers.AdminTokenHeader: adminToken}
	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", outcome, admin)
	expectStatus(t, resp, http.StatusOK)

	report := decode[models.SettlementResponse](t, resp)
	// bob and alice each hold one net yes share after the fill
	if report.UsersSettled != 2 || report.PayoutCents != 200 {
		t.Errorf("report = %+v, want 2 users paid 200c", report)
	}
	if report.OrdersReleased != 1 {
		t.Errorf("OrdersReleased = %d, want alice's leftover ask", report.OrdersReleased)
	}

	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", outcome, admin)
	expectStatus(t, resp, http.StatusConflict)

	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/settle", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	rerun := decode[models.SettlementResponse](t, resp)
	if rerun.UsersSettled != 0 || rerun.PayoutCents != 0 {
		t.Errorf("re-run paid again: %+v", rerun)
	}

	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "carol", "side": "buy", "position": "yes", "amount": 1}, nil)
	expectStatus(t, resp, http.StatusConflict)

	// rejected and repeated resolutions are not counted
	resp = s.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if m := decode[models.MetricsResponse](t, resp); m.MarketsResolved != 1 {
		t.Errorf("MarketsResolved = %d, want 1", m.MarketsResolved)
	}
}

func TestFailedResolveIsNotCounted(t *testing.T) {
	s := setupTestServer(t, nil)
	admin := map[string]string{handlers.AdminTokenHeader: adminToken}

	resp := s.do(t, http.MethodPost, "/api/v1/markets/nope/resolve", map[string]any{"outcome": "yes"}, admin)
	expectStatus(t, resp, http.StatusNotFound)
	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", map[string]any{"outcome": "maybe"}, admin)
	expectStatus(t, resp, http.StatusBadRequest)
	resp = s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve", map[string]any{"outcome": "yes"}, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if m := decode[models.MetricsResponse](t, resp); m.MarketsResolved != 0 {
		t.Errorf("MarketsResolved = %d, want 0", m.MarketsResolved)
	}
}

func TestAdminEndpointsDisabledWithoutToken(t *testing.T) {
	s := setupTestServer(t, func(cfg *config.ServerConfig) { cfg.AdminToken = "" })

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/resolve",
		map[string]any{"outcome": "yes"}, map[string]string{handlers.AdminTokenHeader: ""})
	expectStatus(t, resp, http.StatusForbidden)
}

func TestServiceUnavailableMaintenanceMode(t *testing.T) {
	s := setupTestServer(t, func(cfg *config.ServerConfig) { cfg.MaintenanceMode = true })

	resp := s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 1}, nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)

	// edge case: health check is exempt from maintenance mode
	resp = s.do(t, http.MethodGet, "/health", nil, nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestRateLimitingPerClient(t *testing.T) {
	s := setupTestServer(t, func(cfg *config.ServerConfig) {
		cfg.RateLimit = config.RateLimitConfig{Max: 3, Window: time.Minute}
	})

	first := map[string]string{"X-Forwarded-For": "10.0.0.1"}
	for i := 0; i < 3; i++ {
		resp := s.do(t, http.MethodGet, "/api/v1/markets/m1/orderbook", nil, first)
		expectStatus(t, resp, http.StatusOK)
	}
	resp := s.do(t, http.MethodGet, "/api/v1/markets/m1/orderbook", nil, first)
	expectStatus(t, resp, http.StatusTooManyRequests)

	resp = s.do(t, http.MethodGet, "/api/v1/markets/m1/orderbook", nil, map[string]string{"X-Forwarded-For": "10.0.0.2"})
	expectStatus(t, resp, http.StatusOK)

	// edge case: rate limiting only applies to the API group
	resp = s.do(t, http.MethodGet, "/health", nil, first)
	expectStatus(t, resp, http.StatusOK)
}

func TestMetricsEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)

	s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "side": "buy", "position": "yes", "amount": 0.55}, nil)
	s.do(t, http.MethodPost, "/api/v1/markets/m1/orders",
		map[string]any{"userId": "bob", "side": "buy", "position": "maybe", "amount": 1}, nil)

	resp := s.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	m := decode[models.MetricsResponse](t, resp)
	if m.OrdersReceived != 2 || m.OrdersFilled != 1 || m.OrdersRejected != 1 || m.TradesExecuted != 2 {
		t.Errorf("metrics = %+v", m)
	}

	resp = s.do(t, http.MethodGet, "/health", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	health := decode[models.HealthResponse](t, resp)
	if health.Status != "healthy" || health.OrdersProcessed != 2 {
		t.Errorf("health = %+v", health)
	}

	resp = s.do(t, http.MethodGet, "/metrics/prometheus", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "market_trades_executed_total") {
		t.Errorf("prometheus output missing trade counter")
	}
}
