package api

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

	"github.com/rs/zerolog"

	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/internal/service"
	"quantgate/internal/session"
	"quantgate/internal/stream"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// newTestServer stands up the full HTTP surface over a simulator adapter.
// The simulator feed is started so subscription tests see real frames.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Config{
		Mode: types.ModeMock,
		Upstream: config.UpstreamConfig{
			DataDir: t.TempDir(),
		},
		Stream: config.StreamConfig{
			MaxSubscriptions: 8,
			QueueDepth:       64,
			HeartbeatTimeout: time.Minute,
		},
		Trading: config.TradingConfig{
			DefaultAccountType: "SECURITY",
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	sim, err := upstream.NewSimulator(cfg.Upstream, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	t.Cleanup(func() { sim.Close() })

	m := metrics.New()
	manager := stream.NewManager(sim, cfg.Stream, zerolog.Nop(), m)
	if err := sim.Start(context.Background(), manager); err != nil {
		t.Fatalf("Start: %v", err)
	}

	registry := session.NewRegistry(sim, zerolog.Nop())
	dataSvc := service.NewData(sim, manager, zerolog.Nop(), m)
	tradingSvc := service.NewTrading(sim, registry, cfg.Mode, cfg.Trading, zerolog.Nop(), m)

	srv := NewServer(cfg, dataSvc, tradingSvc, manager, registry, m, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp, env
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp, env
}

// data re-decodes the envelope payload into dst.
func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health/")
	if err != nil {
		t.Fatalf("GET /health/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("body = %v, want status healthy", body)
	}

	for _, path := range []string{"/health/ready", "/health/live"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestReadyFlipsOnShutdown(t *testing.T) {
	t.Parallel()
	srv, ts := newTestServer(t, nil)

	srv.SetReady(false)
	resp, err := http.Get(ts.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 after SetReady(false)", resp.StatusCode)
	}
}

func TestEnvelopeShape(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := getJSON(t, ts.URL+"/api/v1/data/sectors", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !env.Success || env.Code != "OK" || env.Message != "ok" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Data == nil {
		t.Fatal("envelope data missing")
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	_, env := getJSON(t, ts.URL+"/api/v1/status", nil)
	var st Status
	decodeData(t, env, &st)
	if st.Mode != types.ModeMock {
		t.Fatalf("mode = %q, want mock", st.Mode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "quantgate_") {
		t.Fatal("metrics body missing quantgate series")
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.Tokens = []string{"secret-token"}
	})

	tests := []struct {
		name       string
		headers    map[string]string
		query      string
		wantStatus int
		wantCode   string
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_MISSING"},
		{name: "wrong token", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized, wantCode: "AUTH_INVALID"},
		{name: "valid header", headers: map[string]string{"Authorization": "Bearer secret-token"}, wantStatus: http.StatusOK, wantCode: "OK"},
		{name: "valid query", query: "?token=secret-token", wantStatus: http.StatusOK, wantCode: "OK"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, env := getJSON(t, ts.URL+"/api/v1/data/sectors"+tt.query, tt.headers)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if env.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", env.Code, tt.wantCode)
			}
		})
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.Tokens = []string{"secret-token"}
	})

	resp, err := http.Get(ts.URL + "/health/")
	if err != nil {
		t.Fatalf("GET /health/: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 without credentials", resp.StatusCode)
	}
}

func TestEmptySymbolsReturns422(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/data/subscription", map[string]any{
		"symbols":           []string{},
		"adjust_type":       "none",
		"subscription_type": "quote",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if env.Success || env.Code != "EMPTY_SYMBOLS" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestValidationReturns400(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/data/market", map[string]any{
		"stock_codes": []string{"600519.SH"},
		"start_date":  "2025-01-01",
		"end_date":    "20250131",
		"period":      "1d",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Code != "INVALID_ARGUMENT" {
		t.Fatalf("code = %q, want INVALID_ARGUMENT", env.Code)
	}
}

func TestUnknownSubscriptionReturns404(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := getJSON(t, ts.URL+"/api/v1/data/subscription/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if env.Code != "NOT_FOUND" {
		t.Fatalf("code = %q, want NOT_FOUND", env.Code)
	}
}

func TestSubscriptionLimitReturns429(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Stream.MaxSubscriptions = 1
	})

	body := map[string]any{"symbols": []string{"600519.SH"}, "subscription_type": "quote"}
	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/data/subscription", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("first subscribe status = %d", resp.StatusCode)
	}
	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/data/subscription", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if env.Code != "SUB_LIMIT" {
		t.Fatalf("code = %q, want SUB_LIMIT", env.Code)
	}
}

func TestMarketDataOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/data/market", map[string]any{
		"stock_codes": []string{"600519.SH"},
		"start_date":  "20250707",
		"end_date":    "20250711",
		"period":      "1d",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var groups []types.SymbolBars
	decodeData(t, env, &groups)
	if len(groups) != 1 || groups[0].StockCode != "600519.SH" {
		t.Fatalf("groups = %+v", groups)
	}
	if len(groups[0].Bars) == 0 {
		t.Fatal("no bars returned")
	}
}

func TestTradingFlowOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	_, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/trading/connect", map[string]any{
		"account_id": "test_account_001",
		"password":   "pw",
	})
	if !env.Success {
		t.Fatalf("connect envelope = %+v", env)
	}
	var conn service.ConnectResult
	decodeData(t, env, &conn)
	if conn.SessionID == "" {
		t.Fatal("empty session id")
	}

	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/trading/order/"+conn.SessionID, map[string]any{
		"stock_code": "000001.SZ",
		"side":       "BUY",
		"order_type": "LIMIT",
		"volume":     100,
		"price":      13.50,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order status = %d, want 200", resp.StatusCode)
	}
	var rec types.OrderRecord
	decodeData(t, env, &rec)
	if rec.OrderID == "" || !rec.Simulated {
		t.Fatalf("order = %+v, want simulated ack", rec)
	}

	resp, env = doJSON(t, http.MethodPost, ts.URL+"/api/v1/trading/cancel/"+conn.SessionID, map[string]any{
		"order_id": rec.OrderID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}
	var cancel types.CancelResult
	decodeData(t, env, &cancel)
	if !cancel.Cancelled || !cancel.Simulated {
		t.Fatalf("cancel = %+v", cancel)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/trading/disconnect/"+conn.SessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disconnect status = %d, want 200", resp.StatusCode)
	}
}

func TestSessionRequiredOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, env := getJSON(t, ts.URL+"/api/v1/trading/positions/ghost", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Code != "FAILED_PRECONDITION" {
		t.Fatalf("code = %q, want FAILED_PRECONDITION", env.Code)
	}
}

func TestUpstreamMessagePassesThrough(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	// The simulator refuses blank credentials with a fixed message; the
	// envelope must carry it verbatim.
	resp, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/trading/connect", map[string]any{
		"account_id": "test_account_001",
		"password":   " ",
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if env.Success || env.Code != "UPSTREAM_FAILURE" {
		t.Fatalf("envelope = %+v, want UPSTREAM_FAILURE", env)
	}
	if !strings.Contains(env.Message, "account authentication failed") {
		t.Fatalf("message = %q, want adapter text", env.Message)
	}
}
