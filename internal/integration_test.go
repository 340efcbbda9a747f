package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"lc_escrow/internal/api"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/processor"
	"lc_escrow/internal/repository/memory"
	"lc_escrow/internal/repository/sqlite"
	"lc_escrow/internal/service"
	"lc_escrow/internal/token"
	"lc_escrow/pkg/crypto"
	"lc_escrow/pkg/metrics"
	"lc_escrow/pkg/ratelimit"
)

const (
	admin     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	bank      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	importer  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	exporter  = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	logistics = "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"
	engineAcc = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	secret = "integration-secret-at-least-32-bytes"
)

type testEnv struct {
	handler  http.Handler
	signer   *crypto.Signer
	notifier *service.NotificationService
	ledger   *token.Ledger
	now      time.Time
}

func setup(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.Default()

	journal, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })

	metricsCollector := metrics.NewMetricsCollector(logger)
	notifier := service.NewNotificationService([]service.Sink{service.NewJournalSink(journal)}, 2, metricsCollector, logger)
	t.Cleanup(func() { _ = notifier.Shutdown(context.Background()) })

	env := &testEnv{notifier: notifier, now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	exec := processor.NewExecutor(logger,
		processor.WithClock(func() time.Time { return env.now }),
		processor.WithPublisher(notifier),
		processor.WithMetrics(metricsCollector))

	roles, err := processor.NewRoleRegistry(ctx, memory.NewRoleRepository(), exec, admin, logger)
	if err != nil {
		t.Fatalf("role registry: %v", err)
	}
	ledger := token.NewLedger("USD", admin, logger)
	products := processor.NewProductLedger(memory.NewProductRepository(), roles, exec, logger)
	engine := processor.NewLetterOfCreditEngine(
		memory.NewLetterOfCreditRepository(), memory.NewSettlementRepository(),
		roles, products, ledger, engineAcc, exec, logger)

	signer, err := crypto.NewSigner(secret, logger)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	handler := api.NewAPIHandler(roles, products, engine, ledger, journal, logger)
	env.handler = api.NewRouter(handler, api.RouterOptions{
		Verifier: signer,
		Limiter:  limiter,
		Recorder: metricsCollector,
		Logger:   logger,
	})
	env.signer = signer
	env.ledger = ledger
	return env
}

func (env *testEnv) call(t *testing.T, caller, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if caller != "" {
		tok, err := env.signer.IssueToken(caller, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func (env *testEnv) mustCall(t *testing.T, caller, method, path string, body any, want int) map[string]any {
	t.Helper()
	w, decoded := env.call(t, caller, method, path, body)
	if w.Code != want {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, w.Code, w.Body.String())
	}
	return decoded
}

func (env *testEnv) grantRoles(t *testing.T) {
	t.Helper()
	for account, role := range map[string]string{
		bank:      "BANK",
		importer:  "IMPORTER",
		exporter:  "EXPORTER",
		logistics: "LOGISTICS",
	} {
		env.mustCall(t, admin, "POST", "/api/v1/roles", api.GrantRoleRequest{Account: account, Role: role}, http.StatusOK)
	}
}

func TestIntegration_CoffeeBeansSettlement(t *testing.T) {
	env := setup(t, nil)
	env.grantRoles(t)

	env.mustCall(t, admin, "POST", "/api/v1/token/mint", api.TokenAmountRequest{To: importer, Amount: "1000"}, http.StatusOK)
	product := env.mustCall(t, importer, "POST", "/api/v1/products", api.CreateProductRequest{Name: "Coffee Beans"}, http.StatusCreated)
	if product["id"].(float64) != 0 || product["status"] != "Created" {
		t.Fatalf("unexpected product: %v", product)
	}
	env.mustCall(t, importer, "POST", "/api/v1/token/approve", api.TokenAmountRequest{Amount: "500"}, http.StatusOK)

	lc := env.mustCall(t, importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "500"}, http.StatusCreated)
	if lc["id"].(float64) != 1 || lc["status"] != "OPENED" {
		t.Fatalf("unexpected LC: %v", lc)
	}
	if lc["approval_time_left_seconds"].(float64) != (72 * time.Hour).Seconds() {
		t.Errorf("expected full approval window, got %v", lc["approval_time_left_seconds"])
	}

	env.mustCall(t, bank, "POST", "/api/v1/lcs/1/approve", nil, http.StatusOK)
	env.mustCall(t, exporter, "POST", "/api/v1/lcs/1/ship", nil, http.StatusOK)
	env.mustCall(t, logistics, "POST", "/api/v1/lcs/1/delivered-pending", nil, http.StatusOK)
	env.mustCall(t, importer, "POST", "/api/v1/lcs/1/confirm-delivery", nil, http.StatusOK)
	paid := env.mustCall(t, bank, "POST", "/api/v1/lcs/1/release", nil, http.StatusOK)

	if paid["status"] != "PAID" || paid["released"] != true {
		t.Fatalf("expected released PAID LC, got %v", paid)
	}
	if paid["settlement"] == nil {
		t.Errorf("expected settlement in response")
	}
	sellerAccount := env.mustCall(t, exporter, "GET", "/api/v1/token/"+exporter, nil, http.StatusOK)
	if sellerAccount["balance"] != "500" {
		t.Errorf("expected seller balance 500, got %v", sellerAccount["balance"])
	}

	w, body := env.call(t, bank, "POST", "/api/v1/lcs/1/release", nil)
	if w.Code != http.StatusConflict || body["code"] != "ALREADY_RELEASED" {
		t.Errorf("expected 409 ALREADY_RELEASED, got %d %v", w.Code, body)
	}
}

func TestIntegration_LateApprovalIsRejected(t *testing.T) {
	env := setup(t, nil)
	env.grantRoles(t)
	env.mustCall(t, importer, "POST", "/api/v1/products", api.CreateProductRequest{Name: "Cocoa"}, http.StatusCreated)
	env.mustCall(t, importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "10"}, http.StatusCreated)

	env.now = env.now.Add(72*time.Hour + time.Second)
	w, body := env.call(t, bank, "POST", "/api/v1/lcs/1/approve", nil)

	if w.Code != http.StatusUnprocessableEntity || body["code"] != "DEADLINE_EXCEEDED" {
		t.Fatalf("expected 422 DEADLINE_EXCEEDED, got %d %v", w.Code, body)
	}
	lc := env.mustCall(t, bank, "GET", "/api/v1/lcs/1", nil, http.StatusOK)
	if lc["status"] != "OPENED" {
		t.Errorf("expected LC to stay OPENED, got %v", lc["status"])
	}
}

func TestIntegration_ErrorMapping(t *testing.T) {
	env := setup(t, nil)
	env.grantRoles(t)
	env.mustCall(t, importer, "POST", "/api/v1/products", api.CreateProductRequest{Name: "Tea"}, http.StatusCreated)
	env.mustCall(t, importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "10"}, http.StatusCreated)

	cases := []struct {
		caller string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{importer, "POST", "/api/v1/lcs/1/approve", nil, http.StatusForbidden, "UNAUTHORIZED"},
		{bank, "POST", "/api/v1/lcs/9/approve", nil, http.StatusNotFound, "NOT_FOUND"},
		{exporter, "POST", "/api/v1/lcs/1/ship", nil, http.StatusConflict, "INVALID_STATE"},
		{importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "-1"}, http.StatusBadRequest, "INVALID_INPUT"},
		{importer, "POST", "/api/v1/lcs/abc/dispute", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{bank, "POST", "/api/v1/lcs/1/resolve", map[string]any{}, http.StatusBadRequest, "INVALID_INPUT"},
		{importer, "POST", "/api/v1/roles", api.GrantRoleRequest{Account: importer, Role: "BANK"}, http.StatusForbidden, "UNAUTHORIZED"},
	}
	for _, tc := range cases {
		w, body := env.call(t, tc.caller, tc.method, tc.path, tc.body)
		if w.Code != tc.status || body["code"] != tc.code {
			t.Errorf("%s %s: expected %d %s, got %d %v", tc.method, tc.path, tc.status, tc.code, w.Code, body)
		}
	}

	_, body := env.call(t, exporter, "POST", "/api/v1/lcs/1/ship", nil)
	if body["field"] != "status" || body["current"] != "OPENED" || body["required"] != "APPROVED" {
		t.Errorf("expected current/required in error body, got %v", body)
	}
}

func TestIntegration_ReleaseWithoutAllowance(t *testing.T) {
	env := setup(t, nil)
	env.grantRoles(t)
	env.mustCall(t, admin, "POST", "/api/v1/token/mint", api.TokenAmountRequest{To: importer, Amount: "1000"}, http.StatusOK)
	env.mustCall(t, importer, "POST", "/api/v1/products", api.CreateProductRequest{Name: "Tea"}, http.StatusCreated)
	env.mustCall(t, importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "500"}, http.StatusCreated)
	env.mustCall(t, importer, "POST", "/api/v1/token/approve", api.TokenAmountRequest{Amount: "499"}, http.StatusOK)
	env.mustCall(t, bank, "POST", "/api/v1/lcs/1/approve", nil, http.StatusOK)
	env.mustCall(t, exporter, "POST", "/api/v1/lcs/1/ship", nil, http.StatusOK)
	env.mustCall(t, logistics, "POST", "/api/v1/lcs/1/delivered-pending", nil, http.StatusOK)
	env.mustCall(t, bank, "POST", "/api/v1/lcs/1/confirm-delivery", nil, http.StatusOK)

	w, body := env.call(t, bank, "POST", "/api/v1/lcs/1/release", nil)

	if w.Code != http.StatusPaymentRequired || body["code"] != "INSUFFICIENT_ALLOWANCE" {
		t.Fatalf("expected 402 INSUFFICIENT_ALLOWANCE, got %d %v", w.Code, body)
	}
	lc := env.mustCall(t, bank, "GET", "/api/v1/lcs/1", nil, http.StatusOK)
	if lc["status"] != "DELIVERED_CONFIRMED" || lc["released"] != false {
		t.Errorf("expected LC untouched, got %v", lc)
	}
}

func TestIntegration_DisputeRejectedAndEventsJournaled(t *testing.T) {
	env := setup(t, nil)
	env.grantRoles(t)
	env.mustCall(t, importer, "POST", "/api/v1/products", api.CreateProductRequest{Name: "Rice"}, http.StatusCreated)
	env.mustCall(t, importer, "POST", "/api/v1/lcs", api.OpenLCRequest{ProductID: 0, Seller: exporter, Amount: "25"}, http.StatusCreated)
	env.mustCall(t, bank, "POST", "/api/v1/lcs/1/approve", nil, http.StatusOK)
	env.mustCall(t, exporter, "POST", "/api/v1/lcs/1/ship", nil, http.StatusOK)
	disputed := env.mustCall(t, importer, "POST", "/api/v1/lcs/1/dispute", nil, http.StatusOK)
	if disputed["status"] != "UNDER_REVIEW" || disputed["dispute_raised"] != true {
		t.Fatalf("unexpected disputed LC: %v", disputed)
	}
	cancelled := env.mustCall(t, bank, "POST", "/api/v1/lcs/1/resolve", api.ResolveDisputeRequest{Approve: new(bool)}, http.StatusOK)
	if cancelled["status"] != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %v", cancelled["status"])
	}

	list := env.mustCall(t, bank, "GET", "/api/v1/lcs?status=cancelled", nil, http.StatusOK)
	if list["count"].(float64) != 1 {
		t.Errorf("expected one cancelled LC, got %v", list["count"])
	}

	if err := env.notifier.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown notifier: %v", err)
	}
	page := env.mustCall(t, bank, "GET", "/api/v1/events?after=0&limit=100", nil, http.StatusOK)
	events := page["events"].([]any)

	var path []string
	for _, raw := range events {
		event := raw.(map[string]any)
		if event["type"] == string(domain.EventLCStatusChanged) {
			attrs := event["attributes"].(map[string]any)
			path = append(path, fmt.Sprintf("%v>%v", attrs["old_status"], attrs["new_status"]))
		}
	}
	want := []string{"OPENED>APPROVED", "APPROVED>SHIPPED", "SHIPPED>UNDER_REVIEW", "UNDER_REVIEW>CANCELLED"}
	if fmt.Sprint(path) != fmt.Sprint(want) {
		t.Errorf("expected journaled path %v, got %v", want, path)
	}
	// four role grants, one product, one LC and four transitions
	if len(events) != 10 {
		t.Errorf("expected 10 journaled events, got %d", len(events))
	}
}

func TestIntegration_AuthenticationAndRateLimit(t *testing.T) {
	env := setup(t, ratelimit.New(1, 2, time.Minute))

	env.mustCall(t, "", "GET", "/api/health", nil, http.StatusOK)
	env.mustCall(t, "", "GET", "/api/v1/lcs", nil, http.StatusUnauthorized)

	r := httptest.NewRequest("GET", "/api/v1/lcs", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for forged token, got %d", w.Code)
	}

	env.mustCall(t, bank, "GET", "/api/v1/lcs", nil, http.StatusOK)
	env.mustCall(t, bank, "GET", "/api/v1/lcs", nil, http.StatusOK)
	env.mustCall(t, bank, "GET", "/api/v1/lcs", nil, http.StatusTooManyRequests)
	env.mustCall(t, importer, "GET", "/api/v1/lcs", nil, http.StatusOK)
}
