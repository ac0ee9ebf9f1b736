package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/deliverydesk-backend/internal/orders"
	"github.com/angelmondragon/deliverydesk-backend/internal/payments"
	"github.com/angelmondragon/deliverydesk-backend/internal/profiles"
	pkgAuth "github.com/angelmondragon/deliverydesk-backend/pkg/auth"
	"github.com/angelmondragon/deliverydesk-backend/pkg/config"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/paystack"
)

const webhookSecret = "sk_test_router"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubProfiles struct {
	roles map[uuid.UUID]enums.UserRole
}

func (s stubProfiles) Role(_ context.Context, userID uuid.UUID) (enums.UserRole, error) {
	role, ok := s.roles[userID]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "profile not found")
	}
	return role, nil
}

func (stubProfiles) Get(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
}

func (stubProfiles) Summaries(context.Context, []uuid.UUID, []uuid.UUID) (*profiles.Summaries, error) {
	return &profiles.Summaries{}, nil
}

type stubOrders struct {
	updated  uuid.UUID
	deleted  uuid.UUID
	lastBody orders.UpdateInput
}

func (s *stubOrders) List(context.Context, orders.ListFilter) (*orders.AdminOrderList, error) {
	return &orders.AdminOrderList{Orders: []orders.AdminOrder{}}, nil
}

func (s *stubOrders) Update(_ context.Context, id uuid.UUID, input orders.UpdateInput) (*orders.UpdateResult, error) {
	s.updated = id
	s.lastBody = input
	return &orders.UpdateResult{Order: &models.Order{ID: id, Status: enums.OrderStatusConfirmed}, PreviousStatus: enums.OrderStatusPending}, nil
}

func (s *stubOrders) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = id
	return nil
}

func (s *stubOrders) PayWithWallet(context.Context, orders.WalletPaymentInput) (*orders.WalletPaymentResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
}

type stubPayments struct {
	verifyCaller *uuid.UUID
	events       []string
}

func (s *stubPayments) Initialize(_ context.Context, in payments.InitializeInput) (*payments.Initialization, error) {
	return &payments.Initialization{AuthorizationURL: "https://checkout.paystack.com/x", AccessCode: "x", Reference: "ref-1", Mode: in.Mode}, nil
}

func (s *stubPayments) Verify(_ context.Context, in payments.VerifyInput) (*payments.Verification, error) {
	s.verifyCaller = in.CallerID
	return &payments.Verification{Success: true, Status: payments.StatusSuccess, Amount: decimal.NewFromInt(500), Reference: in.Reference, Mode: enums.PaymentModeWallet}, nil
}

func (s *stubPayments) HandleEvent(_ context.Context, event *paystack.Event) error {
	s.events = append(s.events, event.Key())
	return nil
}

func (s *stubPayments) VirtualAccount(context.Context, uuid.UUID) (*payments.VirtualAccountResult, error) {
	return &payments.VirtualAccountResult{Account: &models.VirtualAccount{AccountNumber: "0123456789"}, Created: true}, nil
}

type fixture struct {
	handler  http.Handler
	cfg      *config.Config
	orders   *stubOrders
	payments *stubPayments
	admin    uuid.UUID
	customer uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret"},
		RateLimit: config.RateLimitConfig{
			DistanceWindow: time.Minute,
			DistanceLimit:  5,
		},
	}
	admin, customer := uuid.New(), uuid.New()
	f := &fixture{
		cfg:      cfg,
		orders:   &stubOrders{},
		payments: &stubPayments{},
		admin:    admin,
		customer: customer,
	}
	f.handler = NewRouter(cfg, logger.Nop(), Dependencies{
		DB: stubPinger{},
		Profiles: stubProfiles{roles: map[uuid.UUID]enums.UserRole{
			admin:    enums.UserRoleAdmin,
			customer: enums.UserRoleCustomer,
		}},
		Orders:         f.orders,
		Payments:       f.payments,
		PaystackSecret: webhookSecret,
	})
	return f
}

func (f *fixture) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), time.Hour, userID, "user@example.com")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, target, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health/live", "", uuid.Nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	ready := f.do(t, http.MethodGet, "/health/ready", "", uuid.Nil)
	if ready.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d: %s", ready.Code, ready.Body.String())
	}
}

func TestOptionsAlwaysOK(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/admin-orders", "/verify-payment", "/nowhere"} {
		rec := f.do(t, http.MethodOptions, path, "", uuid.Nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestAdminOrdersGuard(t *testing.T) {
	f := newFixture(t)
	orderID := uuid.New()

	if rec := f.do(t, http.MethodGet, "/admin-orders", "", uuid.Nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401 got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/admin-orders?id="+orderID.String(), "", f.customer); rec.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", rec.Code)
	}
	if f.orders.deleted != uuid.Nil {
		t.Fatalf("order must not be touched by a non-admin")
	}
	if rec := f.do(t, http.MethodGet, "/admin-orders", "", uuid.New()); rec.Code != http.StatusForbidden {
		t.Fatalf("unknown profile: expected 403 got %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/admin-orders", "", f.admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200 got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/admin-orders?id="+orderID.String(), `{"status":"confirmed"}`, f.admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin update: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if f.orders.updated != orderID || f.orders.lastBody.Status == nil || *f.orders.lastBody.Status != "confirmed" {
		t.Fatalf("unexpected update call %+v", f.orders)
	}

	rec = f.do(t, http.MethodPut, "/admin-orders?id="+orderID.String(), `{"total_amount":1}`, f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-admin-mutable field: expected 400 got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/admin-orders?id="+orderID.String(), "", f.admin)
	if rec.Code != http.StatusOK || f.orders.deleted != orderID {
		t.Fatalf("admin delete: expected 200 got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/admin-orders", "", f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400 got %d", rec.Code)
	}
}

func TestVerifyPaymentPassesCaller(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/verify-payment?reference=ref-1&type=wallet", "", f.customer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if f.payments.verifyCaller == nil || *f.payments.verifyCaller != f.customer {
		t.Fatalf("expected caller to be forwarded")
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true || body["reference"] != "ref-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestInitializePayment(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/initialize-payment", `{"amount":500,"email":"payer@example.com"}`, f.customer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"authorization_url", "access_code", "reference"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("expected %s in %v", key, body)
		}
	}

	rec = f.do(t, http.MethodPost, "/initialize-payment", `{"email":"payer@example.com"}`, f.customer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing amount: expected 400 got %d", rec.Code)
	}
}

func TestCreateVirtualAccountCreated(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/create-virtual-account", "", f.customer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
}

func TestWalletPayOrderErrorBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/wallet/pay-order", `{"order_id":"`+uuid.NewString()+`"}`, f.customer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(pkgerrors.CodeInsufficientFunds) || body.Error == "" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestCalculateDistanceWithoutProvider(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/calculate-distance", `{"origin":"Ikeja","destination":"Lekki"}`, f.customer)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestPaystackWebhookSignature(t *testing.T) {
	f := newFixture(t)
	payload := `{"event":"charge.success","data":{"id":42,"reference":"ref-9","metadata":{"user_id":"` + f.customer.String() + `","type":"wallet"}}}`

	req := httptest.NewRequest(http.MethodPost, "/paystack-webhook", strings.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401 got %d", rec.Code)
	}
	if len(f.payments.events) != 0 {
		t.Fatalf("unsigned events must not be handled")
	}

	req = httptest.NewRequest(http.MethodPost, "/paystack-webhook", strings.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, paystack.Sign(webhookSecret, []byte(payload)))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed event: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.payments.events) != 1 || f.payments.events[0] != "charge.success:42" {
		t.Fatalf("unexpected events %v", f.payments.events)
	}
}
