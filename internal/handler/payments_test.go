package handler_test

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/handler"
	"github.com/platanos-shop/storefront/internal/service"
)

// --- Mock payment service ---

type mockPaymentService struct {
	mu        sync.Mutex
	confirmFn func(req service.ConfirmRequest) (*service.ConfirmResult, error)
	cancelFn  func(id uuid.UUID) (database.Order, error)
	calls     []service.ConfirmRequest
	deadline  bool
}

func (m *mockPaymentService) ConfirmPayment(ctx context.Context, req service.ConfirmRequest) (*service.ConfirmResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	_, m.deadline = ctx.Deadline()
	m.mu.Unlock()
	return m.confirmFn(req)
}

func (m *mockPaymentService) Cancel(_ context.Context, id uuid.UUID) (database.Order, error) {
	if m.cancelFn == nil {
		return database.Order{}, service.ErrOrderNotFound
	}
	return m.cancelFn(id)
}

type mockVerifier struct {
	ok  bool
	err error
}

func (m *mockVerifier) VerifyWebhookSignature(context.Context, http.Header, []byte) (bool, error) {
	return m.ok, m.err
}

// --- Helpers ---

var paymentOrderID = uuid.MustParse("0a1b2c3d-1111-2222-3333-444455556666")

func paidTestOrder() database.Order {
	return database.Order{
		ID:            paymentOrderID,
		OwnerID:       42,
		TotalCents:    8000,
		Status:        enum.OrderStatusPending,
		PaymentStatus: enum.PaymentStatusPaid,
	}
}

func setupPaymentRouter(svc *mockPaymentService, verifier *mockVerifier) *chi.Mux {
	h := handler.NewPaymentHandler(svc, verifier, time.Second)
	r := chi.NewRouter()
	r.Route("/payment", h.RegisterRoutes)
	return r
}

func doGet(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func postWebhook(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/payment/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

const approvedEvent = `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"PP-1","status":"APPROVED"}}`

const captureEvent = `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{
	"id":"CAP-9","status":"COMPLETED","amount":{"currency_code":"EUR","value":"80.00"},
	"supplementary_data":{"related_ids":{"order_id":"PP-9"}}}}`

// --- Return tests ---

func TestPaymentReturn_Success(t *testing.T) {
	svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
		return &service.ConfirmResult{Order: paidTestOrder(), Notified: true}, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	rr := doGet(r, "/payment/return?token=PP-1&order_id="+paymentOrderID.String())

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Pagament completat") {
		t.Errorf("expected success page, got: %s", body)
	}
	if !strings.Contains(body, "#0A1B2C3D") || !strings.Contains(body, "80,00") {
		t.Errorf("expected order reference and total, got: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: got %q", ct)
	}

	if len(svc.calls) != 1 {
		t.Fatalf("confirm calls: got %d, want 1", len(svc.calls))
	}
	got := svc.calls[0]
	if got.ExternalID != "PP-1" || got.OrderID != paymentOrderID || got.Source != "return" {
		t.Errorf("confirm request: got %+v", got)
	}
	if got.Captured != nil {
		t.Error("return redirect must not claim a capture")
	}
}

func TestPaymentReturn_AlreadyPaid(t *testing.T) {
	svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
		return &service.ConfirmResult{Order: paidTestOrder(), AlreadyPaid: true}, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	rr := doGet(r, "/payment/return?token=PP-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "ja estava pagada") {
		t.Errorf("expected already-paid page, got: %s", rr.Body.String())
	}
}

func TestPaymentReturn_MissingParams(t *testing.T) {
	svc := &mockPaymentService{}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	for _, path := range []string{"/payment/return", "/payment/return?order_id=not-a-uuid"} {
		rr := doGet(r, path)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want %d", path, rr.Code, http.StatusBadRequest)
		}
	}
	if len(svc.calls) != 0 {
		t.Errorf("confirm must not run for bad links, got %d calls", len(svc.calls))
	}
}

func TestPaymentReturn_ErrorPages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"unknown order", service.ErrOrderNotFound, http.StatusNotFound, "Comanda no trobada"},
		{"not completed", service.ErrPaymentNotCompleted, http.StatusOK, "no s'ha completat"},
		{"capture pending", service.ErrPaymentPending, http.StatusOK, "Pagament pendent"},
		{"gateway down", service.ErrGatewayUnavailable, http.StatusServiceUnavailable, "Pagament en procés"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
				return nil, tt.err
			}}
			r := setupPaymentRouter(svc, &mockVerifier{ok: true})

			rr := doGet(r, "/payment/return?token=PP-1")

			if rr.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
			body := html.UnescapeString(rr.Body.String())
			if !strings.Contains(body, tt.wantText) {
				t.Errorf("body: want %q in %s", tt.wantText, body)
			}
			if strings.Contains(body, "boom") {
				t.Error("internal error text leaked to the customer")
			}
		})
	}
}

// --- Cancel tests ---

func TestPaymentCancel_ShowsOrder(t *testing.T) {
	order := paidTestOrder()
	order.PaymentStatus = enum.PaymentStatusCreated
	svc := &mockPaymentService{cancelFn: func(id uuid.UUID) (database.Order, error) {
		if id != paymentOrderID {
			t.Errorf("cancel id: got %s", id)
		}
		return order, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	rr := doGet(r, "/payment/cancel?order_id="+paymentOrderID.String())

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "cancel·lat") || !strings.Contains(body, "#0A1B2C3D") {
		t.Errorf("unexpected cancel page: %s", body)
	}
}

func TestPaymentCancel_UnknownOrderStillInformational(t *testing.T) {
	r := setupPaymentRouter(&mockPaymentService{}, &mockVerifier{ok: true})

	for _, path := range []string{"/payment/cancel", "/payment/cancel?order_id=" + uuid.NewString()} {
		rr := doGet(r, path)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status got %d, want %d", path, rr.Code, http.StatusOK)
		}
		if strings.Contains(rr.Body.String(), "#") {
			t.Errorf("%s: no order reference expected: %s", path, rr.Body.String())
		}
	}
}

// --- Webhook tests ---

func TestPaymentWebhook_ApprovedConfirms(t *testing.T) {
	svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
		return &service.ConfirmResult{Order: paidTestOrder(), Notified: true}, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	rr := postWebhook(r, approvedEvent)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("confirm calls: got %d, want 1", len(svc.calls))
	}
	if svc.calls[0].ExternalID != "PP-1" || svc.calls[0].Source != "webhook" {
		t.Errorf("confirm request: got %+v", svc.calls[0])
	}
	if svc.calls[0].Captured != nil {
		t.Error("approved event carries no capture")
	}
	if !svc.deadline {
		t.Error("webhook processing must run under a deadline")
	}
}

func TestPaymentWebhook_CaptureCompletedPassesCapture(t *testing.T) {
	svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
		return &service.ConfirmResult{Order: paidTestOrder()}, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	rr := postWebhook(r, captureEvent)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("confirm calls: got %d, want 1", len(svc.calls))
	}
	c := svc.calls[0].Captured
	if c == nil {
		t.Fatal("expected capture to be forwarded")
	}
	if c.CaptureID != "CAP-9" || c.AmountCents != 8000 || !c.Completed() {
		t.Errorf("capture: got %+v", c)
	}
	if svc.calls[0].ExternalID != "PP-9" {
		t.Errorf("external id: got %q", svc.calls[0].ExternalID)
	}
}

func TestPaymentWebhook_AlwaysAnswers200(t *testing.T) {
	tests := []struct {
		name       string
		verifier   *mockVerifier
		body       string
		confirmErr error
		wantCalls  int
	}{
		{"bad signature", &mockVerifier{ok: false}, approvedEvent, nil, 0},
		{"verifier down", &mockVerifier{err: errors.New("timeout")}, approvedEvent, nil, 0},
		{"malformed body", &mockVerifier{ok: true}, `not json`, nil, 0},
		{"unknown event", &mockVerifier{ok: true}, `{"id":"WH-3","event_type":"BILLING.PLAN.CREATED","resource":{}}`, nil, 0},
		{"unknown order", &mockVerifier{ok: true}, approvedEvent, service.ErrOrderNotFound, 1},
		{"gateway down", &mockVerifier{ok: true}, approvedEvent, service.ErrGatewayUnavailable, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
				return nil, tt.confirmErr
			}}
			r := setupPaymentRouter(svc, tt.verifier)

			rr := postWebhook(r, tt.body)

			if rr.Code != http.StatusOK {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
			}
			if len(svc.calls) != tt.wantCalls {
				t.Errorf("confirm calls: got %d, want %d", len(svc.calls), tt.wantCalls)
			}
		})
	}
}

func TestPaymentWebhook_DuplicateDeliveryIsHarmless(t *testing.T) {
	paid := false
	svc := &mockPaymentService{confirmFn: func(req service.ConfirmRequest) (*service.ConfirmResult, error) {
		res := &service.ConfirmResult{Order: paidTestOrder(), AlreadyPaid: paid, Notified: !paid}
		paid = true
		return res, nil
	}}
	r := setupPaymentRouter(svc, &mockVerifier{ok: true})

	for i := 0; i < 3; i++ {
		if rr := postWebhook(r, captureEvent); rr.Code != http.StatusOK {
			t.Fatalf("delivery %d: status got %d", i, rr.Code)
		}
	}
	if len(svc.calls) != 3 {
		t.Errorf("confirm calls: got %d, want 3", len(svc.calls))
	}
}
