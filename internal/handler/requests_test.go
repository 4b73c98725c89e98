package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/handler"
	"github.com/platanos-shop/storefront/internal/middleware"
	"github.com/platanos-shop/storefront/internal/service"
)

// --- Mock RequestServicer ---

type mockRequestService struct {
	rows       map[uuid.UUID]database.ProductRequest
	listStatus string
}

func (m *mockRequestService) List(_ context.Context, status string, limit int32) ([]database.ProductRequest, error) {
	m.listStatus = status
	switch status {
	case enum.RequestStatusNew, enum.RequestStatusApproved, enum.RequestStatusRejected, enum.RequestStatusDone:
	default:
		return nil, service.ErrInvalidRequestStatus
	}
	var out []database.ProductRequest
	for _, r := range m.rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRequestService) SetStatus(_ context.Context, id uuid.UUID, status string) (database.ProductRequest, error) {
	if status != enum.RequestStatusApproved && status != enum.RequestStatusRejected && status != enum.RequestStatusDone {
		return database.ProductRequest{}, service.ErrInvalidRequestStatus
	}
	r, ok := m.rows[id]
	if !ok {
		return database.ProductRequest{}, service.ErrRequestNotFound
	}
	r.Status = status
	m.rows[id] = r
	return r, nil
}

func setupRequestRouter(svc *mockRequestService) *chi.Mux {
	h := handler.NewRequestHandler(svc)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/admin/requests", h.RegisterRoutes)
	return r
}

func newRequestFixture() (*mockRequestService, database.ProductRequest) {
	req := database.ProductRequest{
		ID:          uuid.New(),
		OwnerID:     42,
		Handle:      "anna",
		DesiredName: "Samba OG",
		DesiredSize: "41",
		Status:      enum.RequestStatusNew,
		CreatedAt:   time.Now(),
	}
	return &mockRequestService{rows: map[uuid.UUID]database.ProductRequest{req.ID: req}}, req
}

// --- Tests ---

func TestListRequests_DefaultsToNew(t *testing.T) {
	svc, req := newRequestFixture()
	r := setupRequestRouter(svc)

	rr := doAuthRequest(t, r, "GET", "/admin/requests/", nil, testOperator)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if svc.listStatus != enum.RequestStatusNew {
		t.Errorf("status filter: got %q, want NEW", svc.listStatus)
	}
	body := rr.Body.String()
	if !strings.Contains(body, req.ID.String()) || !strings.Contains(body, "Samba OG") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestListRequests_InvalidStatus(t *testing.T) {
	svc, _ := newRequestFixture()
	r := setupRequestRouter(svc)

	rr := doAuthRequest(t, r, "GET", "/admin/requests/?status=bogus", nil, testOperator)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUpdateRequestStatus(t *testing.T) {
	svc, req := newRequestFixture()
	r := setupRequestRouter(svc)

	rr := doAuthRequest(t, r, "PATCH", "/admin/requests/"+req.ID.String()+"/status",
		map[string]string{"status": "approved"}, testOperator)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["status"] != enum.RequestStatusApproved {
		t.Errorf("status: got %v", resp["status"])
	}
}

func TestUpdateRequestStatus_Errors(t *testing.T) {
	svc, req := newRequestFixture()
	r := setupRequestRouter(svc)

	tests := []struct {
		name     string
		id       string
		body     interface{}
		wantCode int
	}{
		{"back to NEW", req.ID.String(), map[string]string{"status": "NEW"}, http.StatusBadRequest},
		{"missing status", req.ID.String(), map[string]string{}, http.StatusBadRequest},
		{"unknown request", uuid.NewString(), map[string]string{"status": "DONE"}, http.StatusNotFound},
		{"bad id", "nope", map[string]string{"status": "DONE"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAuthRequest(t, r, "PATCH", "/admin/requests/"+tt.id+"/status", tt.body, testOperator)
			if rr.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}
