package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/service"
)

// RequestServicer defines the service methods needed by product request handlers.
// Satisfied by *service.RequestService; narrow interface for testability.
type RequestServicer interface {
	List(ctx context.Context, status string, limit int32) ([]database.ProductRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (database.ProductRequest, error)
}

// RequestHandler handles the operator product request endpoints.
type RequestHandler struct {
	svc RequestServicer
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(svc RequestServicer) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// RegisterRoutes registers request endpoints on the given Chi router.
// Expected to be mounted inside the operator subrouter: /admin/requests
func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type updateRequestStatusRequest struct {
	Status string `json:"status"`
}

type productRequestResponse struct {
	ID          uuid.UUID `json:"id"`
	Reference   string    `json:"reference"`
	OwnerID     int64     `json:"owner_id"`
	Handle      string    `json:"handle"`
	DesiredName string    `json:"desired_name"`
	DesiredSize string    `json:"desired_size"`
	Notes       string    `json:"notes"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProductRequestResponse(r database.ProductRequest) productRequestResponse {
	return productRequestResponse{
		ID:          r.ID,
		Reference:   service.ShortID(r.ID),
		OwnerID:     r.OwnerID,
		Handle:      r.Handle,
		DesiredName: r.DesiredName,
		DesiredSize: r.DesiredSize,
		Notes:       r.Notes,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
}

// --- Handlers ---

// List returns requests in one status, NEW by default.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	if status == "" {
		status = enum.RequestStatusNew
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := h.svc.List(r.Context(), status, int32(limit))
	if err != nil {
		writeServiceError(w, "list product requests", err)
		return
	}

	resp := make([]productRequestResponse, len(rows))
	for i, row := range rows {
		resp[i] = toProductRequestResponse(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus applies a triage decision: APPROVED, REJECTED or DONE.
func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req updateRequestStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	row, err := h.svc.SetStatus(r.Context(), id, strings.ToUpper(req.Status))
	if err != nil {
		writeServiceError(w, "update product request", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductRequestResponse(row))
}
