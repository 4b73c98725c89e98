package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/middleware"
	"github.com/platanos-shop/storefront/internal/money"
	"github.com/platanos-shop/storefront/internal/service"
)

// OrderServicer defines the service methods needed by the admin order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	LatestOrders(ctx context.Context, limit int32) ([]database.Order, error)
	Order(ctx context.Context, id uuid.UUID) (database.Order, error)
	Complete(ctx context.Context, id uuid.UUID) (database.Order, error)
	Refund(ctx context.Context, id uuid.UUID) (database.Order, error)
	SnoozeOverdue(ctx context.Context, id uuid.UUID, d time.Duration) (database.Order, error)
}

// OrderHandler handles the operator order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside the operator subrouter: /admin/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/refund", h.Refund)
	r.Post("/{id}/snooze", h.Snooze)
}

// --- Request / Response types ---

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

type lineItemResponse struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	VariantID    int64  `json:"variant_id,omitempty"`
	VariantLabel string `json:"variant_label,omitempty"`
	UnitPrice    string `json:"unit_price"`
	Quantity     int32  `json:"quantity"`
	LineTotal    string `json:"line_total"`
}

type orderResponse struct {
	ID                 uuid.UUID          `json:"id"`
	Reference          string             `json:"reference"`
	OwnerID            int64              `json:"owner_id"`
	Handle             string             `json:"handle"`
	Items              []lineItemResponse `json:"items"`
	TotalCents         int64              `json:"total_cents"`
	Total              string             `json:"total"`
	Margin             string             `json:"margin,omitempty"`
	ShippingName       string             `json:"shipping_name"`
	ShippingAddress    string             `json:"shipping_address"`
	Status             string             `json:"status"`
	PaymentProvider    string             `json:"payment_provider"`
	PaymentStatus      string             `json:"payment_status"`
	ExternalPaymentID  *string            `json:"external_payment_id"`
	CreatedAt          time.Time          `json:"created_at"`
	PaidAt             *time.Time         `json:"paid_at"`
	OverdueSnoozeUntil *time.Time         `json:"overdue_snooze_until"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
}

// --- Handlers ---

// List returns the most recent orders, newest first.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	orders, err := h.svc.LatestOrders(r.Context(), int32(limit))
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit})
}

// Get returns one order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Order(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, dbOrderToResponse(o))
}

// Complete marks a paid order as fulfilled.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, "complete order", err)
		return
	}
	logOperatorAction(r, "complete", id)
	writeJSON(w, http.StatusOK, dbOrderToResponse(o))
}

// Refund refunds the captured payment of an order.
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Refund(r.Context(), id)
	if err != nil {
		writeServiceError(w, "refund order", err)
		return
	}
	logOperatorAction(r, "refund", id)
	writeJSON(w, http.StatusOK, dbOrderToResponse(o))
}

// Snooze silences the overdue alert of an order. Body is optional and
// defaults to two hours.
func (h *OrderHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	req := snoozeRequest{Minutes: 120}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Minutes <= 0 || req.Minutes > 7*24*60 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minutes must be between 1 and 10080"})
		return
	}

	o, err := h.svc.SnoozeOverdue(r.Context(), id, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		writeServiceError(w, "snooze order", err)
		return
	}
	writeJSON(w, http.StatusOK, dbOrderToResponse(o))
}

// --- Helpers ---

func logOperatorAction(r *http.Request, action string, id uuid.UUID) {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		log.Printf("operator %d: %s order %s", claims.OperatorID, action, id)
	}
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Reference:       service.ShortID(o.ID),
		OwnerID:         o.OwnerID,
		Handle:          o.Handle,
		Items:           []lineItemResponse{},
		TotalCents:      o.TotalCents,
		Total:           money.EUR(o.TotalCents),
		ShippingName:    o.ShippingName,
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status,
		PaymentProvider: o.PaymentProvider,
		PaymentStatus:   o.PaymentStatus,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.CostCents > 0 {
		resp.Margin = money.EUR(o.TotalCents - o.CostCents)
	}
	if o.ExternalPaymentID.Valid {
		resp.ExternalPaymentID = &o.ExternalPaymentID.String
	}
	if o.PaidAt.Valid {
		resp.PaidAt = &o.PaidAt.Time
	}
	if o.OverdueSnoozeUntil.Valid {
		resp.OverdueSnoozeUntil = &o.OverdueSnoozeUntil.Time
	}

	items, err := database.DecodeLineItems(o.Items)
	if err != nil {
		log.Printf("WARN: order %s: %v", o.ID, err)
	}
	for _, it := range items {
		resp.Items = append(resp.Items, lineItemResponse{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			VariantID:    it.VariantID,
			VariantLabel: it.VariantLabel,
			UnitPrice:    money.EUR(it.UnitPriceCents),
			Quantity:     it.Quantity,
			LineTotal:    money.EUR(it.LineTotal()),
		})
	}
	return resp
}
