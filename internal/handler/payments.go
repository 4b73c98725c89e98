package handler

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/money"
	"github.com/platanos-shop/storefront/internal/paypal"
	"github.com/platanos-shop/storefront/internal/service"
)

const maxWebhookBody = 1 << 20

// PaymentService is the part of the reconciliation engine the payment
// routes drive.
type PaymentService interface {
	ConfirmPayment(ctx context.Context, req service.ConfirmRequest) (*service.ConfirmResult, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (database.Order, error)
}

// WebhookVerifier checks a webhook's signature with the gateway.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, h http.Header, body []byte) (bool, error)
}

// PaymentHandler serves the gateway return, cancel and webhook endpoints.
type PaymentHandler struct {
	orders   PaymentService
	verifier WebhookVerifier
	budget   time.Duration
}

// NewPaymentHandler creates a new PaymentHandler. budget bounds the work done
// for a single webhook delivery.
func NewPaymentHandler(orders PaymentService, verifier WebhookVerifier, budget time.Duration) *PaymentHandler {
	if budget <= 0 {
		budget = 10 * time.Second
	}
	return &PaymentHandler{orders: orders, verifier: verifier, budget: budget}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /payment
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/return", h.Return)
	r.Get("/cancel", h.Cancel)
	r.Post("/webhook", h.Webhook)
}

// --- Result pages ---

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="ca">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;max-width:32rem;margin:3rem auto;padding:0 1rem">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Reference}}<p>Comanda <strong>#{{.Reference}}</strong>{{if .Total}} · {{.Total}}{{end}}</p>{{end}}
<p>Ja pots tornar a Telegram.</p>
</body>
</html>
`))

type pageData struct {
	Title     string
	Message   string
	Reference string
	Total     string
}

func pageForOrder(title, message string, o database.Order) pageData {
	p := pageData{Title: title, Message: message}
	if o.ID != uuid.Nil {
		p.Reference = service.ShortID(o.ID)
		p.Total = money.EUR(o.TotalCents)
	}
	return p
}

func writePage(w http.ResponseWriter, status int, p pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, p); err != nil {
		log.Printf("ERROR: render payment page: %v", err)
	}
}

// --- Handlers ---

// Return handles GET /payment/return?token=<externalId>&order_id=<id>.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ConfirmRequest{
		ExternalID: q.Get("token"),
		Source:     "return",
	}
	if raw := q.Get("order_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writePage(w, http.StatusBadRequest, pageData{Title: "Enllaç no vàlid", Message: "No hem pogut identificar la comanda."})
			return
		}
		req.OrderID = id
	}
	if req.ExternalID == "" && req.OrderID == uuid.Nil {
		writePage(w, http.StatusBadRequest, pageData{Title: "Enllaç no vàlid", Message: "No hem pogut identificar la comanda."})
		return
	}

	res, err := h.orders.ConfirmPayment(r.Context(), req)
	switch {
	case err == nil && res.AlreadyPaid:
		writePage(w, http.StatusOK, pageForOrder("Pagament ja registrat", "Aquesta comanda ja estava pagada. No s'ha fet cap càrrec nou.", res.Order))
	case err == nil:
		writePage(w, http.StatusOK, pageForOrder("✅ Pagament completat", "Gràcies! Hem rebut el pagament.", res.Order))
	case errors.Is(err, service.ErrOrderNotFound):
		writePage(w, http.StatusNotFound, pageData{Title: "Comanda no trobada", Message: "No hem trobat cap comanda per a aquest pagament."})
	case errors.Is(err, service.ErrPaymentPending):
		var o database.Order
		if res != nil {
			o = res.Order
		}
		writePage(w, http.StatusOK, pageForOrder("Pagament pendent", "PayPal encara està processant el pagament. Rebràs la confirmació a Telegram quan es completi.", o))
	case errors.Is(err, service.ErrPaymentNotCompleted):
		var o database.Order
		if res != nil {
			o = res.Order
		}
		writePage(w, http.StatusOK, pageForOrder("Pagament no completat", "El pagament no s'ha completat. Pots tornar-ho a provar des de Telegram.", o))
	case service.KindOf(err) == service.KindTransient:
		log.Printf("WARN: confirm payment on return (%s): %v", req.ExternalID, err)
		writePage(w, http.StatusServiceUnavailable, pageData{Title: "Pagament en procés", Message: "No hem pogut confirmar el pagament ara mateix. Si s'ha completat, rebràs la confirmació a Telegram."})
	default:
		log.Printf("ERROR: confirm payment on return (%s): %v", req.ExternalID, err)
		writePage(w, http.StatusInternalServerError, pageData{Title: "Error", Message: "Sembla que hi ha hagut un error."})
	}
}

// Cancel handles GET /payment/cancel?order_id=<id>. The order stays payable.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p := pageData{Title: "Pagament cancel·lat", Message: "Has cancel·lat el pagament. La comanda continua oberta i la pots pagar des de Telegram."}

	if id, err := uuid.Parse(r.URL.Query().Get("order_id")); err == nil {
		if o, err := h.orders.Cancel(r.Context(), id); err == nil {
			p = pageForOrder(p.Title, p.Message, o)
		} else if !errors.Is(err, service.ErrOrderNotFound) {
			log.Printf("ERROR: cancel page for order %s: %v", id, err)
		}
	}
	writePage(w, http.StatusOK, p)
}

// Webhook handles POST /payment/webhook. It always answers 200 so the
// gateway does not retry forever; untrusted and failed deliveries are logged.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("WARN: read webhook body: %v", err)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.budget)
	defer cancel()

	h.processWebhook(ctx, r.Header, body)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentHandler) processWebhook(ctx context.Context, header http.Header, body []byte) {
	ok, err := h.verifier.VerifyWebhookSignature(ctx, header, body)
	if err != nil {
		log.Printf("WARN: verify webhook: %v", err)
		return
	}
	if !ok {
		log.Printf("WARN: %v", service.ErrUntrustedWebhook)
		return
	}

	ev, err := paypal.ParseWebhookEvent(body)
	if err != nil {
		log.Printf("WARN: webhook %v", err)
		return
	}
	if ev.ExternalID == "" {
		return
	}

	res, err := h.orders.ConfirmPayment(ctx, service.ConfirmRequest{
		ExternalID: ev.ExternalID,
		Source:     "webhook",
		Captured:   ev.Capture,
	})
	switch {
	case err == nil:
		if res.Notified {
			log.Printf("webhook %s (%s) confirmed order %s", ev.ID, ev.Type, res.Order.ID)
		}
	case errors.Is(err, service.ErrOrderNotFound):
		log.Printf("WARN: webhook %s for unknown payment %s", ev.ID, ev.ExternalID)
	case errors.Is(err, service.ErrPaymentPending):
		log.Printf("webhook %s: payment %s still pending", ev.ID, ev.ExternalID)
	default:
		log.Printf("ERROR: webhook %s confirm %s: %v", ev.ID, ev.ExternalID, err)
	}
}
