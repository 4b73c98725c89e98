package router

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/platanos-shop/storefront/internal/config"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/handler"
	mw "github.com/platanos-shop/storefront/internal/middleware"
	"github.com/platanos-shop/storefront/internal/ws"
)

// Services are the collaborators the HTTP surface is wired to.
// Updates handlers are nil when the bots run in polling mode.
type Services struct {
	Payments        handler.PaymentService
	Verifier        handler.WebhookVerifier
	Orders          handler.OrderServicer
	Requests        handler.RequestServicer
	CustomerUpdates http.Handler
	AdminUpdates    http.Handler
}

// New creates a Chi router with all application routes wired up.
// Operator routes require a valid token issued to an id in ADMIN_IDS.
func New(cfg *config.Config, svc Services, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Gateway redirects and webhook (public, webhook verifies itself)
	paymentHandler := handler.NewPaymentHandler(svc.Payments, svc.Verifier, cfg.WebhookBudget)
	r.Route("/payment", paymentHandler.RegisterRoutes)

	// Telegram webhook mode
	hookPath := "/" + strings.Trim(cfg.HookPath, "/")
	if svc.CustomerUpdates != nil {
		r.Method(http.MethodPost, hookPath+"/customer", svc.CustomerUpdates)
	}
	if svc.AdminUpdates != nil {
		r.Method(http.MethodPost, hookPath+"/admin", svc.AdminUpdates)
	}

	// Live dashboard feed (token in query param)
	r.Method(http.MethodGet, "/ws/{topic}", ws.NewHandler(hub, cfg.JWTSecret, cfg.AdminIDs, cfg.CORSOrigins))

	r.Route("/admin", func(r chi.Router) {
		// Auth routes (public)
		authHandler := handler.NewAuthHandler(cfg.AdminIDs, cfg.AdminPasswordHash, cfg.JWTSecret)
		authHandler.RegisterRoutes(r)

		// Protected routes (require an operator token)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			r.Use(mw.RequireOperator(cfg.AdminIDs))
			r.Use(mw.RequireRole(enum.OperatorRoleAdmin))

			orderHandler := handler.NewOrderHandler(svc.Orders)
			r.Route("/orders", orderHandler.RegisterRoutes)

			requestHandler := handler.NewRequestHandler(svc.Requests)
			r.Route("/requests", requestHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
