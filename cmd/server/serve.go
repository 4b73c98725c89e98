package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platanos-shop/storefront/internal/bot"
	"github.com/platanos-shop/storefront/internal/config"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/handler"
	"github.com/platanos-shop/storefront/internal/notify"
	"github.com/platanos-shop/storefront/internal/paypal"
	"github.com/platanos-shop/storefront/internal/router"
	"github.com/platanos-shop/storefront/internal/service"
	"github.com/platanos-shop/storefront/internal/ws"
)

const (
	updateBuffer    = 100
	pollTimeout     = 30
	shutdownTimeout = 10 * time.Second
)

// components selects what a process runs. Bot tokens are used for outgoing
// notifications whenever they are configured, even if that bot's update loop
// runs elsewhere.
type components struct {
	http     bool
	customer bool
	admin    bool
}

func runComponents(c components) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, config.Load(), c)
	}
}

func run(ctx context.Context, cfg *config.Config, c components) error {
	if cfg.UseWebhook && !c.http && (c.customer || c.admin) {
		return errors.New("USE_WEBHOOK=true needs the http component to receive bot updates")
	}
	if c.http {
		if err := cfg.CheckPayments(); err != nil {
			return err
		}
	}
	if c.customer {
		if err := cfg.CheckCustomerBot(); err != nil {
			return err
		}
	}
	if c.admin {
		if err := cfg.CheckAdminBot(); err != nil {
			return err
		}
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to database")
	queries := database.New(pool)

	// Telegram clients
	customerAPI, err := newBotAPI(cfg.CustomerBotToken)
	if err != nil {
		return fmt.Errorf("customer bot: %w", err)
	}
	adminAPI, err := newBotAPI(cfg.AdminBotToken)
	if err != nil {
		return fmt.Errorf("admin bot: %w", err)
	}

	// Notifications
	var (
		adminSender    notify.Sender
		customerSender notify.Sender
		publisher      notify.Publisher
		hub            *ws.Hub
	)
	if adminAPI != nil {
		adminSender = adminAPI
	}
	if customerAPI != nil {
		customerSender = customerAPI
	}
	if c.http {
		hub = ws.NewHub()
		go hub.Run()
		publisher = hub
	}
	notifier := notify.New(adminSender, customerSender, cfg.AdminIDs, publisher)

	// Services
	gateway := paypal.NewClient(paypal.Config{
		BaseURL:   paypal.BaseURLForMode(cfg.PayPalMode),
		ClientID:  cfg.PayPalClientID,
		Secret:    cfg.PayPalSecret,
		WebhookID: cfg.PayPalWebhookID,
		Currency:  cfg.Currency,
	})
	carts := service.NewCartService(queries)
	catalog := service.NewCatalogService(queries)
	profiles := service.NewProfileService(queries)
	orders := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, carts, gateway, notifier, cfg.AppURL)
	requests := service.NewRequestService(queries, notifier)
	overdue := service.NewOverdueMonitor(queries, notifier, cfg.OverdueAfter)

	g, ctx := errgroup.WithContext(ctx)

	var customerHook, adminHook *handler.UpdateHandler
	if c.customer {
		customerBot := bot.NewCustomerBot(customerAPI, catalog, carts, profiles, orders, requests)
		updates, hook, err := updatesFor(ctx, customerAPI, cfg, "customer")
		if err != nil {
			return err
		}
		customerHook = hook
		g.Go(func() error {
			customerBot.Run(ctx, updates)
			return nil
		})
	}
	if c.admin {
		adminBot := bot.NewAdminBot(adminAPI, orders, requests, cfg.IsAdmin)
		updates, hook, err := updatesFor(ctx, adminAPI, cfg, "admin")
		if err != nil {
			return err
		}
		adminHook = hook
		g.Go(func() error {
			adminBot.Run(ctx, updates)
			return nil
		})
		g.Go(func() error {
			service.RunEvery(ctx, "overdue sweep", cfg.OverduePollInterval, overdue.Sweep)
			return nil
		})
		g.Go(func() error {
			service.RunEvery(ctx, "request sweep", cfg.RequestPollInterval, requests.SweepNotifications)
			return nil
		})
	}

	if c.http {
		svc := router.Services{
			Payments: orders,
			Verifier: gateway,
			Orders:   orders,
			Requests: requests,
		}
		if customerHook != nil {
			svc.CustomerUpdates = customerHook
		}
		if adminHook != nil {
			svc.AdminUpdates = adminHook
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router.New(cfg, svc, hub),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Printf("Starting server on :%s", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Println("Shutting down")
	return err
}

// newBotAPI returns nil for an empty token.
func newBotAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized as @%s", api.Self.UserName)
	return api, nil
}

// updatesFor registers the webhook or starts long polling. In webhook mode
// the returned handler must be mounted on the router.
func updatesFor(ctx context.Context, api *tgbotapi.BotAPI, cfg *config.Config, name string) (tgbotapi.UpdatesChannel, *handler.UpdateHandler, error) {
	if cfg.UseWebhook {
		hook := handler.NewUpdateHandler(name, updateBuffer)
		url := cfg.AppURL + "/" + strings.Trim(cfg.HookPath, "/") + "/" + name
		wh, err := tgbotapi.NewWebhook(url)
		if err != nil {
			return nil, nil, fmt.Errorf("%s bot webhook: %w", name, err)
		}
		if _, err := api.Request(wh); err != nil {
			return nil, nil, fmt.Errorf("%s bot set webhook: %w", name, err)
		}
		log.Printf("%s bot: webhook at %s", name, url)
		return hook.Updates(), hook, nil
	}

	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Printf("WARN: %s bot: delete webhook: %v", name, err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()
	log.Printf("%s bot: polling", name)
	return updates, nil, nil
}
