package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/paypal"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a pool that can both run statements and open transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	TxBeginner
	database.DBTX
}

// OrderStore defines the DB methods the reconciliation engine needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetCartForUpdate(ctx context.Context, ownerID int64) (database.Cart, error)
	UpsertCart(ctx context.Context, arg database.UpsertCartParams) (database.Cart, error)
	GetCustomerProfile(ctx context.Context, ownerID int64) (database.CustomerProfile, error)
	DecrementVariantStock(ctx context.Context, arg database.DecrementVariantStockParams) (int64, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByExternalIDForUpdate(ctx context.Context, externalPaymentID string) (database.Order, error)
	SetPaymentIntent(ctx context.Context, arg database.SetPaymentIntentParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	ResetPaymentStatus(ctx context.Context, id uuid.UUID) (database.Order, error)
	RecordPendingCapture(ctx context.Context, arg database.RecordPendingCaptureParams) (database.Order, error)
	ClaimOrderNotification(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	MarkOrderRefunded(ctx context.Context, arg database.MarkOrderRefundedParams) (database.Order, error)
	ListLatestOrders(ctx context.Context, limit int32) ([]database.Order, error)
	SnoozeOverdue(ctx context.Context, arg database.SnoozeOverdueParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// Gateway is the payment provider as seen by the engine.
// Satisfied by *paypal.Client.
type Gateway interface {
	CreateIntent(ctx context.Context, req paypal.IntentRequest) (paypal.Intent, error)
	CaptureIntent(ctx context.Context, externalID string) (paypal.CaptureResult, error)
	Refund(ctx context.Context, captureID string, amountCents int64) (paypal.RefundResult, error)
}

// OrderNotifier delivers order events. Implementations must not fail the
// caller; delivery errors are theirs to log.
type OrderNotifier interface {
	NotifyOrderPaid(ctx context.Context, o database.Order)
	NotifyCustomerPaid(ctx context.Context, o database.Order)
	NotifyCustomerRefunded(ctx context.Context, o database.Order)
}

// CartCache is the in-memory side of the cart that checkout must evict.
type CartCache interface {
	Forget(ownerID int64)
}

// CheckoutRequest identifies the customer checking out.
type CheckoutRequest struct {
	OwnerID int64
	Handle  string
}

// CheckoutResult is the order created by checkout. ApprovalURL is empty when
// the gateway could not create an intent.
type CheckoutResult struct {
	Order       database.Order
	Items       []database.LineItem
	ApprovalURL string
}

// ConfirmRequest is a payment confirmation signal from the return page or a
// webhook. At least one of ExternalID and OrderID must be set. Captured is
// set when the signal itself proves a completed capture.
type ConfirmRequest struct {
	ExternalID string
	OrderID    uuid.UUID
	Source     string
	Captured   *paypal.CaptureResult
}

// ConfirmResult reports what ConfirmPayment did.
type ConfirmResult struct {
	Order database.Order
	// AlreadyPaid is set when another signal got there first.
	AlreadyPaid bool
	// Notified is set when this call claimed and sent the admin notification.
	Notified bool
}

// OrderService drives orders from checkout through payment confirmation.
type OrderService struct {
	db       DB
	newStore NewOrderStore
	carts    CartCache
	gateway  Gateway
	notifier OrderNotifier
	appURL   string
	now      func() time.Time
}

// NewOrderService creates a new OrderService. appURL is the public base URL
// used to build the gateway return and cancel links.
func NewOrderService(db DB, newStore NewOrderStore, carts CartCache, gateway Gateway, notifier OrderNotifier, appURL string) *OrderService {
	return &OrderService{
		db:       db,
		newStore: newStore,
		carts:    carts,
		gateway:  gateway,
		notifier: notifier,
		appURL:   strings.TrimRight(appURL, "/"),
		now:      time.Now,
	}
}

// Checkout turns the customer's persisted cart into an UNPAID order, empties
// the cart in the same transaction and then asks the gateway for an intent.
// On gateway failure the UNPAID order is returned together with
// ErrGatewayUnavailable.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	order, items, err := s.createOrderTx(ctx, req)
	if err != nil {
		return nil, err
	}
	s.carts.Forget(req.OwnerID)

	result := &CheckoutResult{Order: order, Items: items}

	updated, approvalURL, err := s.createIntent(ctx, order)
	if err != nil {
		log.Printf("ERROR: create payment intent for order %s: %v", order.ID, err)
		return result, err
	}
	result.Order = updated
	result.ApprovalURL = approvalURL
	return result, nil
}

func (s *OrderService) createOrderTx(ctx context.Context, req CheckoutRequest) (database.Order, []database.LineItem, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Lock the cart so a double-tapped checkout sees the emptied snapshot ---
	cart, err := store.GetCartForUpdate(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, ErrEmptyCart
		}
		return database.Order{}, nil, fmt.Errorf("lock cart: %w", err)
	}
	items, err := database.DecodeLineItems(cart.Items)
	if err != nil {
		return database.Order{}, nil, err
	}
	if len(items) == 0 {
		return database.Order{}, nil, ErrEmptyCart
	}

	// --- Profile must be complete before any order row exists ---
	profile, err := store.GetCustomerProfile(ctx, req.OwnerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, nil, fmt.Errorf("get profile: %w", err)
	}
	if missing := MissingProfileFields(profile); len(missing) > 0 {
		return database.Order{}, nil, &ProfileIncompleteError{Missing: missing}
	}

	// --- Reserve stock ---
	for i, it := range items {
		if it.Quantity < 1 {
			return database.Order{}, nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if it.VariantID == 0 {
			continue
		}
		n, err := store.DecrementVariantStock(ctx, database.DecrementVariantStockParams{
			ID:       it.VariantID,
			Quantity: it.Quantity,
		})
		if err != nil {
			return database.Order{}, nil, fmt.Errorf("item[%d]: decrement stock: %w", i, err)
		}
		if n == 0 {
			return database.Order{}, nil, fmt.Errorf("%s %s: %w", it.ProductName, it.VariantLabel, ErrOutOfStock)
		}
	}

	// --- Insert the order with the price snapshot ---
	raw, err := database.EncodeLineItems(items)
	if err != nil {
		return database.Order{}, nil, err
	}
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OwnerID:         req.OwnerID,
		Handle:          req.Handle,
		Items:           raw,
		TotalCents:      CartTotal(items),
		CostCents:       CartCost(items),
		ShippingName:    profile.DisplayName,
		ShippingAddress: profile.ShippingAddress,
		Status:          enum.OrderStatusPending,
		PaymentProvider: enum.PaymentProviderPayPal,
		PaymentStatus:   enum.PaymentStatusUnpaid,
	})
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("create order: %w", err)
	}

	// --- Empty the cart in the same transaction ---
	empty, _ := database.EncodeLineItems(nil)
	if _, err := store.UpsertCart(ctx, database.UpsertCartParams{OwnerID: req.OwnerID, Items: empty}); err != nil {
		return database.Order{}, nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return order, items, nil
}

// createIntent asks the gateway for a new intent and records it on the order.
func (s *OrderService) createIntent(ctx context.Context, order database.Order) (database.Order, string, error) {
	intent, err := s.gateway.CreateIntent(ctx, paypal.IntentRequest{
		OrderID:     order.ID.String(),
		AmountCents: order.TotalCents,
		ReturnURL:   s.paymentURL("/payment/return", order.ID),
		CancelURL:   s.paymentURL("/payment/cancel", order.ID),
		Description: "Comanda " + ShortID(order.ID),
	})
	if err != nil {
		return order, "", fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	updated, err := s.newStore(s.db).SetPaymentIntent(ctx, database.SetPaymentIntentParams{
		ID:                order.ID,
		ExternalPaymentID: intent.ExternalID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order, "", fmt.Errorf("order %s: %w", order.ID, ErrInvalidTransition)
		}
		return order, "", fmt.Errorf("set payment intent: %w", err)
	}
	return updated, intent.ApprovalURL, nil
}

func (s *OrderService) paymentURL(path string, id uuid.UUID) string {
	return s.appURL + path + "?order_id=" + url.QueryEscape(id.String())
}

// ResumePayment creates a fresh intent for an unpaid order owned by ownerID.
func (s *OrderService) ResumePayment(ctx context.Context, orderID uuid.UUID, ownerID int64) (*CheckoutResult, error) {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != ownerID {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus == enum.PaymentStatusPaid || order.Status != enum.OrderStatusPending {
		return nil, fmt.Errorf("order %s is %s/%s: %w", order.ID, order.Status, order.PaymentStatus, ErrInvalidTransition)
	}
	// A capture on record may still settle against the current intent.
	if len(order.PaymentReceipt) > 0 {
		return nil, fmt.Errorf("order %s: %w", order.ID, ErrPaymentPending)
	}
	items, err := database.DecodeLineItems(order.Items)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{Order: order, Items: items}
	updated, approvalURL, err := s.createIntent(ctx, order)
	if err != nil {
		log.Printf("ERROR: resume payment for order %s: %v", order.ID, err)
		return result, err
	}
	result.Order = updated
	result.ApprovalURL = approvalURL
	return result, nil
}

// ConfirmPayment is the single entry point for both the return page and the
// webhook. The order row stays locked from the PAID check until commit, so
// concurrent signals for one order capture at most once and notify once.
func (s *OrderService) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.ExternalID == "" && req.OrderID == uuid.Nil {
		return nil, ErrOrderNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := lockOrder(ctx, store, req)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == enum.PaymentStatusPaid {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &ConfirmResult{Order: order, AlreadyPaid: true}, nil
	}

	if !order.ExternalPaymentID.Valid || order.ExternalPaymentID.String == "" {
		return &ConfirmResult{Order: order}, fmt.Errorf("order %s has no payment intent: %w", order.ID, ErrPaymentNotCompleted)
	}
	externalID := order.ExternalPaymentID.String

	// --- Capture unless the signal already carries a completed capture ---
	capture := req.Captured
	if capture == nil || capture.ExternalID != externalID || !capture.Completed() {
		c, err := s.gateway.CaptureIntent(ctx, externalID)
		if err != nil {
			if !isCaptureRejected(err) {
				return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
			}
			c = paypal.CaptureResult{ExternalID: externalID, Status: paypal.StatusRejected}
			log.Printf("WARN: capture rejected for order %s (%s): %v", order.ID, req.Source, err)
		}
		capture = &c
	}

	// A settling capture keeps the intent so its completion still finds this
	// order; anything else moved no money and the order becomes payable again.
	if capture.Settling() {
		pending, err := store.RecordPendingCapture(ctx, database.RecordPendingCaptureParams{
			ID:             order.ID,
			PaymentReceipt: capture.Raw,
		})
		switch {
		case err == nil:
			order = pending
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("record pending capture: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		log.Printf("WARN: order %s capture %s is %s (%s)", order.ID, capture.CaptureID, capture.Status, req.Source)
		return &ConfirmResult{Order: order}, fmt.Errorf("capture status %s: %w", capture.Status, ErrPaymentPending)
	}
	if !capture.Completed() {
		reset, err := store.ResetPaymentStatus(ctx, order.ID)
		switch {
		case err == nil:
			order = reset
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("reset payment status: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &ConfirmResult{Order: order}, fmt.Errorf("capture status %s: %w", capture.Status, ErrPaymentNotCompleted)
	}

	if capture.AmountCents != 0 && capture.AmountCents != order.TotalCents {
		log.Printf("WARN: order %s captured %d cents, expected %d", order.ID, capture.AmountCents, order.TotalCents)
	}

	// --- PAID transition and notification claim commit together ---
	paid, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
		ID:             order.ID,
		PaymentReceipt: capture.Raw,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ConfirmResult{Order: order, AlreadyPaid: true}, nil
		}
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	notify := true
	claimed, err := store.ClaimOrderNotification(ctx, paid.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim notification: %w", err)
		}
		notify = false
		claimed = paid
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if notify {
		nctx := context.WithoutCancel(ctx)
		s.notifier.NotifyOrderPaid(nctx, claimed)
		s.notifier.NotifyCustomerPaid(nctx, claimed)
	}
	log.Printf("order %s paid via %s", claimed.ID, req.Source)
	return &ConfirmResult{Order: claimed, Notified: notify}, nil
}

func lockOrder(ctx context.Context, store OrderStore, req ConfirmRequest) (database.Order, error) {
	var (
		order database.Order
		err   error
	)
	if req.ExternalID != "" {
		order, err = store.GetOrderByExternalIDForUpdate(ctx, req.ExternalID)
	} else {
		order, err = store.GetOrderForUpdate(ctx, req.OrderID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if req.ExternalID != "" && req.OrderID != uuid.Nil && order.ID != req.OrderID {
		return database.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// isCaptureRejected reports whether the gateway refused the capture itself,
// as opposed to being unreachable.
func isCaptureRejected(err error) bool {
	var apiErr *paypal.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// Cancel handles a customer abandoning the gateway page. The order is left
// as is so it can be paid later.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	return s.Order(ctx, orderID)
}

// Order returns one order by id.
func (s *OrderService) Order(ctx context.Context, id uuid.UUID) (database.Order, error) {
	order, err := s.newStore(s.db).GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// LatestOrders returns the most recent orders, newest first.
func (s *OrderService) LatestOrders(ctx context.Context, limit int32) ([]database.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	orders, err := s.newStore(s.db).ListLatestOrders(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Complete marks a pending order as fulfilled.
func (s *OrderService) Complete(ctx context.Context, id uuid.UUID) (database.Order, error) {
	store := s.newStore(s.db)
	order, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:   id,
		To:   enum.OrderStatusCompleted,
		From: []string{enum.OrderStatusPending},
	})
	if err != nil {
		return database.Order{}, s.transitionError(ctx, id, err)
	}
	return order, nil
}

// Refund returns the captured amount of a paid order. The lifecycle moves to
// REFUND_REQUESTED before the gateway call, so a crash in between is visible
// and can be retried with the same idempotency key.
func (s *OrderService) Refund(ctx context.Context, id uuid.UUID) (database.Order, error) {
	order, err := s.Order(ctx, id)
	if err != nil {
		return database.Order{}, err
	}
	if order.PaymentStatus != enum.PaymentStatusPaid {
		return database.Order{}, ErrNotRefundable
	}
	if order.Status == enum.OrderStatusRefunded {
		return database.Order{}, ErrAlreadyRefunded
	}
	captureID := paypal.CaptureIDFromReceipt(order.PaymentReceipt)
	if captureID == "" {
		return database.Order{}, ErrNoCaptureID
	}

	store := s.newStore(s.db)
	if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID: id,
		To: enum.OrderStatusRefundRequested,
		From: []string{
			enum.OrderStatusPending,
			enum.OrderStatusCompleted,
			enum.OrderStatusRefundRequested,
		},
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrAlreadyRefunded
		}
		return database.Order{}, fmt.Errorf("request refund: %w", err)
	}

	rr, err := s.gateway.Refund(ctx, captureID, order.TotalCents)
	if err != nil {
		log.Printf("ERROR: refund order %s capture %s: %v", id, captureID, err)
		return database.Order{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	refunded, err := store.MarkOrderRefunded(ctx, database.MarkOrderRefundedParams{
		ID:            id,
		RefundReceipt: rr.Raw,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrAlreadyRefunded
		}
		return database.Order{}, fmt.Errorf("mark refunded: %w", err)
	}

	s.notifier.NotifyCustomerRefunded(context.WithoutCancel(ctx), refunded)
	return refunded, nil
}

// SnoozeOverdue silences the overdue alert of a pending order for d.
func (s *OrderService) SnoozeOverdue(ctx context.Context, id uuid.UUID, d time.Duration) (database.Order, error) {
	if d <= 0 {
		return database.Order{}, fmt.Errorf("snooze %s: %w", d, ErrInvalidQuantity)
	}
	order, err := s.newStore(s.db).SnoozeOverdue(ctx, database.SnoozeOverdueParams{
		ID:    id,
		Until: s.now().Add(d),
	})
	if err != nil {
		return database.Order{}, s.transitionError(ctx, id, err)
	}
	return order, nil
}

// transitionError maps a conditional update that matched no row to either
// ErrOrderNotFound or ErrInvalidTransition.
func (s *OrderService) transitionError(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	if _, gerr := s.Order(ctx, id); gerr != nil {
		return gerr
	}
	return ErrInvalidTransition
}

// ShortID is the human-facing order reference.
func ShortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
