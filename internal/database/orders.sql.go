package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const orderColumns = `id, owner_id, handle, items, total_cents, cost_cents, shipping_name, shipping_address,
	status, payment_provider, payment_status, external_payment_id, payment_receipt, refund_receipt,
	created_at, paid_at, notified_at, overdue_alerted_at, overdue_snooze_until, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Handle,
		&i.Items,
		&i.TotalCents,
		&i.CostCents,
		&i.ShippingName,
		&i.ShippingAddress,
		&i.Status,
		&i.PaymentProvider,
		&i.PaymentStatus,
		&i.ExternalPaymentID,
		&i.PaymentReceipt,
		&i.RefundReceipt,
		&i.CreatedAt,
		&i.PaidAt,
		&i.NotifiedAt,
		&i.OverdueAlertedAt,
		&i.OverdueSnoozeUntil,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) queryOrders(ctx context.Context, sql string, args ...interface{}) ([]Order, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    owner_id, handle, items, total_cents, cost_cents, shipping_name, shipping_address,
    status, payment_provider, payment_status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OwnerID         int64  `json:"owner_id"`
	Handle          string `json:"handle"`
	Items           []byte `json:"items"`
	TotalCents      int64  `json:"total_cents"`
	CostCents       int64  `json:"cost_cents"`
	ShippingName    string `json:"shipping_name"`
	ShippingAddress string `json:"shipping_address"`
	Status          string `json:"status"`
	PaymentProvider string `json:"payment_provider"`
	PaymentStatus   string `json:"payment_status"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OwnerID,
		arg.Handle,
		arg.Items,
		arg.TotalCents,
		arg.CostCents,
		arg.ShippingName,
		arg.ShippingAddress,
		arg.Status,
		arg.PaymentProvider,
		arg.PaymentStatus,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

// GetOrderForUpdate locks the order row until the surrounding transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderByExternalIDForUpdate = `-- name: GetOrderByExternalIDForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE external_payment_id = $1 FOR UPDATE`

func (q *Queries) GetOrderByExternalIDForUpdate(ctx context.Context, externalPaymentID string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByExternalIDForUpdate, externalPaymentID))
}

const setPaymentIntent = `-- name: SetPaymentIntent :one
UPDATE orders
SET external_payment_id = $2, payment_status = 'CREATED', updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID' AND payment_receipt IS NULL
RETURNING ` + orderColumns

type SetPaymentIntentParams struct {
	ID                uuid.UUID `json:"id"`
	ExternalPaymentID string    `json:"external_payment_id"`
}

// SetPaymentIntent records a freshly created gateway intent. Returns
// pgx.ErrNoRows when the order is already PAID.
func (q *Queries) SetPaymentIntent(ctx context.Context, arg SetPaymentIntentParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setPaymentIntent, arg.ID, arg.ExternalPaymentID))
}

const markOrderPaid = `-- name: MarkOrderPaid :one
UPDATE orders
SET payment_status = 'PAID', paid_at = now(), payment_receipt = $2, updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID             uuid.UUID `json:"id"`
	PaymentReceipt []byte    `json:"payment_receipt"`
}

// MarkOrderPaid is a compare-and-swap: it only succeeds for the first
// caller, later callers get pgx.ErrNoRows.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.ID, arg.PaymentReceipt))
}

const resetPaymentStatus = `-- name: ResetPaymentStatus :one
UPDATE orders
SET payment_status = 'UNPAID', payment_receipt = NULL, updated_at = now()
WHERE id = $1 AND payment_status = 'CREATED'
RETURNING ` + orderColumns

func (q *Queries) ResetPaymentStatus(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, resetPaymentStatus, id))
}

const recordPendingCapture = `-- name: RecordPendingCapture :one
UPDATE orders
SET payment_receipt = $2, updated_at = now()
WHERE id = $1 AND payment_status = 'CREATED'
RETURNING ` + orderColumns

type RecordPendingCaptureParams struct {
	ID             uuid.UUID `json:"id"`
	PaymentReceipt []byte    `json:"payment_receipt"`
}

// RecordPendingCapture stores a capture that has not settled yet. While a
// receipt is on record SetPaymentIntent refuses to replace the intent.
func (q *Queries) RecordPendingCapture(ctx context.Context, arg RecordPendingCaptureParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, recordPendingCapture, arg.ID, arg.PaymentReceipt))
}

const claimOrderNotification = `-- name: ClaimOrderNotification :one
UPDATE orders
SET notified_at = now(), updated_at = now()
WHERE id = $1 AND payment_status = 'PAID' AND notified_at IS NULL
RETURNING ` + orderColumns

// ClaimOrderNotification sets notified_at once. A pgx.ErrNoRows result means
// somebody else already owns the notification.
func (q *Queries) ClaimOrderNotification(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, claimOrderNotification, id))
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = ANY($3::text[])
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID   uuid.UUID `json:"id"`
	To   string    `json:"to"`
	From []string  `json:"from"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.To, arg.From))
}

const markOrderRefunded = `-- name: MarkOrderRefunded :one
UPDATE orders
SET status = 'REFUNDED', refund_receipt = $2, updated_at = now()
WHERE id = $1 AND status = 'REFUND_REQUESTED' AND payment_status = 'PAID'
RETURNING ` + orderColumns

type MarkOrderRefundedParams struct {
	ID            uuid.UUID `json:"id"`
	RefundReceipt []byte    `json:"refund_receipt"`
}

func (q *Queries) MarkOrderRefunded(ctx context.Context, arg MarkOrderRefundedParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderRefunded, arg.ID, arg.RefundReceipt))
}

const listLatestOrders = `-- name: ListLatestOrders :many
SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

func (q *Queries) ListLatestOrders(ctx context.Context, limit int32) ([]Order, error) {
	return q.queryOrders(ctx, listLatestOrders, limit)
}

const listOverdueOrders = `-- name: ListOverdueOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE status = 'PENDING'
  AND payment_status = 'PAID'
  AND created_at <= $1
  AND (overdue_snooze_until IS NULL OR overdue_snooze_until <= $2)
  AND overdue_alerted_at IS NULL
ORDER BY created_at ASC
LIMIT $3`

type ListOverdueOrdersParams struct {
	CreatedBefore time.Time `json:"created_before"`
	Now           time.Time `json:"now"`
	Limit         int32     `json:"limit"`
}

func (q *Queries) ListOverdueOrders(ctx context.Context, arg ListOverdueOrdersParams) ([]Order, error) {
	return q.queryOrders(ctx, listOverdueOrders, arg.CreatedBefore, arg.Now, arg.Limit)
}

const claimOverdueAlert = `-- name: ClaimOverdueAlert :one
UPDATE orders
SET overdue_alerted_at = now(), updated_at = now()
WHERE id = $1
  AND overdue_alerted_at IS NULL
  AND status = 'PENDING'
  AND payment_status = 'PAID'
  AND (overdue_snooze_until IS NULL OR overdue_snooze_until <= now())
RETURNING ` + orderColumns

// ClaimOverdueAlert re-checks the overdue conditions under the row update, so
// an order completed or snoozed after the listing is not alerted.
func (q *Queries) ClaimOverdueAlert(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, claimOverdueAlert, id))
}

const snoozeOverdue = `-- name: SnoozeOverdue :one
UPDATE orders
SET overdue_snooze_until = $2, overdue_alerted_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + orderColumns

type SnoozeOverdueParams struct {
	ID    uuid.UUID `json:"id"`
	Until time.Time `json:"until"`
}

// SnoozeOverdue pushes the alert window forward and re-arms the alert marker
// so the monitor fires again once the snooze elapses.
func (q *Queries) SnoozeOverdue(ctx context.Context, arg SnoozeOverdueParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, snoozeOverdue, arg.ID, arg.Until))
}
