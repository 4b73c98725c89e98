package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/paypal"
)

// --- In-memory database ---

// memDB is an in-memory stand-in for Postgres. Rows read "for update" are
// locked until the owning memTx commits or rolls back, and writes made in a
// transaction are undone on rollback.
type memDB struct {
	mu       sync.Mutex
	carts    map[int64][]byte
	profiles map[int64]database.CustomerProfile
	stock    map[int64]int32
	orders   map[uuid.UUID]database.Order
	rowLocks map[string]*sync.Mutex

	paidTransitions int
	ordersCreated   int
}

func newMemDB() *memDB {
	return &memDB{
		carts:    map[int64][]byte{},
		profiles: map[int64]database.CustomerProfile{},
		stock:    map[int64]int32{},
		orders:   map[uuid.UUID]database.Order{},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (m *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{db: m, held: map[string]bool{}}, nil
}
func (m *memDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *memDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *memDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

func (m *memDB) newStore(db database.DBTX) OrderStore {
	if tx, ok := db.(*memTx); ok {
		return &memStore{db: m, tx: tx}
	}
	return &memStore{db: m}
}

func (m *memDB) setCart(ownerID int64, items ...database.LineItem) {
	raw, _ := database.EncodeLineItems(items)
	m.mu.Lock()
	m.carts[ownerID] = raw
	m.mu.Unlock()
}

func (m *memDB) cartItems(ownerID int64) []database.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, _ := database.DecodeLineItems(m.carts[ownerID])
	return items
}

func (m *memDB) setProfile(ownerID int64, name, address string) {
	m.mu.Lock()
	m.profiles[ownerID] = database.CustomerProfile{OwnerID: ownerID, DisplayName: name, ShippingAddress: address}
	m.mu.Unlock()
}

func (m *memDB) order(id uuid.UUID) database.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memDB) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memDB) putOrder(o database.Order) database.Order {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()
	return o
}

// --- Transaction ---

// memTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type memTx struct {
	db        *memDB
	locks     []*sync.Mutex
	held      map[string]bool
	undo      []func()
	done      bool
	commitErr error
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *memTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		_ = t.Rollback(ctx)
		return t.commitErr
	}
	t.finish()
	return nil
}
func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.db.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.db.mu.Unlock()
	t.finish()
	return nil
}
func (t *memTx) finish() {
	t.done = true
	t.undo = nil
	for _, l := range t.locks {
		l.Unlock()
	}
	t.locks = nil
}
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

// --- Store ---

type memStore struct {
	db *memDB
	tx *memTx
}

func (s *memStore) lockRow(key string) {
	if s.tx == nil || s.tx.held[key] {
		return
	}
	s.db.mu.Lock()
	l, ok := s.db.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.db.rowLocks[key] = l
	}
	s.db.mu.Unlock()

	l.Lock()
	s.tx.held[key] = true
	s.tx.locks = append(s.tx.locks, l)
}

// record registers an undo step. Caller must hold s.db.mu.
func (s *memStore) record(fn func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, fn)
	}
}

func (s *memStore) GetCart(ctx context.Context, ownerID int64) (database.Cart, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	raw, ok := s.db.carts[ownerID]
	if !ok {
		return database.Cart{}, pgx.ErrNoRows
	}
	return database.Cart{OwnerID: ownerID, Items: raw}, nil
}

func (s *memStore) GetCartForUpdate(ctx context.Context, ownerID int64) (database.Cart, error) {
	s.lockRow(fmt.Sprintf("cart:%d", ownerID))
	return s.GetCart(ctx, ownerID)
}

func (s *memStore) UpsertCart(ctx context.Context, arg database.UpsertCartParams) (database.Cart, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev, had := s.db.carts[arg.OwnerID]
	s.db.carts[arg.OwnerID] = arg.Items
	s.record(func() {
		if had {
			s.db.carts[arg.OwnerID] = prev
		} else {
			delete(s.db.carts, arg.OwnerID)
		}
	})
	return database.Cart{OwnerID: arg.OwnerID, Items: arg.Items}, nil
}

func (s *memStore) GetCustomerProfile(ctx context.Context, ownerID int64) (database.CustomerProfile, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.profiles[ownerID]
	if !ok {
		return database.CustomerProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *memStore) DecrementVariantStock(ctx context.Context, arg database.DecrementVariantStockParams) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stock, ok := s.db.stock[arg.ID]
	if !ok || stock < arg.Quantity {
		return 0, nil
	}
	s.db.stock[arg.ID] = stock - arg.Quantity
	s.record(func() { s.db.stock[arg.ID] = stock })
	return 1, nil
}

func (s *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now()
	o := database.Order{
		ID:              uuid.New(),
		OwnerID:         arg.OwnerID,
		Handle:          arg.Handle,
		Items:           arg.Items,
		TotalCents:      arg.TotalCents,
		CostCents:       arg.CostCents,
		ShippingName:    arg.ShippingName,
		ShippingAddress: arg.ShippingAddress,
		Status:          arg.Status,
		PaymentProvider: arg.PaymentProvider,
		PaymentStatus:   arg.PaymentStatus,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.db.orders[o.ID] = o
	s.db.ordersCreated++
	s.record(func() {
		delete(s.db.orders, o.ID)
		s.db.ordersCreated--
	})
	return o, nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	s.lockRow("order:" + id.String())
	return s.GetOrder(ctx, id)
}

func (s *memStore) GetOrderByExternalIDForUpdate(ctx context.Context, externalID string) (database.Order, error) {
	s.db.mu.Lock()
	var id uuid.UUID
	for _, o := range s.db.orders {
		if o.ExternalPaymentID.Valid && o.ExternalPaymentID.String == externalID {
			id = o.ID
			break
		}
	}
	s.db.mu.Unlock()
	if id == uuid.Nil {
		return database.Order{}, pgx.ErrNoRows
	}
	return s.GetOrderForUpdate(ctx, id)
}

// update applies fn to a copy of the order and stores it when fn returns true.
func (s *memStore) update(id uuid.UUID, fn func(o *database.Order) bool) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev, ok := s.db.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	next := prev
	if !fn(&next) {
		return database.Order{}, pgx.ErrNoRows
	}
	next.UpdatedAt = time.Now()
	s.db.orders[id] = next
	s.record(func() { s.db.orders[id] = prev })
	return next, nil
}

func tsNow() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now(), Valid: true}
}

func (s *memStore) SetPaymentIntent(ctx context.Context, arg database.SetPaymentIntentParams) (database.Order, error) {
	return s.update(arg.ID, func(o *database.Order) bool {
		if o.PaymentStatus == enum.PaymentStatusPaid || o.PaymentReceipt != nil {
			return false
		}
		o.ExternalPaymentID = pgtype.Text{String: arg.ExternalPaymentID, Valid: true}
		o.PaymentStatus = enum.PaymentStatusCreated
		return true
	})
}

func (s *memStore) MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error) {
	o, err := s.update(arg.ID, func(o *database.Order) bool {
		if o.PaymentStatus == enum.PaymentStatusPaid {
			return false
		}
		o.PaymentStatus = enum.PaymentStatusPaid
		o.PaidAt = tsNow()
		o.PaymentReceipt = arg.PaymentReceipt
		return true
	})
	if err == nil {
		s.db.mu.Lock()
		s.db.paidTransitions++
		s.db.mu.Unlock()
	}
	return o, err
}

func (s *memStore) ResetPaymentStatus(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.update(id, func(o *database.Order) bool {
		if o.PaymentStatus != enum.PaymentStatusCreated {
			return false
		}
		o.PaymentStatus = enum.PaymentStatusUnpaid
		o.PaymentReceipt = nil
		return true
	})
}

func (s *memStore) RecordPendingCapture(ctx context.Context, arg database.RecordPendingCaptureParams) (database.Order, error) {
	return s.update(arg.ID, func(o *database.Order) bool {
		if o.PaymentStatus != enum.PaymentStatusCreated {
			return false
		}
		o.PaymentReceipt = arg.PaymentReceipt
		return true
	})
}

func (s *memStore) ClaimOrderNotification(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.update(id, func(o *database.Order) bool {
		if o.PaymentStatus != enum.PaymentStatusPaid || o.NotifiedAt.Valid {
			return false
		}
		o.NotifiedAt = tsNow()
		return true
	})
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	return s.update(arg.ID, func(o *database.Order) bool {
		for _, from := range arg.From {
			if o.Status == from {
				o.Status = arg.To
				return true
			}
		}
		return false
	})
}

func (s *memStore) MarkOrderRefunded(ctx context.Context, arg database.MarkOrderRefundedParams) (database.Order, error) {
	return s.update(arg.ID, func(o *database.Order) bool {
		if o.Status != enum.OrderStatusRefundRequested || o.PaymentStatus != enum.PaymentStatusPaid {
			return false
		}
		o.Status = enum.OrderStatusRefunded
		o.RefundReceipt = arg.RefundReceipt
		return true
	})
}

func (s *memStore) ListLatestOrders(ctx context.Context, limit int32) ([]database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]database.Order, 0, len(s.db.orders))
	for _, o := range s.db.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SnoozeOverdue(ctx context.Context, arg database.SnoozeOverdueParams) (database.Order, error) {
	return s.update(arg.ID, func(o *database.Order) bool {
		if o.Status != enum.OrderStatusPending {
			return false
		}
		o.OverdueSnoozeUntil = pgtype.Timestamptz{Time: arg.Until, Valid: true}
		o.OverdueAlertedAt = pgtype.Timestamptz{}
		return true
	})
}

func (s *memStore) ListOverdueOrders(ctx context.Context, arg database.ListOverdueOrdersParams) ([]database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []database.Order
	for _, o := range s.db.orders {
		if o.Status != enum.OrderStatusPending || o.PaymentStatus != enum.PaymentStatusPaid {
			continue
		}
		if o.CreatedAt.After(arg.CreatedBefore) || o.OverdueAlertedAt.Valid {
			continue
		}
		if o.OverdueSnoozeUntil.Valid && o.OverdueSnoozeUntil.Time.After(arg.Now) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *memStore) ClaimOverdueAlert(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.update(id, func(o *database.Order) bool {
		if o.OverdueAlertedAt.Valid {
			return false
		}
		if o.Status != enum.OrderStatusPending || o.PaymentStatus != enum.PaymentStatusPaid {
			return false
		}
		if o.OverdueSnoozeUntil.Valid && o.OverdueSnoozeUntil.Time.After(time.Now()) {
			return false
		}
		o.OverdueAlertedAt = tsNow()
		return true
	})
}

// --- Gateway and notifier fakes ---

type fakeGateway struct {
	mu            sync.Mutex
	createErr     error
	captureErr    error
	captureStatus string
	captureDelay  time.Duration
	refundErr     error

	intents  int
	captures int
	refunds  int
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req paypal.IntentRequest) (paypal.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return paypal.Intent{}, g.createErr
	}
	g.intents++
	id := fmt.Sprintf("PAY-%d", g.intents)
	return paypal.Intent{ExternalID: id, ApprovalURL: "https://paypal.test/approve?token=" + id}, nil
}

func (g *fakeGateway) CaptureIntent(ctx context.Context, externalID string) (paypal.CaptureResult, error) {
	g.mu.Lock()
	g.captures++
	delay, status, err := g.captureDelay, g.captureStatus, g.captureErr
	g.mu.Unlock()

	time.Sleep(delay)
	if err != nil {
		return paypal.CaptureResult{}, err
	}
	if status == "" {
		status = paypal.StatusCompleted
	}
	return captureResult(externalID, status), nil
}

func (g *fakeGateway) Refund(ctx context.Context, captureID string, amountCents int64) (paypal.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return paypal.RefundResult{}, g.refundErr
	}
	g.refunds++
	raw, _ := json.Marshal(map[string]string{"id": "RF-" + captureID, "status": "COMPLETED"})
	return paypal.RefundResult{ID: "RF-" + captureID, Status: "COMPLETED", Raw: raw}, nil
}

func (g *fakeGateway) counts() (intents, captures, refunds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents, g.captures, g.refunds
}

func captureResult(externalID, status string) paypal.CaptureResult {
	raw := fmt.Sprintf(`{"id":%q,"status":%q,"purchase_units":[{"payments":{"captures":[{"id":"CAP-%s","status":%q}]}}]}`,
		externalID, status, externalID, status)
	return paypal.CaptureResult{
		ExternalID: externalID,
		Status:     status,
		CaptureID:  "CAP-" + externalID,
		Raw:        []byte(raw),
	}
}

type fakeNotifier struct {
	mu               sync.Mutex
	paid             []database.Order
	customerPaid     []database.Order
	customerRefunded []database.Order
	overdue          []database.Order
	requests         []database.ProductRequest
}

func (n *fakeNotifier) NotifyOrderPaid(ctx context.Context, o database.Order) {
	n.mu.Lock()
	n.paid = append(n.paid, o)
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyCustomerPaid(ctx context.Context, o database.Order) {
	n.mu.Lock()
	n.customerPaid = append(n.customerPaid, o)
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyCustomerRefunded(ctx context.Context, o database.Order) {
	n.mu.Lock()
	n.customerRefunded = append(n.customerRefunded, o)
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyOverdue(ctx context.Context, o database.Order) {
	n.mu.Lock()
	n.overdue = append(n.overdue, o)
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyProductRequest(ctx context.Context, r database.ProductRequest) {
	n.mu.Lock()
	n.requests = append(n.requests, r)
	n.mu.Unlock()
}

func (n *fakeNotifier) paidCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.paid)
}

type fakeCartCache struct {
	mu        sync.Mutex
	forgotten []int64
}

func (c *fakeCartCache) Forget(ownerID int64) {
	c.mu.Lock()
	c.forgotten = append(c.forgotten, ownerID)
	c.mu.Unlock()
}
