package enum

// ── Group A: State machines (CHECK constrained in DB) ──

// Order lifecycle (fulfilment). Independent of payment status.
const (
	OrderStatusPending         = "PENDING"
	OrderStatusCompleted       = "COMPLETED"
	OrderStatusRefundRequested = "REFUND_REQUESTED"
	OrderStatusRefunded        = "REFUNDED"
)

// Payment status only moves forward: UNPAID -> CREATED -> PAID.
// CREATED may fall back to UNPAID on a failed capture. PAID is terminal.
const (
	PaymentStatusUnpaid  = "UNPAID"
	PaymentStatusCreated = "CREATED"
	PaymentStatusPaid    = "PAID"
)

const (
	RequestStatusNew      = "NEW"
	RequestStatusApproved = "APPROVED"
	RequestStatusRejected = "REJECTED"
	RequestStatusDone     = "DONE"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentProviderPayPal = "PAYPAL"
)

const (
	OperatorRoleAdmin = "ADMIN"
)

// Websocket topics for the live admin feed.
const (
	TopicOrders   = "orders"
	TopicRequests = "requests"
)
