// Package notify delivers fixed-shape order and request messages to the
// operator roster and to customers, and mirrors them to the live dashboard.
package notify

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Publisher is the part of *ws.Hub the notifier uses.
type Publisher interface {
	PublishJSON(topic, eventType string, payload interface{})
}

// Dashboard event types.
const (
	EventOrderPaid      = "order.paid"
	EventOrderOverdue   = "order.overdue"
	EventRequestCreated = "request.created"
)

// OrderEvent is the dashboard payload for order events.
type OrderEvent struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Handle        string    `json:"handle"`
	TotalCents    int64     `json:"total_cents"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

func newOrderEvent(o database.Order) OrderEvent {
	return OrderEvent{
		ID:            o.ID,
		OwnerID:       o.OwnerID,
		Handle:        o.Handle,
		TotalCents:    o.TotalCents,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
	}
}

// Notifier is stateless: every call formats one message and delivers it to
// each recipient independently. Delivery failures are logged, never returned.
type Notifier struct {
	admin     Sender
	customer  Sender
	operators []int64
	hub       Publisher
	now       func() time.Time
}

// New creates a Notifier. Any of admin, customer or hub may be nil, in which
// case that channel is skipped.
func New(admin, customer Sender, operators []int64, hub Publisher) *Notifier {
	return &Notifier{
		admin:     admin,
		customer:  customer,
		operators: operators,
		hub:       hub,
		now:       time.Now,
	}
}

// NotifyOrderPaid tells every operator about a newly paid order.
func (n *Notifier) NotifyOrderPaid(ctx context.Context, o database.Order) {
	kb := OrderButtons(o)
	n.broadcast(FormatOrder(o), func(msg *tgbotapi.MessageConfig) {
		if kb != nil {
			msg.ReplyMarkup = *kb
		}
	})
	n.publish(enum.TopicOrders, EventOrderPaid, newOrderEvent(o))
}

// NotifyCustomerPaid confirms the payment to the buyer.
func (n *Notifier) NotifyCustomerPaid(ctx context.Context, o database.Order) {
	n.sendCustomer(o.OwnerID, CustomerPaid(o))
}

// NotifyCustomerRefunded tells the buyer the refund went through.
func (n *Notifier) NotifyCustomerRefunded(ctx context.Context, o database.Order) {
	n.sendCustomer(o.OwnerID, CustomerRefunded(o))
}

// NotifyOverdue reminds every operator of a paid order still pending.
func (n *Notifier) NotifyOverdue(ctx context.Context, o database.Order) {
	kb := OverdueButtons(o)
	n.broadcast(FormatOverdue(o, n.now()), func(msg *tgbotapi.MessageConfig) {
		msg.ReplyMarkup = kb
	})
	n.publish(enum.TopicOrders, EventOrderOverdue, newOrderEvent(o))
}

// NotifyProductRequest pushes a new customer request to every operator.
func (n *Notifier) NotifyProductRequest(ctx context.Context, r database.ProductRequest) {
	kb := RequestButtons(r)
	n.broadcast(FormatRequestShort(r), func(msg *tgbotapi.MessageConfig) {
		msg.ReplyMarkup = kb
	})
	n.publish(enum.TopicRequests, EventRequestCreated, r)
}

func (n *Notifier) broadcast(text string, decorate func(*tgbotapi.MessageConfig)) {
	if n.admin == nil {
		return
	}
	for _, chatID := range n.operators {
		msg := tgbotapi.NewMessage(chatID, text)
		if decorate != nil {
			decorate(&msg)
		}
		if _, err := n.admin.Send(msg); err != nil {
			log.Printf("ERROR: notify operator %d: %v", chatID, err)
		}
	}
}

func (n *Notifier) sendCustomer(chatID int64, text string) {
	if n.customer == nil {
		return
	}
	if _, err := n.customer.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("ERROR: notify customer %d: %v", chatID, err)
	}
}

func (n *Notifier) publish(topic, eventType string, payload interface{}) {
	if n.hub == nil {
		return
	}
	n.hub.PublishJSON(topic, eventType, payload)
}
