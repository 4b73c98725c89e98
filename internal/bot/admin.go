package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/platanos-shop/storefront/internal/notify"
	"github.com/platanos-shop/storefront/internal/service"
)

// AdminOrders is satisfied by *service.OrderService.
type AdminOrders interface {
	LatestOrders(ctx context.Context, limit int32) ([]database.Order, error)
	Order(ctx context.Context, id uuid.UUID) (database.Order, error)
	Complete(ctx context.Context, id uuid.UUID) (database.Order, error)
	Refund(ctx context.Context, id uuid.UUID) (database.Order, error)
	SnoozeOverdue(ctx context.Context, id uuid.UUID, d time.Duration) (database.Order, error)
}

// AdminRequests is satisfied by *service.RequestService.
type AdminRequests interface {
	List(ctx context.Context, status string, limit int32) ([]database.ProductRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (database.ProductRequest, error)
}

const (
	adminListLimit   = 10
	notAuthorized    = "No autoritzat."
	labelListOrders  = "📦 Llistar comandes"
	labelListRequest = "📥 Peticions"
)

var (
	menuOrders   = regexp.MustCompile(`(?i)llistar\s*comandes`)
	menuRequests = regexp.MustCompile(`(?i)peticions`)
)

// AdminBot serves operators: order listings, fulfilment, refunds and
// product requests. Every update from a non-operator is refused.
type AdminBot struct {
	chat
	orders   AdminOrders
	requests AdminRequests
	isAdmin  func(int64) bool
}

func NewAdminBot(api Messenger, orders AdminOrders, requests AdminRequests, isAdmin func(int64) bool) *AdminBot {
	return &AdminBot{
		chat:     chat{api: api},
		orders:   orders,
		requests: requests,
		isAdmin:  isAdmin,
	}
}

func (b *AdminBot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	dispatch(ctx, "admin", updates, b.HandleUpdate)
}

func (b *AdminBot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func adminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(labelListOrders),
		tgbotapi.NewKeyboardButton(labelListRequest),
	))
	kb.ResizeKeyboard = true
	return kb
}

func (b *AdminBot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if !b.isAdmin(m.From.ID) {
		if m.IsCommand() && m.Command() == "start" {
			b.reply(m.Chat.ID, notAuthorized)
		}
		return
	}

	text := strings.TrimSpace(m.Text)
	switch {
	case m.IsCommand() && m.Command() == "start":
		b.replyWith(m.Chat.ID, "🛠️ Admin", adminKeyboard())
	case m.IsCommand() && m.Command() == "comandes", menuOrders.MatchString(text):
		b.listOrders(ctx, m.Chat.ID)
	case m.IsCommand() && m.Command() == "peticions", menuRequests.MatchString(text):
		b.listRequests(ctx, m.Chat.ID)
	}
}

func (b *AdminBot) listOrders(ctx context.Context, chatID int64) {
	orders, err := b.orders.LatestOrders(ctx, adminListLimit)
	if err != nil {
		log.Printf("ERROR: admin list orders: %v", err)
		b.reply(chatID, genericError)
		return
	}
	if len(orders) == 0 {
		b.reply(chatID, "Encara no hi ha comandes.")
		return
	}
	for _, o := range orders {
		msg := tgbotapi.NewMessage(chatID, notify.OrderLine(o))
		if kb := notify.OrderButtons(o); kb != nil {
			msg.ReplyMarkup = *kb
		}
		b.send(msg)
	}
}

func (b *AdminBot) listRequests(ctx context.Context, chatID int64) {
	rows, err := b.requests.List(ctx, enum.RequestStatusNew, adminListLimit)
	if err != nil {
		log.Printf("ERROR: admin list requests: %v", err)
		b.reply(chatID, genericError)
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, "Sense peticions noves.")
		return
	}
	for _, r := range rows {
		b.replyWith(chatID, notify.FormatRequest(r), notify.RequestButtons(r))
	}
}

// --- Callbacks ---

func (b *AdminBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !b.isAdmin(cb.From.ID) {
		b.answer(cb, notAuthorized)
		return
	}

	action, args := notify.ParseCallback(cb.Data)
	if action == notify.ActionNoop {
		b.answer(cb, "")
		return
	}
	if len(args) == 0 {
		b.answer(cb, "")
		return
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		b.answer(cb, "")
		return
	}

	switch action {
	case notify.ActionOrderDone:
		b.completeOrder(ctx, cb, id)
	case notify.ActionOrderRefund:
		b.askRefund(ctx, cb, id)
	case notify.ActionOrderRefundConfirm:
		b.refund(ctx, cb, id)
	case notify.ActionOverdueSnooze:
		minutes := notify.SnoozeMinutes
		if len(args) > 1 {
			minutes = args[1]
		}
		b.snooze(ctx, cb, id, minutes)
	case notify.ActionRequestAccept:
		b.setRequestStatus(ctx, cb, id, enum.RequestStatusApproved, "Acceptada")
	case notify.ActionRequestReject:
		b.setRequestStatus(ctx, cb, id, enum.RequestStatusRejected, "Rebutjada")
	case notify.ActionRequestDone:
		b.setRequestStatus(ctx, cb, id, enum.RequestStatusDone, "Marcada com feta")
	default:
		b.answer(cb, "")
	}
}

// editAdmin edits the operator's message in place. Failures are only logged;
// the callback answer already told the operator what happened.
func (b *AdminBot) editAdmin(cb *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if err := b.edit(cb, text, kb); err != nil && !errors.Is(err, errNoMessage) {
		log.Printf("WARN: admin edit message: %v", err)
	}
}

func (b *AdminBot) completeOrder(ctx context.Context, cb *tgbotapi.CallbackQuery, id uuid.UUID) {
	o, err := b.orders.Complete(ctx, id)
	switch {
	case err == nil:
		b.answer(cb, "Comanda marcada com realitzada")
		b.editAdmin(cb, notify.OrderLine(o), notify.OrderButtons(o))
	case errors.Is(err, service.ErrInvalidTransition):
		b.answer(cb, "La comanda ja no està pendent")
	case errors.Is(err, service.ErrOrderNotFound):
		b.answer(cb, "Comanda no trobada")
	default:
		log.Printf("ERROR: admin complete order %s: %v", id, err)
		b.answer(cb, genericError)
	}
}

func (b *AdminBot) askRefund(ctx context.Context, cb *tgbotapi.CallbackQuery, id uuid.UUID) {
	o, err := b.orders.Order(ctx, id)
	if err != nil {
		if !errors.Is(err, service.ErrOrderNotFound) {
			log.Printf("ERROR: admin load order %s: %v", id, err)
		}
		b.answer(cb, "Comanda no trobada")
		return
	}
	if o.PaymentStatus != enum.PaymentStatusPaid {
		b.answer(cb, "Només es poden reemborsar comandes pagades.")
		return
	}
	b.answer(cb, "")
	kb := notify.RefundConfirmButtons(o)
	b.replyWith(chatOf(cb), fmt.Sprintf("Segur que vols reemborsar la comanda #%s?", service.ShortID(o.ID)), kb)
}

func (b *AdminBot) refund(ctx context.Context, cb *tgbotapi.CallbackQuery, id uuid.UUID) {
	b.answer(cb, "Processant reemborsament…")

	o, err := b.orders.Refund(ctx, id)
	var text string
	switch {
	case err == nil:
		text = fmt.Sprintf("Comanda #%s reemborsada correctament.", service.ShortID(o.ID))
	case errors.Is(err, service.ErrNotRefundable):
		text = "Només es poden reemborsar comandes pagades."
	case errors.Is(err, service.ErrAlreadyRefunded):
		text = "Aquesta comanda ja està reemborsada."
	case errors.Is(err, service.ErrNoCaptureID):
		text = "No s’ha trobat el capture id a PayPal."
	case errors.Is(err, service.ErrOrderNotFound):
		text = "Comanda no trobada."
	case errors.Is(err, service.ErrGatewayUnavailable):
		text = "PayPal no ha acceptat el reemborsament. Torna-ho a provar més tard."
	default:
		log.Printf("ERROR: admin refund order %s: %v", id, err)
		text = genericError
	}
	b.editAdmin(cb, text, nil)
}

func (b *AdminBot) snooze(ctx context.Context, cb *tgbotapi.CallbackQuery, id uuid.UUID, minutes string) {
	n, err := strconv.Atoi(minutes)
	if err != nil || n <= 0 {
		b.answer(cb, "")
		return
	}
	_, err = b.orders.SnoozeOverdue(ctx, id, time.Duration(n)*time.Minute)
	switch {
	case err == nil:
		b.answer(cb, fmt.Sprintf("Silenciada %d min", n))
	case errors.Is(err, service.ErrInvalidTransition):
		b.answer(cb, "La comanda ja no està pendent")
	case errors.Is(err, service.ErrOrderNotFound):
		b.answer(cb, "Comanda no trobada")
	default:
		log.Printf("ERROR: admin snooze order %s: %v", id, err)
		b.answer(cb, genericError)
	}
}

func (b *AdminBot) setRequestStatus(ctx context.Context, cb *tgbotapi.CallbackQuery, id uuid.UUID, status, done string) {
	r, err := b.requests.SetStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			b.answer(cb, "Petició no trobada")
			return
		}
		log.Printf("ERROR: admin set request %s to %s: %v", id, status, err)
		b.answer(cb, genericError)
		return
	}
	b.answer(cb, done)
	b.editAdmin(cb, notify.FormatRequest(r), nil)
}
