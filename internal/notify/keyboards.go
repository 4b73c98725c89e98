package notify

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
)

// Admin callback actions. Callback data is "ACTION|arg|arg" and must stay
// under Telegram's 64 byte limit.
const (
	ActionOrderDone          = "ORDER_DONE"
	ActionOrderRefund        = "ORDER_REFUND"
	ActionOrderRefundConfirm = "ORDER_REFUND_OK"
	ActionOverdueSnooze      = "OVERDUE_SNOOZE"
	ActionRequestAccept      = "REQ_ACCEPT"
	ActionRequestReject      = "REQ_REJECT"
	ActionRequestDone        = "REQ_DONE"
	ActionNoop               = "NOOP"
)

// SnoozeMinutes is the snooze offered on overdue alerts.
const SnoozeMinutes = "120"

// Callback builds callback data for action.
func Callback(action string, args ...string) string {
	return strings.Join(append([]string{action}, args...), "|")
}

// ParseCallback splits callback data into action and arguments.
func ParseCallback(data string) (string, []string) {
	parts := strings.Split(data, "|")
	return parts[0], parts[1:]
}

// OrderButtons offers complete for pending orders and refund for paid ones.
func OrderButtons(o database.Order) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if o.Status == enum.OrderStatusPending {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Marcar realitzada", Callback(ActionOrderDone, o.ID.String())),
		))
	}
	if o.PaymentStatus == enum.PaymentStatusPaid && o.Status != enum.OrderStatusRefunded {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Reemborsar", Callback(ActionOrderRefund, o.ID.String())),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// RefundConfirmButtons asks for a second tap before money moves.
func RefundConfirmButtons(o database.Order) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❗️ Confirmar reemborsament", Callback(ActionOrderRefundConfirm, o.ID.String())),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel·lar", ActionNoop),
		),
	)
}

func OverdueButtons(o database.Order) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Marcar realitzada", Callback(ActionOrderDone, o.ID.String())),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕒 Snooze 2h", Callback(ActionOverdueSnooze, o.ID.String(), SnoozeMinutes)),
		),
	)
}

func RequestButtons(r database.ProductRequest) tgbotapi.InlineKeyboardMarkup {
	id := r.ID.String()
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Acceptar", Callback(ActionRequestAccept, id)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Rebutjar", Callback(ActionRequestReject, id)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✔️ Fet", Callback(ActionRequestDone, id)),
		),
	)
}
