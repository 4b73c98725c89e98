package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/money"
	"github.com/platanos-shop/storefront/internal/service"
)

const timeLayout = "02/01/2006 15:04"

// Who renders the customer as @handle, falling back to the numeric id.
func Who(handle string, ownerID int64) string {
	if handle != "" {
		return "@" + handle
	}
	return strconv.FormatInt(ownerID, 10)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// ItemLine renders one cart or order line.
func ItemLine(it database.LineItem) string {
	return fmt.Sprintf("• %s — talla %s ×%d = %s",
		it.ProductName, orDash(it.VariantLabel), it.Quantity, money.EUR(it.LineTotal()))
}

// FormatItems renders the item snapshot of an order. Unreadable snapshots
// render as "(buit)".
func FormatItems(raw []byte) string {
	items, err := database.DecodeLineItems(raw)
	if err != nil || len(items) == 0 {
		return "(buit)"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = ItemLine(it)
	}
	return strings.Join(lines, "\n")
}

func orderBody(o database.Order) []string {
	return []string{
		"Client: " + orDash(o.ShippingName),
		"Usuari: " + Who(o.Handle, o.OwnerID),
		"Adreça:\n" + orDash(o.ShippingAddress),
		"",
		"Productes:",
		FormatItems(o.Items),
		"",
		"Total: " + money.EUR(o.TotalCents),
	}
}

// FormatOrder is the operator message for a newly paid order.
func FormatOrder(o database.Order) string {
	lines := append([]string{fmt.Sprintf("💶 NOVA COMANDA PAGADA (#%s)", service.ShortID(o.ID)), ""}, orderBody(o)...)
	if o.CostCents > 0 {
		lines = append(lines, "Marge: "+money.EUR(o.TotalCents-o.CostCents))
	}
	return strings.Join(lines, "\n")
}

// FormatOverdue is the operator reminder for a paid order still pending.
func FormatOverdue(o database.Order, now time.Time) string {
	hours := int(now.Sub(o.CreatedAt).Hours())
	head := fmt.Sprintf("⏰ COMANDA PENDENT (#%s) — fa %dh", service.ShortID(o.ID), hours)
	return strings.Join(append([]string{head, ""}, orderBody(o)...), "\n")
}

// OrderLine is the one-line summary used in order listings.
func OrderLine(o database.Order) string {
	name := o.ShippingName
	if name == "" {
		name = Who(o.Handle, o.OwnerID)
	}
	return fmt.Sprintf("#%s — %s — %s — %s — %s/%s",
		service.ShortID(o.ID), o.CreatedAt.Format(timeLayout), name, money.EUR(o.TotalCents), o.Status, o.PaymentStatus)
}

// FormatRequestShort is the push message for a new product request.
func FormatRequestShort(r database.ProductRequest) string {
	lines := []string{
		fmt.Sprintf("📥 Nova petició (#%s)", service.ShortID(r.ID)),
		"Usuari: " + Who(r.Handle, r.OwnerID),
		"Nom: " + r.DesiredName,
		"Talla: " + orDash(r.DesiredSize),
	}
	if r.Notes != "" {
		lines = append(lines, "Notes: "+r.Notes)
	}
	return strings.Join(lines, "\n")
}

// FormatRequest is the listing form of a product request.
func FormatRequest(r database.ProductRequest) string {
	return strings.Join([]string{
		fmt.Sprintf("#%s — %s — %s", service.ShortID(r.ID), r.CreatedAt.Format(timeLayout), r.Status),
		"Usuari: " + Who(r.Handle, r.OwnerID),
		"Nom: " + r.DesiredName,
		"Talla: " + orDash(r.DesiredSize),
		"Notes: " + orDash(r.Notes),
	}, "\n")
}

// CustomerPaid is sent to the buyer once the payment is captured.
func CustomerPaid(o database.Order) string {
	return fmt.Sprintf("✅ Pagament rebut! Comanda #%s. Total: %s. Ens posarem en contacte.",
		service.ShortID(o.ID), money.EUR(o.TotalCents))
}

// CustomerRefunded is sent to the buyer once the refund went through.
func CustomerRefunded(o database.Order) string {
	return fmt.Sprintf("↩️ El pagament de la comanda #%s ha estat reemborsat.", service.ShortID(o.ID))
}
