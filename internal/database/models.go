package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// LineItem is the JSONB element stored in carts.items and orders.items.
// Prices are captured when the item is added to the cart; orders keep the
// snapshot taken at checkout.
type LineItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	VariantID      int64  `json:"variant_id,omitempty"`
	VariantLabel   string `json:"variant_label,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents,omitempty"`
	Quantity       int32  `json:"quantity"`
}

// LineTotal returns unit price times quantity in cents.
func (li LineItem) LineTotal() int64 {
	return li.UnitPriceCents * int64(li.Quantity)
}

// EncodeLineItems marshals items for a JSONB column. A nil slice encodes as [].
func EncodeLineItems(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return b, nil
}

// DecodeLineItems unmarshals a JSONB column. Empty input decodes to nil.
func DecodeLineItems(raw []byte) ([]LineItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	return items, nil
}

type Product struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Brand          string      `json:"brand"`
	Category       string      `json:"category"`
	ImageUrl       string      `json:"image_url"`
	BasePriceCents pgtype.Int8 `json:"base_price_cents"`
	SourceUrl      pgtype.Text `json:"source_url"`
	CreatedAt      time.Time   `json:"created_at"`
}

type Variant struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	OptionName  string    `json:"option_name"`
	OptionValue string    `json:"option_value"`
	PriceCents  int64     `json:"price_cents"`
	CostCents   int64     `json:"cost_cents"`
	Stock       int32     `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
}

type Cart struct {
	OwnerID   int64     `json:"owner_id"`
	Items     []byte    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CustomerProfile struct {
	OwnerID         int64     `json:"owner_id"`
	DisplayName     string    `json:"display_name"`
	ShippingAddress string    `json:"shipping_address"`
	LastKnownHandle string    `json:"last_known_handle"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Order struct {
	ID                 uuid.UUID          `json:"id"`
	OwnerID            int64              `json:"owner_id"`
	Handle             string             `json:"handle"`
	Items              []byte             `json:"items"`
	TotalCents         int64              `json:"total_cents"`
	CostCents          int64              `json:"cost_cents"`
	ShippingName       string             `json:"shipping_name"`
	ShippingAddress    string             `json:"shipping_address"`
	Status             string             `json:"status"`
	PaymentProvider    string             `json:"payment_provider"`
	PaymentStatus      string             `json:"payment_status"`
	ExternalPaymentID  pgtype.Text        `json:"external_payment_id"`
	PaymentReceipt     []byte             `json:"payment_receipt"`
	RefundReceipt      []byte             `json:"refund_receipt"`
	CreatedAt          time.Time          `json:"created_at"`
	PaidAt             pgtype.Timestamptz `json:"paid_at"`
	NotifiedAt         pgtype.Timestamptz `json:"notified_at"`
	OverdueAlertedAt   pgtype.Timestamptz `json:"overdue_alerted_at"`
	OverdueSnoozeUntil pgtype.Timestamptz `json:"overdue_snooze_until"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type ProductRequest struct {
	ID          uuid.UUID          `json:"id"`
	OwnerID     int64              `json:"owner_id"`
	Handle      string             `json:"handle"`
	DesiredName string             `json:"desired_name"`
	DesiredSize string             `json:"desired_size"`
	Notes       string             `json:"notes"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	NotifiedAt  pgtype.Timestamptz `json:"notified_at"`
}
