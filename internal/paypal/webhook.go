package paypal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platanos-shop/storefront/internal/money"
)

const (
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"

	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusDeclined  = "DECLINED"
	StatusFailed    = "FAILED"
	StatusVoided    = "VOIDED"

	// StatusRejected marks a capture call the API refused with a 4xx.
	StatusRejected = "REJECTED"
)

var ErrMalformedEvent = errors.New("malformed paypal webhook event")

// CaptureResult is the decoded outcome of a capture attempt or order read.
// Raw keeps the provider body so it can be stored as the payment receipt.
type CaptureResult struct {
	ExternalID  string
	Status      string
	CaptureID   string
	AmountCents int64
	Raw         []byte
}

// Completed reports whether the money has actually moved.
func (r CaptureResult) Completed() bool {
	return r.Status == StatusCompleted
}

// Settling reports whether a capture exists that may still complete later,
// such as a PENDING capture under review.
func (r CaptureResult) Settling() bool {
	if r.Completed() || r.CaptureID == "" {
		return false
	}
	switch r.Status {
	case StatusDeclined, StatusFailed, StatusVoided, StatusRejected:
		return false
	}
	return true
}

type captureJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type orderJSON struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []captureJSON `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o orderJSON) firstCapture() (captureJSON, bool) {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0], true
		}
	}
	return captureJSON{}, false
}

// DecodeOrder turns an Orders v2 body into a CaptureResult. When the order
// carries a capture, the capture status wins over the order status, so a
// COMPLETED order with a PENDING capture is not treated as paid.
func DecodeOrder(raw []byte) (CaptureResult, error) {
	var o orderJSON
	if err := json.Unmarshal(raw, &o); err != nil {
		return CaptureResult{}, fmt.Errorf("decode paypal order: %w", err)
	}

	res := CaptureResult{ExternalID: o.ID, Status: o.Status, Raw: raw}
	if c, ok := o.firstCapture(); ok {
		res.CaptureID = c.ID
		res.Status = c.Status
		if c.Amount.Value != "" {
			if cents, err := money.ParseGatewayValue(c.Amount.Value); err == nil {
				res.AmountCents = cents
			}
		}
	}
	return res, nil
}

// WebhookEvent is the part of a webhook the reconciliation engine needs.
type WebhookEvent struct {
	ID         string
	Type       string
	ExternalID string
	// Capture is set for PAYMENT.CAPTURE.COMPLETED, where the event itself
	// proves the capture and no further gateway call is needed.
	Capture *CaptureResult
}

type eventJSON struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// ParseWebhookEvent extracts the external payment id from a webhook body.
// Unknown event types decode without an ExternalID.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var e eventJSON
	if err := json.Unmarshal(body, &e); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev := WebhookEvent{ID: e.ID, Type: e.EventType}

	switch e.EventType {
	case EventOrderApproved:
		var o orderJSON
		if err := json.Unmarshal(e.Resource, &o); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.ExternalID = o.ID

	case EventCaptureCompleted:
		var c captureJSON
		if err := json.Unmarshal(e.Resource, &c); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.ExternalID = c.SupplementaryData.RelatedIDs.OrderID
		res := &CaptureResult{
			ExternalID: ev.ExternalID,
			Status:     c.Status,
			CaptureID:  c.ID,
			Raw:        []byte(e.Resource),
		}
		if cents, err := money.ParseGatewayValue(c.Amount.Value); err == nil {
			res.AmountCents = cents
		}
		ev.Capture = res
	}

	return ev, nil
}

// CaptureIDFromReceipt finds the capture id in a stored payment receipt,
// which is either an order body or a bare capture resource.
func CaptureIDFromReceipt(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var o orderJSON
	if err := json.Unmarshal(raw, &o); err != nil {
		return ""
	}
	if c, ok := o.firstCapture(); ok {
		return c.ID
	}
	if len(o.PurchaseUnits) > 0 {
		return ""
	}

	var c captureJSON
	if err := json.Unmarshal(raw, &c); err != nil {
		return ""
	}
	if c.SupplementaryData.RelatedIDs.OrderID != "" {
		return c.ID
	}
	return ""
}
