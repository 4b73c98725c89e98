// Package paypal is the payment gateway adapter. Raw provider JSON is
// decoded here into CaptureResult / WebhookEvent and never interpreted
// outside this package.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/platanos-shop/storefront/internal/money"
)

const (
	LiveBaseURL    = "https://api-m.paypal.com"
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"

	tokenSafetyMargin = time.Minute
	maxResponseBytes  = 1 << 20
)

var (
	ErrMissingCredentials   = errors.New("paypal credentials are not configured")
	ErrWebhookNotConfigured = errors.New("paypal webhook id is not configured")
	ErrNoApprovalLink       = errors.New("paypal response has no approval link")
)

// APIError is a non-2xx answer from the PayPal REST API.
type APIError struct {
	StatusCode int
	Name       string
	Issue      string
	Message    string
}

func (e *APIError) Error() string {
	if e.Issue != "" {
		return fmt.Sprintf("paypal %d %s (%s): %s", e.StatusCode, e.Name, e.Issue, e.Message)
	}
	return fmt.Sprintf("paypal %d %s: %s", e.StatusCode, e.Name, e.Message)
}

// Config holds the adapter settings.
type Config struct {
	BaseURL    string
	ClientID   string
	Secret     string
	WebhookID  string
	Currency   string
	HTTPClient *http.Client
}

// BaseURLForMode maps PAYPAL_MODE to an API host. Anything but "sandbox" is live.
func BaseURLForMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), "sandbox") {
		return SandboxBaseURL
	}
	return LiveBaseURL
}

// Client talks to the PayPal Orders v2 and Payments v2 APIs.
type Client struct {
	baseURL   string
	clientID  string
	secret    string
	webhookID string
	currency  string
	http      *http.Client
	now       func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Client. Currency defaults to EUR.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "EUR"
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		clientID:  cfg.ClientID,
		secret:    cfg.Secret,
		webhookID: cfg.WebhookID,
		currency:  currency,
		http:      hc,
		now:       time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns a cached OAuth token, fetching a new one when it is
// missing or about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.clientID == "" || c.secret == "" {
		return "", ErrMissingCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	raw, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("paypal oauth: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("paypal oauth: empty access token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenSafetyMargin)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do performs an authenticated JSON call and returns the raw 2xx body.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, requestID string) ([]byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	raw, err := c.send(req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, err
	}
	return raw, nil
}

type errorBody struct {
	Name             string `json:"name"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Details          []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		apiErr.Name = eb.Name
		apiErr.Message = eb.Message
		if apiErr.Name == "" {
			apiErr.Name = eb.Error
			apiErr.Message = eb.ErrorDescription
		}
		if len(eb.Details) > 0 {
			apiErr.Issue = eb.Details[0].Issue
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return nil, apiErr
}

// --- Orders v2 ---

// IntentRequest describes the payment intent to create for a local order.
type IntentRequest struct {
	OrderID     string
	AmountCents int64
	ReturnURL   string
	CancelURL   string
	Description string
}

// Intent is the gateway-side pending payment.
type Intent struct {
	ExternalID  string
	ApprovalURL string
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      amount `json:"amount"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

// CreateIntent creates a CAPTURE-intent order and returns its approval link.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderID,
			CustomID:    req.OrderID,
			Description: req.Description,
			Amount: amount{
				CurrencyCode: c.currency,
				Value:        money.GatewayValue(req.AmountCents),
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL:          req.ReturnURL,
			CancelURL:          req.CancelURL,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
		},
	}

	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, "")
	if err != nil {
		return Intent{}, fmt.Errorf("create paypal order: %w", err)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Intent{}, fmt.Errorf("decode create order response: %w", err)
	}

	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return Intent{ExternalID: resp.ID, ApprovalURL: l.Href}, nil
		}
	}
	return Intent{}, ErrNoApprovalLink
}

// CaptureIntent captures an approved order. The capture call carries a
// PayPal-Request-Id derived from the order id, and an ORDER_ALREADY_CAPTURED
// answer is resolved by reading the order back.
func (c *Client) CaptureIntent(ctx context.Context, externalID string) (CaptureResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(externalID) + "/capture"
	raw, err := c.do(ctx, http.MethodPost, path, json.RawMessage(`{}`), "capture-"+externalID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Issue == "ORDER_ALREADY_CAPTURED" {
			return c.GetIntent(ctx, externalID)
		}
		return CaptureResult{}, fmt.Errorf("capture paypal order %s: %w", externalID, err)
	}
	return DecodeOrder(raw)
}

// GetIntent reads the current state of a PayPal order.
func (c *Client) GetIntent(ctx context.Context, externalID string) (CaptureResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(externalID), nil, "")
	if err != nil {
		return CaptureResult{}, fmt.Errorf("get paypal order %s: %w", externalID, err)
	}
	return DecodeOrder(raw)
}

// --- Payments v2 ---

// RefundResult is the decoded refund answer.
type RefundResult struct {
	ID     string
	Status string
	Raw    []byte
}

type refundRequest struct {
	Amount amount `json:"amount"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund refunds amountCents of a capture. Retries with the same capture
// reuse the same PayPal-Request-Id.
func (c *Client) Refund(ctx context.Context, captureID string, amountCents int64) (RefundResult, error) {
	body := refundRequest{Amount: amount{CurrencyCode: c.currency, Value: money.GatewayValue(amountCents)}}
	path := "/v2/payments/captures/" + url.PathEscape(captureID) + "/refund"
	raw, err := c.do(ctx, http.MethodPost, path, body, "refund-"+captureID)
	if err != nil {
		return RefundResult{}, fmt.Errorf("refund capture %s: %w", captureID, err)
	}
	var resp refundResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return RefundResult{}, fmt.Errorf("decode refund response: %w", err)
	}
	return RefundResult{ID: resp.ID, Status: resp.Status, Raw: raw}, nil
}

// --- Webhooks ---

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal to validate the transmission headers
// against the configured webhook id. Missing headers are reported as
// unverified without a remote call.
func (c *Client) VerifyWebhookSignature(ctx context.Context, h http.Header, body []byte) (bool, error) {
	if c.webhookID == "" {
		return false, ErrWebhookNotConfigured
	}
	vr := verifyRequest{
		AuthAlgo:         h.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          h.Get("PAYPAL-CERT-URL"),
		TransmissionID:   h.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  h.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: h.Get("PAYPAL-TRANSMISSION-TIME"),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	if vr.AuthAlgo == "" || vr.CertURL == "" || vr.TransmissionID == "" || vr.TransmissionSig == "" || vr.TransmissionTime == "" {
		return false, nil
	}
	if !json.Valid(body) {
		return false, nil
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", vr, "")
	if err != nil {
		return false, fmt.Errorf("verify webhook signature: %w", err)
	}
	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}
