package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/lms/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	Provider = "stripe"

	defaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 12 * time.Second

	codeUnexpectedState = "payment_intent_unexpected_state"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	settings := adapters.Settings(cfg.Config)
	if err := settings.Require("secret_key"); err != nil {
		return nil, err
	}
	secret := settings.String("secret_key")

	baseURL := settings.String("base_url")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := settings.Duration("timeout", defaultTimeout)

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(secret).
		SetHeader("Accept", "application/json")

	return &Adapter{client: client, log: log.Named("payment.stripe")}, nil
}

// Adapter maps orders onto manually captured PaymentIntents.
type Adapter struct {
	client *resty.Client
	log    *zap.Logger
}

func (a *Adapter) Provider() string {
	return Provider
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidConfig
	}

	// Stripe amounts are integers in the currency's minor unit.
	minor := req.Amount.Shift(2).Round(0).IntPart()

	form := map[string]string{
		"amount":         fmt.Sprintf("%d", minor),
		"currency":       currency,
		"capture_method": "manual",
	}
	if req.Description != "" {
		form["description"] = req.Description
	}
	if req.CustomID != "" {
		form["metadata[custom_id]"] = req.CustomID
	}

	var out paymentIntent
	var apiErr errorEnvelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", ulid.Make().String()).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payment_intents")
	if err != nil {
		return paymentdomain.Order{}, fmt.Errorf("%w: create payment intent: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		return paymentdomain.Order{}, a.statusError("create payment intent", resp.StatusCode(), apiErr)
	}
	if strings.TrimSpace(out.ID) == "" {
		return paymentdomain.Order{}, fmt.Errorf("%w: payment intent without id", paymentdomain.ErrInvalidResponse)
	}

	return paymentdomain.Order{
		ID:       out.ID,
		Status:   normalizeStatus(out.Status),
		Provider: Provider,
	}, nil
}

func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.Capture{}, paymentdomain.ErrInvalidOrderID
	}

	var out paymentIntent
	var apiErr errorEnvelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", "capture-"+orderID).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payment_intents/{id}/capture")
	if err != nil {
		return paymentdomain.Capture{}, fmt.Errorf("%w: capture payment intent: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		if apiErr.Error.Code == codeUnexpectedState {
			intent, err := a.retrieve(ctx, orderID)
			if err != nil {
				return paymentdomain.Capture{}, err
			}
			return toCapture(orderID, intent), nil
		}
		return paymentdomain.Capture{}, a.statusError("capture payment intent", resp.StatusCode(), apiErr)
	}
	return toCapture(orderID, out), nil
}

// GetOrder reads the PaymentIntent without changing it.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (paymentdomain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidOrderID
	}
	intent, err := a.retrieve(ctx, orderID)
	if err != nil {
		return paymentdomain.Order{}, err
	}
	return paymentdomain.Order{
		ID:       orderID,
		Status:   normalizeStatus(intent.Status),
		Provider: Provider,
		Terms:    intent.terms(intent.Amount),
	}, nil
}

// retrieve reads the intent. CaptureOrder falls back to it when the intent is
// not capturable, which also covers an intent captured by an earlier attempt.
func (a *Adapter) retrieve(ctx context.Context, orderID string) (paymentIntent, error) {
	var out paymentIntent
	var apiErr errorEnvelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return paymentIntent{}, fmt.Errorf("%w: retrieve payment intent: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		return paymentIntent{}, a.statusError("retrieve payment intent", resp.StatusCode(), apiErr)
	}
	return out, nil
}

func (a *Adapter) statusError(op string, status int, apiErr errorEnvelope) error {
	a.log.Warn("stripe request failed",
		zap.String("operation", op),
		zap.Int("status", status),
		zap.String("type", apiErr.Error.Type),
		zap.String("code", apiErr.Error.Code),
	)
	if status >= 500 || status == 429 {
		return fmt.Errorf("%w: %s: status %d", paymentdomain.ErrUnavailable, op, status)
	}
	return fmt.Errorf("%w: %s: status %d %s", paymentdomain.ErrRejected, op, status, apiErr.Error.Code)
}

func toCapture(orderID string, out paymentIntent) paymentdomain.Capture {
	received := out.AmountReceived
	if received == 0 {
		received = out.Amount
	}
	capture := paymentdomain.Capture{
		OrderID:  orderID,
		Status:   normalizeStatus(out.Status),
		Provider: Provider,
		Terms:    out.terms(received),
	}
	if capture.Status == paymentdomain.StatusCompleted {
		capture.CaptureID = strings.TrimSpace(out.LatestCharge)
	}
	return capture
}

func normalizeStatus(status string) string {
	switch strings.TrimSpace(status) {
	case "succeeded":
		return paymentdomain.StatusCompleted
	case "requires_payment_method", "requires_confirmation", "requires_action", "processing", "requires_capture":
		return paymentdomain.StatusPending
	case "canceled":
		return paymentdomain.StatusFailed
	default:
		return strings.ToUpper(strings.TrimSpace(status))
	}
}

type paymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	LatestCharge   string            `json:"latest_charge"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

// terms converts minor units back to a decimal amount.
func (p paymentIntent) terms(minor int64) paymentdomain.Terms {
	t := paymentdomain.Terms{
		Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
		CustomID: strings.TrimSpace(p.Metadata["custom_id"]),
	}
	if minor > 0 {
		t.Amount = decimal.New(minor, -2)
	}
	return t
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
