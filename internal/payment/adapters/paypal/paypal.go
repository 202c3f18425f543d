package paypal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/lms/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	Provider = "paypal"

	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	defaultTimeout = 12 * time.Second
	tokenSkew      = time.Minute

	issueOrderNotApproved     = "ORDER_NOT_APPROVED"
	issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
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
	if err := settings.Require("client_id", "client_secret"); err != nil {
		return nil, err
	}
	clientID := settings.String("client_id")
	clientSecret := settings.String("client_secret")

	baseURL := settings.String("base_url")
	if baseURL == "" {
		baseURL = sandboxBaseURL
		switch strings.ToLower(settings.String("environment")) {
		case "live", "production":
			baseURL = liveBaseURL
		}
	}
	timeout := settings.Duration("timeout", defaultTimeout)

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Adapter{
		client:       client,
		log:          log.Named("payment.paypal"),
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}, nil
}

type Adapter struct {
	client       *resty.Client
	log          *zap.Logger
	clientID     string
	clientSecret string
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func (a *Adapter) Provider() string {
	return Provider
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidConfig
	}

	token, err := a.token(ctx)
	if err != nil {
		return paymentdomain.Order{}, err
	}

	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitRequest{{
			Amount: money{
				CurrencyCode: currency,
				Value:        req.Amount.StringFixed(2),
			},
			Description: req.Description,
			CustomID:    req.CustomID,
		}},
	}

	var out orderResponse
	var apiErr errorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", ulid.Make().String()).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders")
	if err != nil {
		return paymentdomain.Order{}, fmt.Errorf("%w: create order: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		return paymentdomain.Order{}, a.statusError("create order", resp.StatusCode(), apiErr)
	}
	if strings.TrimSpace(out.ID) == "" {
		return paymentdomain.Order{}, fmt.Errorf("%w: create order returned no id", paymentdomain.ErrInvalidResponse)
	}

	return paymentdomain.Order{
		ID:       out.ID,
		Status:   normalizeStatus(out.Status),
		Provider: Provider,
	}, nil
}

// CaptureOrder captures an approved order. The request id is derived from the
// order id so a retried capture replays the provider's original response.
func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.Capture{}, paymentdomain.ErrInvalidOrderID
	}

	token, err := a.token(ctx)
	if err != nil {
		return paymentdomain.Capture{}, err
	}

	var out orderResponse
	var apiErr errorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("PayPal-Request-Id", "capture-"+orderID).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders/{id}/capture")
	if err != nil {
		return paymentdomain.Capture{}, fmt.Errorf("%w: capture order: %v", paymentdomain.ErrUnavailable, err)
	}

	if resp.IsError() {
		switch {
		case apiErr.hasIssue(issueOrderNotApproved):
			return paymentdomain.Capture{
				OrderID:  orderID,
				Status:   paymentdomain.StatusPending,
				Provider: Provider,
			}, nil
		case apiErr.hasIssue(issueOrderAlreadyCaptured):
			a.log.Warn("order already captured, reading capture from order", zap.String("order_id", orderID))
			out, err := a.fetchOrder(ctx, token, orderID)
			if err != nil {
				return paymentdomain.Capture{}, err
			}
			return toCapture(orderID, out), nil
		default:
			return paymentdomain.Capture{}, a.statusError("capture order", resp.StatusCode(), apiErr)
		}
	}

	return toCapture(orderID, out), nil
}

// GetOrder reads an order without changing it.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (paymentdomain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidOrderID
	}
	token, err := a.token(ctx)
	if err != nil {
		return paymentdomain.Order{}, err
	}
	out, err := a.fetchOrder(ctx, token, orderID)
	if err != nil {
		return paymentdomain.Order{}, err
	}
	return paymentdomain.Order{
		ID:       orderID,
		Status:   normalizeStatus(out.Status),
		Provider: Provider,
		Terms:    out.terms(),
	}, nil
}

func (a *Adapter) fetchOrder(ctx context.Context, token string, orderID string) (orderResponse, error) {
	var out orderResponse
	var apiErr errorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v2/checkout/orders/{id}")
	if err != nil {
		return orderResponse{}, fmt.Errorf("%w: get order: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		return orderResponse{}, a.statusError("get order", resp.StatusCode(), apiErr)
	}
	return out, nil
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && a.now().Before(a.expiresAt) {
		return a.accessToken, nil
	}

	var out tokenResponse
	var apiErr errorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(a.clientID, a.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("%w: oauth token: %v", paymentdomain.ErrUnavailable, err)
	}
	if resp.IsError() {
		return "", a.statusError("oauth token", resp.StatusCode(), apiErr)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", fmt.Errorf("%w: oauth token missing", paymentdomain.ErrInvalidResponse)
	}

	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl > tokenSkew {
		ttl -= tokenSkew
	}
	a.accessToken = out.AccessToken
	a.expiresAt = a.now().Add(ttl)
	return a.accessToken, nil
}

func (a *Adapter) statusError(op string, status int, apiErr errorResponse) error {
	a.log.Warn("paypal request failed",
		zap.String("operation", op),
		zap.Int("status", status),
		zap.String("name", apiErr.Name),
		zap.String("debug_id", apiErr.DebugID),
	)
	if status >= 500 || status == 429 {
		return fmt.Errorf("%w: %s: status %d", paymentdomain.ErrUnavailable, op, status)
	}
	return fmt.Errorf("%w: %s: %s", paymentdomain.ErrRejected, op, apiErr.summary(status))
}

func toCapture(orderID string, out orderResponse) paymentdomain.Capture {
	capture := paymentdomain.Capture{
		OrderID:  orderID,
		Status:   normalizeStatus(out.Status),
		Provider: Provider,
		Terms:    out.terms(),
	}
	if len(out.PurchaseUnits) > 0 && len(out.PurchaseUnits[0].Payments.Captures) > 0 {
		capture.CaptureID = strings.TrimSpace(out.PurchaseUnits[0].Payments.Captures[0].ID)
	}
	return capture
}

func normalizeStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return paymentdomain.StatusCompleted
	case "CREATED", "SAVED":
		return paymentdomain.StatusCreated
	case "APPROVED", "PAYER_ACTION_REQUIRED":
		return paymentdomain.StatusPending
	case "VOIDED":
		return paymentdomain.StatusFailed
	default:
		return strings.ToUpper(strings.TrimSpace(status))
	}
}
