package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Normalized gateway statuses. Providers may also surface their raw value.
const (
	StatusCreated   = "CREATED"
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusFailed    = "FAILED"
)

type OrderRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	// CustomID is echoed back by the provider and ties the order to a student and course.
	CustomID string
}

// Terms are what the provider holds for an order: the amount, its currency
// and the CustomID sent at creation. Fields the provider did not return are
// left zero.
type Terms struct {
	Amount   decimal.Decimal
	Currency string
	CustomID string
}

type Order struct {
	ID       string
	Status   string
	Provider string
	Terms
}

type Capture struct {
	OrderID   string
	Status    string
	CaptureID string
	Provider  string
	Terms
}

func (c Capture) Completed() bool { return c.Status == StatusCompleted }

// Gateway creates, inspects and captures one-off payment orders.
type Gateway interface {
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	CaptureOrder(ctx context.Context, orderID string) (Capture, error)
}

type AdapterConfig struct {
	Log    *zap.Logger
	Config map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidOrderID   = errors.New("invalid_order_id")
	ErrUnavailable      = errors.New("payment_gateway_unavailable")
	ErrRejected         = errors.New("payment_gateway_rejected")
	ErrInvalidResponse  = errors.New("payment_gateway_invalid_response")
)
