package payment

import (
	"testing"
	"time"

	"github.com/smallbiznis/lms/internal/config"
	"github.com/smallbiznis/lms/internal/payment/adapters"
	"github.com/smallbiznis/lms/internal/payment/adapters/paypal"
	"github.com/smallbiznis/lms/internal/payment/adapters/stripe"
	"github.com/smallbiznis/lms/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewGatewaySelectsProvider(t *testing.T) {
	registry := adapters.NewRegistry(paypal.NewFactory(), stripe.NewFactory())

	gw, err := NewGateway(config.Config{Payment: config.PaymentConfig{
		Gateway:         config.GatewayStripe,
		StripeSecretKey: "sk_test",
	}}, zap.NewNop(), registry)
	require.NoError(t, err)
	assert.Equal(t, stripe.Provider, gw.Provider())

	_, err = NewGateway(config.Config{Payment: config.PaymentConfig{Gateway: "square"}}, zap.NewNop(), registry)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	_, err = NewGateway(config.Config{Payment: config.PaymentConfig{Gateway: config.GatewayPayPal}}, zap.NewNop(), registry)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAdapterSettingsPerGateway(t *testing.T) {
	paypalSettings := adapters.Settings(AdapterSettings(config.PaymentConfig{
		Gateway:            config.GatewayPayPal,
		PayPalClientID:     "id",
		PayPalClientSecret: "secret",
		PayPalEnvironment:  "live",
		StripeSecretKey:    "sk_ignored",
		RequestTimeout:     3 * time.Second,
	}))
	assert.Equal(t, "id", paypalSettings.String("client_id"))
	assert.Equal(t, "live", paypalSettings.String("environment"))
	assert.Empty(t, paypalSettings.String("secret_key"))
	assert.Equal(t, 3*time.Second, paypalSettings.Duration("timeout", 0))

	stripeSettings := adapters.Settings(AdapterSettings(config.PaymentConfig{
		Gateway:         config.GatewayStripe,
		StripeSecretKey: "sk_test",
	}))
	assert.Equal(t, "sk_test", stripeSettings.String("secret_key"))
	assert.Empty(t, stripeSettings.String("client_id"))
}
