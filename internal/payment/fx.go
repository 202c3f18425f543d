package payment

import (
	"github.com/smallbiznis/lms/internal/config"
	"github.com/smallbiznis/lms/internal/payment/adapters"
	"github.com/smallbiznis/lms/internal/payment/adapters/paypal"
	"github.com/smallbiznis/lms/internal/payment/adapters/stripe"
	"github.com/smallbiznis/lms/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.gateway",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			paypal.NewFactory(),
			stripe.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
)

// NewGateway builds the adapter selected by configuration.
func NewGateway(cfg config.Config, log *zap.Logger, registry *adapters.Registry) (domain.Gateway, error) {
	gateway, err := registry.NewAdapter(cfg.Payment.Gateway, domain.AdapterConfig{
		Log:    log,
		Config: AdapterSettings(cfg.Payment),
	})
	if err != nil {
		return nil, err
	}
	log.Info("payment gateway configured", zap.String("provider", gateway.Provider()))
	return gateway, nil
}

// AdapterSettings flattens the typed payment config into the adapter config map.
func AdapterSettings(cfg config.PaymentConfig) map[string]any {
	settings := map[string]any{
		"timeout": cfg.RequestTimeout,
	}
	switch cfg.Gateway {
	case config.GatewayPayPal:
		settings["client_id"] = cfg.PayPalClientID
		settings["client_secret"] = cfg.PayPalClientSecret
		settings["environment"] = cfg.PayPalEnvironment
		settings["base_url"] = cfg.PayPalBaseURL
	case config.GatewayStripe:
		settings["secret_key"] = cfg.StripeSecretKey
		settings["base_url"] = cfg.StripeBaseURL
	}
	return settings
}
