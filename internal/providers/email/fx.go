package email

import (
	"github.com/smallbiznis/lms/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Email.Provider {
	case config.EmailProviderSMTP:
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	case config.EmailProviderSendGrid:
		if cfg.Email.SendGridAPIKey != "" {
			return NewSendGrid(cfg.Email.SendGridAPIKey, cfg.Email.From)
		}
		log.Warn("sendgrid selected without api key, emails are disabled")
	}
	return NewNoOp(log)
}
