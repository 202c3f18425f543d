package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/lms/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

var ErrPostFailed = errors.New("slack_post_failed")

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	client *resty.Client
	url    string
}

func NewWebhook(url string) *WebhookProvider {
	return &WebhookProvider{
		client: resty.New().SetTimeout(5 * time.Second),
		url:    url,
	}
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	body := map[string]string{"text": message}
	if channelID = strings.TrimSpace(channelID); channelID != "" {
		body["channel"] = channelID
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPostFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrPostFailed, resp.StatusCode())
	}
	return nil
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Slack.WebhookURL == "" {
		log.Info("slack webhook not configured, ops alerts are log-only")
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Slack.WebhookURL)
}
