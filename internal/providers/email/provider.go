package email

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

var (
	ErrInvalidRecipient = errors.New("invalid_recipient")
	ErrInvalidSender    = errors.New("invalid_sender")
	ErrDeliveryFailed   = errors.New("email_delivery_failed")
)

type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	p.log.Debug("email suppressed", zap.String("subject", msg.Subject))
	return nil
}

func validate(msg Message) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(msg.To)); err != nil {
		return ErrInvalidRecipient
	}
	return nil
}

func parseSender(from string) (*mail.Address, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(from))
	if err != nil {
		return nil, ErrInvalidSender
	}
	return addr, nil
}
