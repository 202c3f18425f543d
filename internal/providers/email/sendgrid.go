package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type SendGridProvider struct {
	apiKey string
	host   string
	from   string
}

func NewSendGrid(apiKey string, from string) *SendGridProvider {
	return &SendGridProvider{apiKey: apiKey, host: sendGridHost, from: from}
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	sender, err := parseSender(p.from)
	if err != nil {
		return err
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(sender.Name, sender.Address),
		msg.Subject,
		mail.NewEmail(msg.ToName, strings.TrimSpace(msg.To)),
		msg.Body,
		"",
	)

	request := sendgrid.GetRequest(p.apiKey, "/v3/mail/send", p.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
