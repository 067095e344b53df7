package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type SendGridConfig struct {
	Enabled   bool
	APIKey    string
	FromEmail string
	// Host overrides the API host; empty means the public endpoint.
	Host string
}

type SendGrid struct {
	cfg SendGridConfig
}

func NewSendGrid(cfg SendGridConfig) *SendGrid {
	if cfg.Host == "" {
		cfg.Host = sendGridHost
	}
	return &SendGrid{cfg: cfg}
}

func (s *SendGrid) Name() string  { return "sendgrid" }
func (s *SendGrid) Enabled() bool { return s.cfg.Enabled }

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if s.cfg.APIKey == "" || s.cfg.FromEmail == "" {
		return fmt.Errorf("sendgrid api key or sender missing: %w", ErrUnconfigured)
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("", s.cfg.FromEmail),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Text,
		msg.HTML,
	)

	request := sendgrid.GetRequest(s.cfg.APIKey, "/v3/mail/send", s.cfg.Host)
	request.Method = "POST"
	request.Body = sgmail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid status %d", resp.StatusCode)
	}
	return nil
}
