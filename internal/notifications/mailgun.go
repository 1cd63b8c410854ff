package notifications

import (
	"context"
	"fmt"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v3"
)

type MailgunConfig struct {
	Domain     string   `json:"domain"`
	APIKey     string   `json:"api_key"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
}

func (c MailgunConfig) Enabled() bool {
	return c.Domain != "" && c.APIKey != "" && len(c.Recipients) > 0
}

// Mailgun emails notifications to the configured recipients.
type Mailgun struct {
	mg      mailgun.Mailgun
	cfg     MailgunConfig
	timeout time.Duration
}

func NewMailgun(cfg MailgunConfig) *Mailgun {
	return &Mailgun{
		mg:      mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		cfg:     cfg,
		timeout: 10 * time.Second,
	}
}

func (m *Mailgun) Send(title, message string) error {
	msg := m.mg.NewMessage(m.cfg.Sender, title, message, m.cfg.Recipients...)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	resp, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if id == "" {
		return fmt.Errorf("send mail: no message id: %s", resp)
	}
	return nil
}
