package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig wires an SMTP relay for self-hosted deployments that do not
// use a transactional email API.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender sends email through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
