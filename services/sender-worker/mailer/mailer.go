package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/Mutter0815/blockmail/pkg/config"
	"github.com/Mutter0815/blockmail/pkg/logx"
)

// Message is one rendered email for one recipient.
type Message struct {
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// New picks the mailer configured by MAILER.
func New(cfg config.WorkerConfig) Mailer {
	if cfg.MailerMode == "smtp" {
		return NewSMTPMailer(cfg.SMTP)
	}
	return LogMailer{}
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) build(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithNoDefaultUserAgent())

	fromName := m.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}
	if err := msg.FromFormat(fromName, s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	if m.Text != "" {
		msg.AddAlternativeString(mail.TypeTextPlain, m.Text)
	}
	return msg, nil
}

func (s *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	// Unauthenticated relays are allowed when no credentials are set.
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
		)
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	msg, err := s.build(m)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Message) error {
	logx.Named("mailer").Infow("mail_logged",
		"to", m.To,
		"from_name", m.FromName,
		"subject", m.Subject,
		"html_bytes", len(m.HTML),
		"text", m.Text,
	)
	return nil
}
