package email

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	// HTML is optional; Text is always sent as the plain alternative.
	HTML string
	Text string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// SSL selects implicit TLS (port 465). STARTTLS is used when offered otherwise.
	SSL bool
	// InsecureSkipVerify is only for local relays such as Mailpit.
	InsecureSkipVerify bool
}

// SMTPSender delivers mail through a relay with gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@easybook.local"
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	d := gomail.NewDialer(strings.TrimSpace(cfg.Host), port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	if cfg.Username == "" {
		d.Auth = nil
	}
	return &SMTPSender{dialer: d, from: from, name: strings.TrimSpace(cfg.FromName)}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	return s.dialer.DialAndSend(m)
}

func (s *SMTPSender) build(msg Message) (*gomail.Message, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, errors.New("email: recipient is required")
	}
	m := gomail.NewMessage()
	if s.name != "" {
		m.SetAddressHeader("From", s.from, s.name)
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m, nil
}

// LogSender writes messages to the log instead of delivering them.
// Used when no SMTP relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email not sent (smtp disabled)", "to", msg.To, "subject", msg.Subject)
	return nil
}
