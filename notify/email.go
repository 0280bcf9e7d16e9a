package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"

	gomail "gopkg.in/mail.v2"
)

// Sender delivers a rendered digest.
type Sender interface {
	Send(msg *RenderedMessage) error
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg  config.SMTPConfig
	dial func(config.SMTPConfig) mailDialer
}

// NewEmailSender creates a sender with the given SMTP configuration.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg, dial: newDialer}
}

func newDialer(cfg config.SMTPConfig) mailDialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 10 * time.Second
	return d
}

// Send delivers an email with HTML body and plain text fallback. It is a no-op when SMTP is
// not configured.
func (s *EmailSender) Send(msg *RenderedMessage) error {
	if !s.cfg.Enabled() {
		return nil
	}

	m := s.message(msg)
	if err := s.dial(s.cfg).DialAndSend(m); err != nil {
		slog.Error("digest email failed",
			slog.String("to", strings.Join(s.cfg.To, ",")),
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
		return fmt.Errorf("send digest: %w", err)
	}

	slog.Info("digest email sent", slog.String("subject", msg.Subject), slog.Int("recipients", len(s.cfg.To)))
	return nil
}

func (s *EmailSender) message(msg *RenderedMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
