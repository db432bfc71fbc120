// Package mailer delivers transactional email over SMTP. It
// implements the identity.EmailSender interface; an unconfigured
// environment yields a sender that reports itself unavailable so
// callers skip sends instead of failing.
package mailer

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"gopkg.in/gomail.v2"

	identity "github.com/goliatone/go-identity"
)

// Config holds SMTP settings, populated from environment variables.
type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// ConfigFromEnv reads the SMTP settings from the environment
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse mailer environment variables: %w", err)
	}
	return cfg, nil
}

// Configured reports whether enough settings are present to dial
func (c Config) Configured() bool {
	return c.Host != "" && c.Port != 0
}

// Mailer sends email through an SMTP relay using gomail
type Mailer struct {
	config Config
	dialer *gomail.Dialer
	logger identity.Logger
}

var _ identity.EmailSender = (*Mailer)(nil)

type Option func(*Mailer)

func WithLogger(l identity.Logger) Option {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

// New builds a Mailer from the given config. The dialer is only
// created when the config is complete.
func New(cfg Config, opts ...Option) *Mailer {
	m := &Mailer{config: cfg}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if cfg.Configured() {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}

	return m
}

// NewFromEnv builds a Mailer from SMTP_* environment variables
func NewFromEnv(opts ...Option) (*Mailer, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// Configured implements identity.EmailSender
func (m *Mailer) Configured() bool {
	return m.dialer != nil
}

// SendEmail delivers one message. Context cancellation is honored
// before dialing; gomail itself does not take a context.
func (m *Mailer) SendEmail(ctx context.Context, email identity.EmailMessage) error {
	if !m.Configured() {
		return fmt.Errorf("mailer is not configured")
	}

	if email.To == "" {
		return fmt.Errorf("no recipient specified")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	from := email.From
	if from == "" {
		from = m.config.From
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)

	if email.HTML != "" {
		msg.SetBody("text/html", email.HTML)
		if email.Text != "" {
			msg.AddAlternative("text/plain", email.Text)
		}
	} else {
		msg.SetBody("text/plain", email.Text)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", email.To, err)
	}

	return nil
}
