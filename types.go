package identity

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// EmailSender delivers transactional email. Implementations live in
// the mailer package; a nil or no-op sender makes verification and
// reset sends silently skip.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
	// Configured reports whether the sender can actually deliver mail.
	// Flows use this to decide between "send" and "skip" semantics.
	Configured() bool
}

// NoopEmailSender reports itself unconfigured so flows that depend
// on outgoing mail skip the send instead of failing.
type NoopEmailSender struct{}

var _ EmailSender = (*NoopEmailSender)(nil)

func (NoopEmailSender) SendEmail(context.Context, EmailMessage) error { return nil }

func (NoopEmailSender) Configured() bool { return false }

// RateLimiter bounds the frequency of sensitive flows. The value key
// is the caller dimension named by keyType, e.g. an IP or a user id.
type RateLimiter interface {
	Consume(ctx context.Context, bucket, keyType, value string) error
}

// EmailMessage is a provider-agnostic outbound email
type EmailMessage struct {
	To      string
	From    string
	Subject string
	HTML    string
	Text    string
}

// Connection carries request metadata from the HTTP boundary.
// Credential flows consume it for rate-limit keys, hook payloads, and
// redirect base URLs; it is otherwise opaque.
type Connection struct {
	IP             string
	BaseURL        string
	UserAgent      string
	AcceptLanguage string
	Referrer       string
}

// DefaultLogger returns the printf fallback logger
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
