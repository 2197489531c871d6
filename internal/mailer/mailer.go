// Package mailer sends transactional mail over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings. An empty Host disables delivery: messages
// are logged instead.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ResetURL is the page that accepts a reset token, e.g.
	// https://admin.example.com/reset-password
	ResetURL string
}

// Sender is the subset of gomail.Dialer used here.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP delivers mail through a gomail dialer.
type SMTP struct {
	cfg    Config
	sender Sender
}

// New builds a mailer from cfg.
func New(cfg Config) *SMTP {
	m := &SMTP{cfg: cfg}
	if cfg.Host != "" {
		m.sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m
}

// WithSender replaces the dialer, mainly for tests.
func (m *SMTP) WithSender(s Sender) *SMTP {
	m.sender = s
	return m
}

// ResetLink is the URL mailed for token.
func (m *SMTP) ResetLink(token string) string {
	return m.cfg.ResetURL + "?token=" + url.QueryEscape(token)
}

// PasswordResetMessage builds the reset mail for token.
func (m *SMTP) PasswordResetMessage(to, token string) *gomail.Message {
	link := m.ResetLink(token)
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Reset your TapNTrack password")
	msg.SetBody("text/plain", fmt.Sprintf(
		"A password reset was requested for your account.\n\nOpen %s to choose a new password. The link expires in one hour.\n\nIf you did not ask for this, ignore this message.\n", link))
	msg.AddAlternative("text/html", fmt.Sprintf(
		`<p>A password reset was requested for your account.</p><p><a href="%s">Choose a new password</a>. The link expires in one hour.</p><p>If you did not ask for this, ignore this message.</p>`, link))
	return msg
}

// SendPasswordReset mails a reset link for token to the given address.
func (m *SMTP) SendPasswordReset(ctx context.Context, to, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.sender == nil {
		log.Printf("mailer disabled, password reset for %s not sent", to)
		return nil
	}
	if err := m.sender.DialAndSend(m.PasswordResetMessage(to, token)); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}
