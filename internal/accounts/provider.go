// Package accounts wraps the authentication provider: sign-in, password
// management and the admin-only account creation flow.
package accounts

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email already in use")
	ErrSignupDisabled     = errors.New("self-service sign-up is disabled")
	ErrNoSession          = errors.New("not signed in")
	ErrInactive           = errors.New("account is inactive")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// Credential is an email/password pair held only as long as a flow needs it.
type Credential struct {
	Email    string
	Password string
}

// Wipe clears the credential in place.
func (c *Credential) Wipe() {
	c.Email = ""
	c.Password = ""
}

// Session identifies the signed-in account of a provider.
type Session struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Provider is a stateful authentication client. CreateAccount signs the
// new account in, replacing whatever session was current.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	Reauthenticate(ctx context.Context, cred Credential) error
	UpdatePassword(ctx context.Context, newPassword string) error
	SignOut(ctx context.Context) error
	CurrentSession() (Session, bool)
}

// Factory builds a provider for one request, resuming s when non-nil.
type Factory func(s *Session) Provider

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
