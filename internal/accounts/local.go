package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

// ResetMailer delivers password reset tokens.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

// Local is a Provider keeping bcrypt hashes in the credentials
// collection, one document per lower-cased email.
type Local struct {
	rs       store.RecordStore
	mail     ResetMailer
	cost     int
	resetTTL time.Duration

	mu      sync.Mutex
	session *Session
}

// NewLocal returns a signed-out provider. mail may be nil.
func NewLocal(rs store.RecordStore, mail ResetMailer) *Local {
	return &Local{rs: rs, mail: mail, cost: bcrypt.DefaultCost, resetTTL: time.Hour}
}

// WithCost sets the bcrypt cost.
func (l *Local) WithCost(cost int) *Local {
	l.cost = cost
	return l
}

// Resume restores a session established earlier, e.g. from a bearer token.
func (l *Local) Resume(s Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = &s
}

func (l *Local) setSession(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = s
}

func (l *Local) CurrentSession() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return Session{}, false
	}
	return *l.session, true
}

func (l *Local) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if _, err := l.rs.Get(ctx, store.Credentials, email); err == nil {
		return "", ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("lookup credentials: %w", err)
	}
	hash, err := l.hash(password)
	if err != nil {
		return "", err
	}
	uid := uuid.NewString()
	if err := l.rs.Set(ctx, store.Credentials, email, model.Document{
		"uid":       uid,
		"email":     email,
		"hash":      string(hash),
		"createdAt": model.NowMillis(),
	}); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}
	l.setSession(&Session{UID: uid, Email: email})
	return uid, nil
}

// hash bcrypts a password. bcrypt reads at most 72 bytes, which multi-byte
// passwords can exceed within the character limit.
func (l *Local) hash(password string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, model.Invalid("password", "must be at most 72 bytes")
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return h, nil
}

func (l *Local) verify(ctx context.Context, email, password string) (model.Document, error) {
	doc, err := l.rs.Get(ctx, store.Credentials, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(doc.String("hash", "")), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return doc, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	doc, err := l.verify(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	s := Session{UID: doc.String("uid", ""), Email: doc.String("email", "")}
	l.setSession(&s)
	return s, nil
}

// SendPasswordReset mails a single-use token. Unknown addresses succeed
// silently so the endpoint does not reveal which emails exist.
func (l *Local) SendPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if _, err := l.rs.Get(ctx, store.Credentials, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("password reset requested for unknown address")
			return nil
		}
		return fmt.Errorf("lookup credentials: %w", err)
	}
	token := uuid.NewString()
	expires := time.Now().Add(l.resetTTL).UnixMilli()
	if err := l.rs.Set(ctx, store.ResetTokens, token, model.Document{
		"email":     email,
		"expiresAt": expires,
	}); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	// Only the latest token per account is honoured.
	if err := l.rs.UpdateFields(ctx, store.Credentials, email, model.Document{"resetToken": token}); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	if l.mail == nil {
		return nil
	}
	return l.mail.SendPasswordReset(ctx, email, token)
}

// ResetPassword sets a new password using a mailed token. The token is
// taken out of the store before anything else, so it works once even
// under concurrent use.
func (l *Local) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	hash, err := l.hash(newPassword)
	if err != nil {
		return err
	}
	t, err := l.rs.Take(ctx, store.ResetTokens, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if t.Int64("expiresAt", 0) < model.NowMillis() {
		return ErrInvalidResetToken
	}
	email := t.String("email", "")
	doc, err := l.rs.Get(ctx, store.Credentials, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("lookup credentials: %w", err)
	}
	if doc.String("resetToken", "") != token {
		return ErrInvalidResetToken
	}
	return l.rs.UpdateFields(ctx, store.Credentials, email, model.Document{
		"hash":       string(hash),
		"resetToken": nil,
	})
}

func (l *Local) Reauthenticate(ctx context.Context, cred Credential) error {
	s, ok := l.CurrentSession()
	if !ok {
		return ErrNoSession
	}
	if NormalizeEmail(cred.Email) != s.Email {
		return ErrInvalidCredentials
	}
	_, err := l.verify(ctx, cred.Email, cred.Password)
	return err
}

func (l *Local) UpdatePassword(ctx context.Context, newPassword string) error {
	s, ok := l.CurrentSession()
	if !ok {
		return ErrNoSession
	}
	hash, err := l.hash(newPassword)
	if err != nil {
		return err
	}
	if err := l.rs.UpdateFields(ctx, store.Credentials, s.Email, model.Document{"hash": string(hash)}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (l *Local) SignOut(context.Context) error {
	l.setSession(nil)
	return nil
}
