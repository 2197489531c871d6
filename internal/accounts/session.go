package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

// Login signs in through p and loads the caller's user record. Inactive
// accounts are signed straight back out.
func Login(ctx context.Context, p Provider, users UserStore, email, password string) (model.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return model.User{}, model.Invalid("", "email and password are required")
	}
	s, err := p.SignIn(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	u, err := users.GetUser(ctx, s.UID)
	if err != nil {
		_ = p.SignOut(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, ErrInvalidCredentials
		}
		return model.User{}, err
	}
	if !u.IsActive {
		_ = p.SignOut(ctx)
		return model.User{}, ErrInactive
	}
	if err := users.RecordLogin(ctx, u, time.Now()); err != nil {
		log.Printf("record login for %s failed: %v", u.UID, err)
	} else {
		u.LoginCount++
	}
	return u, nil
}

// PasswordChange is the change-password form.
type PasswordChange struct {
	Current string `json:"currentPassword" validate:"required"`
	New     string `json:"newPassword" validate:"required,min=6,max=72,nefield=Current"`
	Confirm string `json:"confirmPassword" validate:"required,eqfield=New"`
}

// ChangePassword re-authenticates the signed-in account of p with the
// current password, then sets the new one.
func ChangePassword(ctx context.Context, p Provider, req PasswordChange) error {
	if err := check(req); err != nil {
		return err
	}
	s, ok := p.CurrentSession()
	if !ok {
		return ErrNoSession
	}
	cred := Credential{Email: s.Email, Password: req.Current}
	defer cred.Wipe()
	if err := p.Reauthenticate(ctx, cred); err != nil {
		return err
	}
	return p.UpdatePassword(ctx, req.New)
}

// ForgotPassword validates the address and asks p to send a reset mail.
func ForgotPassword(ctx context.Context, p Provider, email string) error {
	req := struct {
		Email string `json:"email" validate:"required,email"`
	}{Email: NormalizeEmail(email)}
	if err := check(req); err != nil {
		return err
	}
	return p.SendPasswordReset(ctx, req.Email)
}

// SignUp always fails: accounts are created by administrators.
func SignUp(context.Context) error { return ErrSignupDisabled }

// EnsureAdmin makes sure an ADMIN account exists for email, creating the
// credentials and user record on first start.
func EnsureAdmin(ctx context.Context, p Provider, users UserStore, email, password, name string) (model.User, error) {
	email = NormalizeEmail(email)
	if u, err := users.UserByEmail(ctx, email); err == nil {
		return u, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, err
	}

	uid, err := p.CreateAccount(ctx, email, password)
	if errors.Is(err, ErrEmailInUse) {
		s, serr := p.SignIn(ctx, email, password)
		if serr != nil {
			return model.User{}, fmt.Errorf("admin credentials exist without a user record: %w", serr)
		}
		uid, err = s.UID, nil
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create admin account: %w", err)
	}
	if name == "" {
		name = "Administrator"
	}
	u := model.User{
		UID:       uid,
		Email:     email,
		Name:      name,
		Role:      model.RoleAdmin,
		IsActive:  true,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := users.SaveUser(ctx, u); err != nil {
		return model.User{}, err
	}
	_ = p.SignOut(ctx)
	return u, nil
}

// Resetter is implemented by providers that accept mailed reset tokens.
type Resetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PasswordReset is the form behind a mailed reset link.
type PasswordReset struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// ResetPassword validates req and applies it through p.
func ResetPassword(ctx context.Context, p Provider, req PasswordReset) error {
	if err := check(req); err != nil {
		return err
	}
	r, ok := p.(Resetter)
	if !ok {
		return errors.New("provider does not support reset tokens")
	}
	return r.ResetPassword(ctx, req.Token, req.Password)
}
