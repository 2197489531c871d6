package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

// UserStore is the slice of the user repository accounts needs.
type UserStore interface {
	GetUser(ctx context.Context, uid string) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	SaveUser(ctx context.Context, u model.User) error
	RecordLogin(ctx context.Context, u model.User, at time.Time) error
}

// NewUser is the admin's account creation form.
type NewUser struct {
	Email     string     `json:"email" validate:"required,email"`
	Name      string     `json:"name"`
	Password  string     `json:"password" validate:"omitempty,min=6,max=72"`
	Role      model.Role `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	TeacherID string     `json:"teacherId" validate:"required_if=Role STUDENT"`
	RFIDTag   string     `json:"rfidTag"`
}

// GeneratedPasswordLen is the length of passwords issued when the admin
// leaves the field empty.
const GeneratedPasswordLen = 16

// GeneratePassword returns a random password of GeneratedPasswordLen
// characters.
func GeneratePassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:GeneratedPasswordLen]
}

// Created is the result of a successful CreateUser.
type Created struct {
	User model.User `json:"user"`
	// Password is set only when it was generated.
	Password string `json:"password,omitempty"`
}

// Creator runs the admin-only account creation flow.
type Creator struct {
	users UserStore
	now   func() time.Time
}

// NewCreator returns a Creator writing user records to users.
func NewCreator(users UserStore) *Creator {
	return &Creator{users: users, now: time.Now}
}

// Validate checks in without touching the provider. A student's teacher
// must exist and hold the TEACHER role.
func (c *Creator) Validate(ctx context.Context, in NewUser) (NewUser, error) {
	in.Email = NormalizeEmail(in.Email)
	in.TeacherID = strings.TrimSpace(in.TeacherID)
	in.RFIDTag = strings.TrimSpace(in.RFIDTag)
	name, err := model.CleanName(in.Name)
	if err != nil {
		return in, err
	}
	in.Name = name
	if err := check(in); err != nil {
		return in, err
	}
	if in.Role != model.RoleStudent {
		in.TeacherID = ""
		return in, nil
	}
	t, err := c.users.GetUser(ctx, in.TeacherID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.Role != model.RoleTeacher) {
		return in, model.Invalid("teacherId", "must reference an existing teacher")
	}
	if err != nil {
		return in, err
	}
	return in, nil
}

// CreateUser creates an account and its user record on behalf of the
// signed-in admin. Creating the account switches p to the new account's
// session, so the admin is signed back in with admin before returning.
// admin is wiped on every path.
func (c *Creator) CreateUser(ctx context.Context, p Provider, admin *Credential, in NewUser) (Created, error) {
	defer admin.Wipe()

	in, err := c.Validate(ctx, in)
	if err != nil {
		return Created{}, err
	}
	// The admin is signed back in with admin, so check it before creating
	// anything.
	if err := p.Reauthenticate(ctx, *admin); err != nil {
		return Created{}, err
	}
	var generated string
	if in.Password == "" {
		generated = GeneratePassword()
		in.Password = generated
	}
	adminSession, _ := p.CurrentSession()

	uid, err := p.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		c.restore(ctx, p, adminSession, admin)
		return Created{}, fmt.Errorf("create account: %w", err)
	}

	u := model.User{
		UID:       uid,
		Email:     in.Email,
		Name:      in.Name,
		Role:      in.Role,
		RFIDTag:   in.RFIDTag,
		IsActive:  true,
		CreatedAt: c.now().UnixMilli(),
	}
	if in.Role == model.RoleStudent {
		teacherID := in.TeacherID
		u.TeacherID = &teacherID
	}
	if err := c.users.SaveUser(ctx, u); err != nil {
		c.restore(ctx, p, adminSession, admin)
		return Created{}, err
	}

	if _, err := p.SignIn(ctx, admin.Email, admin.Password); err != nil {
		return Created{User: u, Password: generated}, fmt.Errorf("account created but admin session not restored: %w", err)
	}
	return Created{User: u, Password: generated}, nil
}

// restore signs the admin back in after a failed step. Its own failure is
// only logged so the original error reaches the caller.
func (c *Creator) restore(ctx context.Context, p Provider, adminSession Session, admin *Credential) {
	if cur, ok := p.CurrentSession(); ok && cur.UID == adminSession.UID && adminSession.UID != "" {
		return
	}
	if _, err := p.SignIn(ctx, admin.Email, admin.Password); err != nil {
		log.Printf("restore admin session failed: %v", err)
	}
}
