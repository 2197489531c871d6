package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tapntrack/internal/attendance"
	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

type sentMail struct{ to, token string }

type fakeMailer struct{ sent []sentMail }

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.sent = append(m.sent, sentMail{to, token})
	return nil
}

// spy records provider calls around a real Local.
type spy struct {
	*Local
	calls     []string
	failSave  bool
	failCreat error
}

func (s *spy) CreateAccount(ctx context.Context, email, password string) (string, error) {
	s.calls = append(s.calls, "create:"+email)
	if s.failCreat != nil {
		return "", s.failCreat
	}
	return s.Local.CreateAccount(ctx, email, password)
}

func (s *spy) SignIn(ctx context.Context, email, password string) (Session, error) {
	s.calls = append(s.calls, "signin:"+email)
	return s.Local.SignIn(ctx, email, password)
}

type failingUsers struct{ UserStore }

func (failingUsers) SaveUser(context.Context, model.User) error { return errors.New("write denied") }

type env struct {
	rs    *store.Memory
	repo  *attendance.Repository
	mail  *fakeMailer
	admin model.User
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	rs := store.NewMemory()
	repo := attendance.NewRepository(rs)
	mail := &fakeMailer{}
	admin, err := EnsureAdmin(ctx, newLocal(rs, mail), repo, "Root@School.test", "secret1", "Root")
	require.NoError(t, err)
	require.NoError(t, repo.SaveUser(ctx, model.User{UID: "t1", Name: "Tess", Email: "tess@school.test", Role: model.RoleTeacher, IsActive: true}))
	return env{rs: rs, repo: repo, mail: mail, admin: admin}
}

func newLocal(rs store.RecordStore, mail ResetMailer) *Local {
	return NewLocal(rs, mail).WithCost(bcrypt.MinCost)
}

func (e env) signedInAdmin(t *testing.T) *spy {
	t.Helper()
	p := &spy{Local: newLocal(e.rs, e.mail)}
	_, err := p.Local.SignIn(context.Background(), "root@school.test", "secret1")
	require.NoError(t, err)
	return p
}

func adminCred() *Credential {
	return &Credential{Email: "root@school.test", Password: "secret1"}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	e := newEnv(t)
	again, err := EnsureAdmin(context.Background(), newLocal(e.rs, nil), e.repo, "root@school.test", "secret1", "Root")
	require.NoError(t, err)
	assert.Equal(t, e.admin.UID, again.UID)
	assert.Equal(t, model.RoleAdmin, again.Role)
}

func TestCreateStudentRestoresAdminSessionAndWipesCredential(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.signedInAdmin(t)
	cred := adminCred()

	created, err := NewCreator(e.repo).CreateUser(ctx, p, cred, NewUser{
		Email: " Ann@School.test ", Name: "  Ann Lee ", Role: model.RoleStudent, TeacherID: "t1", RFIDTag: "04A1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"create:ann@school.test", "signin:root@school.test"}, p.calls)
	s, ok := p.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, e.admin.UID, s.UID, "admin session restored")
	assert.Equal(t, Credential{}, *cred)

	assert.Len(t, created.Password, GeneratedPasswordLen)
	u := created.User
	assert.Equal(t, "Ann Lee", u.Name)
	assert.Equal(t, "ann@school.test", u.Email)
	assert.Equal(t, "t1", u.TeacherOf())
	assert.True(t, u.IsActive)

	stored, err := e.repo.GetUser(ctx, u.UID)
	require.NoError(t, err)
	assert.Equal(t, u, stored)

	_, err = newLocal(e.rs, nil).SignIn(ctx, "ann@school.test", created.Password)
	assert.NoError(t, err, "generated password works")
}

func TestCreateTeacherDropsTeacherID(t *testing.T) {
	e := newEnv(t)
	created, err := NewCreator(e.repo).CreateUser(context.Background(), e.signedInAdmin(t), adminCred(), NewUser{
		Email: "new@school.test", Name: "Nia", Password: "hunter22", Role: model.RoleTeacher, TeacherID: "t1",
	})
	require.NoError(t, err)
	assert.Nil(t, created.User.TeacherID)
	assert.Empty(t, created.Password)
}

func TestCreateUserValidationHappensBeforeProvider(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name string
		in   NewUser
		fld  string
	}{
		{"bad email", NewUser{Email: "nope", Name: "Ann", Role: model.RoleTeacher}, "email"},
		{"short name", NewUser{Email: "a@b.co", Name: " A ", Role: model.RoleTeacher}, "name"},
		{"long name", NewUser{Email: "a@b.co", Name: string(make([]byte, 51)), Role: model.RoleTeacher}, "name"},
		{"short password", NewUser{Email: "a@b.co", Name: "Ann", Password: "12345", Role: model.RoleTeacher}, "password"},
		{"missing role", NewUser{Email: "a@b.co", Name: "Ann"}, "role"},
		{"unknown role", NewUser{Email: "a@b.co", Name: "Ann", Role: "JANITOR"}, "role"},
		{"student without teacher", NewUser{Email: "a@b.co", Name: "Ann", Role: model.RoleStudent}, "teacherId"},
		{"teacher does not exist", NewUser{Email: "a@b.co", Name: "Ann", Role: model.RoleStudent, TeacherID: "ghost"}, "teacherId"},
		{"teacher is not a teacher", NewUser{Email: "a@b.co", Name: "Ann", Role: model.RoleStudent, TeacherID: e.admin.UID}, "teacherId"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := e.signedInAdmin(t)
			cred := adminCred()
			_, err := NewCreator(e.repo).CreateUser(context.Background(), p, cred, c.in)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, c.fld, ve.Field)
			assert.Empty(t, p.calls)
			assert.Equal(t, Credential{}, *cred)
		})
	}
}

func TestCreateUserEmailInUse(t *testing.T) {
	e := newEnv(t)
	p := e.signedInAdmin(t)
	_, err := NewCreator(e.repo).CreateUser(context.Background(), p, adminCred(), NewUser{
		Email: "root@school.test", Name: "Dup", Role: model.RoleTeacher,
	})
	assert.ErrorIs(t, err, ErrEmailInUse)
	s, ok := p.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, e.admin.UID, s.UID)
	assert.Equal(t, []string{"create:root@school.test"}, p.calls, "session never switched, no re-sign-in")
}

func TestCreateUserWrongAdminPasswordCreatesNothing(t *testing.T) {
	e := newEnv(t)
	p := e.signedInAdmin(t)
	_, err := NewCreator(e.repo).CreateUser(context.Background(), p, &Credential{Email: "root@school.test", Password: "wrong1"}, NewUser{
		Email: "x@school.test", Name: "Xan", Role: model.RoleTeacher,
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, p.calls)
	_, err = e.repo.UserByEmail(context.Background(), "x@school.test")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserWriteFailureStillRestoresAdmin(t *testing.T) {
	e := newEnv(t)
	p := e.signedInAdmin(t)
	cred := adminCred()
	_, err := NewCreator(failingUsers{e.repo}).CreateUser(context.Background(), p, cred, NewUser{
		Email: "x@school.test", Name: "Xan", Role: model.RoleTeacher,
	})
	assert.EqualError(t, err, "write denied")
	s, ok := p.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, e.admin.UID, s.UID)
	assert.Equal(t, Credential{}, *cred)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := Login(ctx, newLocal(e.rs, nil), e.repo, "ROOT@school.test", "secret1")
	require.NoError(t, err)
	assert.Equal(t, e.admin.UID, u.UID)
	assert.Equal(t, 1, u.LoginCount)

	stored, err := e.repo.GetUser(ctx, u.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginCount)
	assert.NotZero(t, stored.LastLoginTime)

	_, err = Login(ctx, newLocal(e.rs, nil), e.repo, "root@school.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Login(ctx, newLocal(e.rs, nil), e.repo, "", "")
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoginRejectsInactive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.repo.UpdateUser(ctx, e.admin.UID, model.Document{"isActive": false}))
	p := newLocal(e.rs, nil)
	_, err := Login(ctx, p, e.repo, "root@school.test", "secret1")
	assert.ErrorIs(t, err, ErrInactive)
	_, ok := p.CurrentSession()
	assert.False(t, ok)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := newLocal(e.rs, nil)
	p.Resume(Session{UID: e.admin.UID, Email: "root@school.test"})

	cases := []struct {
		req PasswordChange
		fld string
	}{
		{PasswordChange{}, "currentPassword"},
		{PasswordChange{Current: "secret1", New: "abc", Confirm: "abc"}, "newPassword"},
		{PasswordChange{Current: "secret1", New: "secret1", Confirm: "secret1"}, "newPassword"},
		{PasswordChange{Current: "secret1", New: "secret2", Confirm: "secret3"}, "confirmPassword"},
		{PasswordChange{Current: "secret1", New: strings.Repeat("x", 73), Confirm: strings.Repeat("x", 73)}, "newPassword"},
	}
	for _, c := range cases {
		var ve *model.ValidationError
		require.ErrorAs(t, ChangePassword(ctx, p, c.req), &ve)
		assert.Equal(t, c.fld, ve.Field)
	}

	err := ChangePassword(ctx, p, PasswordChange{Current: "nope12", New: "secret2", Confirm: "secret2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, ChangePassword(ctx, p, PasswordChange{Current: "secret1", New: "secret2", Confirm: "secret2"}))
	_, err = newLocal(e.rs, nil).SignIn(ctx, "root@school.test", "secret2")
	assert.NoError(t, err)

	assert.ErrorIs(t, ChangePassword(ctx, newLocal(e.rs, nil), PasswordChange{Current: "secret2", New: "secret3", Confirm: "secret3"}), ErrNoSession)
}

func TestPasswordResetFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := newLocal(e.rs, e.mail)

	require.NoError(t, ForgotPassword(ctx, p, "nobody@school.test"))
	assert.Empty(t, e.mail.sent)

	var ve *model.ValidationError
	assert.ErrorAs(t, ForgotPassword(ctx, p, "not-an-email"), &ve)

	require.NoError(t, ForgotPassword(ctx, p, "Root@School.test"))
	require.Len(t, e.mail.sent, 1)
	assert.Equal(t, "root@school.test", e.mail.sent[0].to)

	assert.ErrorIs(t, p.ResetPassword(ctx, "bogus", "newpass1"), ErrInvalidResetToken)
	require.NoError(t, p.ResetPassword(ctx, e.mail.sent[0].token, "newpass1"))
	assert.ErrorIs(t, p.ResetPassword(ctx, e.mail.sent[0].token, "newpass2"), ErrInvalidResetToken, "tokens are single use")

	_, err := p.SignIn(ctx, "root@school.test", "newpass1")
	assert.NoError(t, err)
}

func TestPasswordResetSupersededAndConcurrent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := newLocal(e.rs, e.mail)

	require.NoError(t, ForgotPassword(ctx, p, "root@school.test"))
	require.NoError(t, ForgotPassword(ctx, p, "root@school.test"))
	require.Len(t, e.mail.sent, 2)
	assert.ErrorIs(t, p.ResetPassword(ctx, e.mail.sent[0].token, "newpass1"), ErrInvalidResetToken, "an older token is superseded")

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if newLocal(e.rs, nil).ResetPassword(ctx, e.mail.sent[1].token, fmt.Sprintf("racer-%d", i)) == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won.Load())
}

func TestOverlongPasswordIsValidationError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := newLocal(e.rs, e.mail)
	require.NoError(t, ForgotPassword(ctx, p, "root@school.test"))
	require.Len(t, e.mail.sent, 1)

	var ve *model.ValidationError
	require.ErrorAs(t, ResetPassword(ctx, p, PasswordReset{Token: e.mail.sent[0].token, Password: strings.Repeat("a", 73)}), &ve)
	assert.Equal(t, "password", ve.Field)

	// 40 three-byte runes pass the character limit but not bcrypt's.
	err := ResetPassword(ctx, p, PasswordReset{Token: e.mail.sent[0].token, Password: strings.Repeat("€", 40)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)

	require.NoError(t, ResetPassword(ctx, p, PasswordReset{Token: e.mail.sent[0].token, Password: "newpass1"}), "a rejected password leaves the token usable")
}

func TestSignUpDisabled(t *testing.T) {
	assert.ErrorIs(t, SignUp(context.Background()), ErrSignupDisabled)
}

func TestGeneratePassword(t *testing.T) {
	a, b := GeneratePassword(), GeneratePassword()
	assert.Len(t, a, GeneratedPasswordLen)
	assert.NotEqual(t, a, b)
}
