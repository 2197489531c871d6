package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tapntrack/internal/accounts"
	"tapntrack/internal/attendance"
	"tapntrack/internal/bulk"
	"tapntrack/internal/config"
	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

type sentMail struct{ to, token string }

type fakeMailer struct{ sent []sentMail }

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.sent = append(m.sent, sentMail{to, token})
	return nil
}

type harness struct {
	t       *testing.T
	router  *gin.Engine
	repo    *attendance.Repository
	mail    *fakeMailer
	now     time.Time
	teacher model.User
}

func strp(s string) *string { return &s }

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	rs := store.NewMemory()
	repo := attendance.NewRepository(rs)
	h := &harness{t: t, repo: repo, mail: &fakeMailer{}, now: time.Date(2025, 3, 5, 7, 30, 0, 0, time.Local)}

	factory := func(s *accounts.Session) accounts.Provider {
		p := accounts.NewLocal(rs, h.mail).WithCost(bcrypt.MinCost)
		if s != nil {
			p.Resume(*s)
		}
		return p
	}
	_, err := accounts.EnsureAdmin(ctx, factory(nil), repo, "root@school.test", "secret1", "Root")
	require.NoError(t, err)

	creator := accounts.NewCreator(repo)
	p := factory(nil)
	_, err = p.SignIn(ctx, "root@school.test", "secret1")
	require.NoError(t, err)
	created, err := creator.CreateUser(ctx, p, &accounts.Credential{Email: "root@school.test", Password: "secret1"}, accounts.NewUser{
		Email: "tess@school.test", Name: "Tess", Password: "teach1", Role: model.RoleTeacher,
	})
	require.NoError(t, err)
	h.teacher = created.User

	for _, u := range []model.User{
		{UID: "s1", Name: "Ann", Email: "ann@school.test", Role: model.RoleStudent, TeacherID: strp(h.teacher.UID), RFIDTag: "04A1", IsActive: true},
		{UID: "s2", Name: "Ben", Email: "ben@school.test", Role: model.RoleStudent, TeacherID: strp("other"), RFIDTag: "04B2", IsActive: true},
		{UID: "s3", Name: "Cyd", Email: "cyd@school.test", Role: model.RoleStudent, TeacherID: strp(h.teacher.UID), RFIDTag: "04C3", IsActive: false},
	} {
		require.NoError(t, repo.SaveUser(ctx, u))
	}

	svc := attendance.NewService(repo, attendance.Options{
		Bulk: bulk.New(4, time.Second),
		Now:  func() time.Time { return h.now },
	})
	cfg := config.App{
		JWTIssuer:       "tapntrack",
		JWTSigningKey:   "test-signing-key",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		DeviceKey:       "reg-key",
		RateLimitPerMin: 10000,
		CORSOrigins:     "*",
	}
	h.router = New(Deps{
		Config:   cfg,
		Service:  svc,
		Creator:  creator,
		Accounts: factory,
		Health:   func(context.Context) map[string]bool { return map[string]bool{"store": true} },
	}).Router()
	return h
}

func (h *harness) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decode(h.t, w)["access_token"].(string)
}

func (h *harness) device(id string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/devices/register", "", gin.H{"device_id": id}, deviceKeyHeader, "reg-key")
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(h.t, w)["access_token"].(string)
}

func (h *harness) seedTrack(tr model.Track) {
	h.t.Helper()
	tr.Normalize()
	require.NoError(h.t, h.repo.SaveTrack(context.Background(), tr))
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func TestHealthzAndSignup(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["store"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = h.do(http.MethodPost, "/v1/auth/signup", "", gin.H{"email": "a@b.co"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginAndRefreshRotation(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "root@school.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "ROOT@school.test", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)
	assert.EqualValues(t, 1, body["user"].(map[string]any)["loginCount"])

	w = h.do(http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root@school.test", decode(t, w)["email"])

	w = h.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")

	w = h.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["access_token"])

	w = h.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are single use")
}

func TestTokenKindsGuardRoutes(t *testing.T) {
	h := newHarness(t)
	dev := h.device("gate-1")
	admin := h.login("root@school.test", "secret1")

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/logs", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/logs", dev, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/v1/taps", admin, gin.H{"rfid_tag": "04A1"}).Code)
}

func TestDeviceRegistrationAndTaps(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/devices/register", "", gin.H{"device_id": "gate-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	dev := h.device("gate-1")

	w = h.do(http.MethodPost, "/v1/taps", dev, gin.H{"rfid_tag": "04A1", "location": "Main Gate"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	in := decode(t, w)
	assert.Equal(t, "in", in["action"])
	track := in["track"].(map[string]any)
	assert.Equal(t, "s1", track["userId"])
	assert.Equal(t, "PRESENT", track["status"])

	h.now = h.now.Add(20 * time.Second)
	w = h.do(http.MethodPost, "/v1/taps", dev, gin.H{"rfid_tag": "04A1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["action"])

	h.now = h.now.Add(3 * time.Hour)
	w = h.do(http.MethodPost, "/v1/taps", dev, gin.H{"rfid_tag": "04A1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "out", decode(t, w)["action"])

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/taps", dev, gin.H{"rfid_tag": "FFFF"}).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/v1/taps", dev, gin.H{"rfid_tag": "04C3"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/taps", dev, gin.H{}).Code)
}

func TestLogListingIsScopedAndFiltered(t *testing.T) {
	h := newHarness(t)
	day := h.now
	h.seedTrack(model.Track{ID: "a", UserID: "s1", StudentName: "Ann", TeacherID: h.teacher.UID, TimeIn: ms(day), Status: model.StatusPresent})
	h.seedTrack(model.Track{ID: "b", UserID: "s1", StudentName: "Ann", TeacherID: h.teacher.UID, TimeIn: ms(day.AddDate(0, 0, -1)), Status: model.StatusLate})
	h.seedTrack(model.Track{ID: "c", UserID: "s2", StudentName: "Ben", TeacherID: "other", TimeIn: ms(day), Status: model.StatusLate})

	admin := h.login("root@school.test", "secret1")
	teacher := h.login("tess@school.test", "teach1")

	w := h.do(http.MethodGet, "/v1/logs", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total"])

	w = h.do(http.MethodGet, "/v1/logs?status=LATE", admin, nil)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = h.do(http.MethodGet, "/v1/logs?range=today", admin, nil)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = h.do(http.MethodGet, "/v1/logs", teacher, nil)
	assert.EqualValues(t, 2, decode(t, w)["total"], "teacher sees only their students")

	w = h.do(http.MethodGet, "/v1/logs/summary?range=today", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode(t, w)
	assert.EqualValues(t, 2, sum["total"])
	assert.EqualValues(t, 1, sum["present"])
	assert.EqualValues(t, 1, sum["late"])

	w = h.do(http.MethodGet, "/v1/logs?range=decade", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "range", decode(t, w)["field"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/logs?status=MAYBE", admin, nil).Code)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/logs/c", teacher, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/logs/zzz", admin, nil).Code)
}

func TestUpdateAndDeleteLog(t *testing.T) {
	h := newHarness(t)
	h.seedTrack(model.Track{ID: "a", UserID: "s1", StudentName: "Ann", TeacherID: h.teacher.UID, TimeIn: ms(h.now), Status: model.StatusPresent})
	teacher := h.login("tess@school.test", "teach1")

	early := ms(h.now.Add(-time.Hour))
	w := h.do(http.MethodPatch, "/v1/logs/a", teacher, gin.H{"timeOut": early})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPatch, "/v1/logs/a", teacher, gin.H{"status": "LATE", "remarks": "bus"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "LATE", decode(t, w)["status"])

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/logs/a", teacher, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/logs/a", teacher, nil).Code)
}

func TestBulkDeleteLogs(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b", "c"} {
		h.seedTrack(model.Track{ID: id, UserID: "s1", StudentName: "Ann", TeacherID: h.teacher.UID, TimeIn: ms(h.now), Status: model.StatusPresent})
	}
	admin := h.login("root@school.test", "secret1")

	w := h.do(http.MethodPost, "/v1/logs/bulk-delete", admin, gin.H{"ids": []string{"a", "ghost"}})
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["succeeded"])
	assert.Equal(t, false, body["refreshed"])
	assert.NotContains(t, body, "view")

	w = h.do(http.MethodPost, "/v1/logs/bulk-delete", admin, gin.H{"ids": []string{"b", "c"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, true, body["refreshed"])
	assert.Empty(t, body["view"])

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/logs/bulk-delete", admin, gin.H{"ids": []string{}}).Code)
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)
	admin := h.login("root@school.test", "secret1")
	teacher := h.login("tess@school.test", "teach1")

	in := gin.H{
		"email": "dee@school.test", "name": "Dee", "role": "STUDENT",
		"teacherId": h.teacher.UID, "rfidTag": "04D4", "adminPassword": "secret1",
	}
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/v1/users", teacher, in).Code)

	w := h.do(http.MethodPost, "/v1/users", admin, gin.H{"email": "dee@school.test", "name": "Dee", "role": "TEACHER"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "admin password is required")

	in["adminPassword"] = "wrong1"
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/v1/users", admin, in).Code)
	in["adminPassword"] = "secret1"

	w = h.do(http.MethodPost, "/v1/users", admin, in)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	pw := created["password"].(string)
	assert.Len(t, pw, accounts.GeneratedPasswordLen)
	assert.Equal(t, "04D4", created["user"].(map[string]any)["rfidTag"])
	h.login("dee@school.test", pw)

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/users", admin, in).Code)

	in["email"] = "not-an-email"
	w = h.do(http.MethodPost, "/v1/users", admin, in)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email", decode(t, w)["field"])
}

func TestUserManagement(t *testing.T) {
	h := newHarness(t)
	admin := h.login("root@school.test", "secret1")
	teacher := h.login("tess@school.test", "teach1")

	w := h.do(http.MethodGet, "/v1/users?active=true", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"], "only Ann is an active student of Tess")
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/users?active=maybe", admin, nil).Code)

	w = h.do(http.MethodGet, "/v1/users/s1", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "stats")
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/users/s2", teacher, nil).Code)

	w = h.do(http.MethodPatch, "/v1/users/s1", teacher, gin.H{"name": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPatch, "/v1/users/s1", teacher, gin.H{"name": "Annie"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Annie", decode(t, w)["name"])

	w = h.do(http.MethodPost, "/v1/users/bulk", admin, gin.H{"action": "deactivate", "ids": []string{"s1", "s2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u, err := h.repo.GetUser(context.Background(), "s2")
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/users/bulk", admin, gin.H{"action": "promote", "ids": []string{"s1"}}).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/users/s3", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/users/s3", admin, nil).Code)
}

func TestTeachersAndDashboard(t *testing.T) {
	h := newHarness(t)
	h.seedTrack(model.Track{ID: "a", UserID: "s1", StudentName: "Ann", TeacherID: h.teacher.UID, TimeIn: ms(h.now), Status: model.StatusPresent})
	admin := h.login("root@school.test", "secret1")
	teacher := h.login("tess@school.test", "teach1")

	w := h.do(http.MethodGet, "/v1/teachers", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["teachers"], 1)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/teachers", teacher, nil).Code)

	w = h.do(http.MethodGet, "/v1/dashboard", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode(t, w)
	assert.EqualValues(t, 1, d["today"].(map[string]any)["present"])
	assert.Len(t, d["recent"], 1)
}

func TestProfileAndPasswords(t *testing.T) {
	h := newHarness(t)
	teacher := h.login("tess@school.test", "teach1")

	w := h.do(http.MethodPatch, "/v1/me", teacher, gin.H{"name": "  Tessa "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tessa", decode(t, w)["name"])

	w = h.do(http.MethodPost, "/v1/me/password", teacher, gin.H{"currentPassword": "teach1", "newPassword": "teach2", "confirmPassword": "nope22"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPost, "/v1/me/password", teacher, gin.H{"currentPassword": "wrong1", "newPassword": "teach2", "confirmPassword": "teach2"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.do(http.MethodPost, "/v1/me/password", teacher, gin.H{"currentPassword": "teach1", "newPassword": "teach2", "confirmPassword": "teach2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h.login("tess@school.test", "teach2")

	w = h.do(http.MethodPost, "/v1/auth/password-reset", "", gin.H{"email": "tess@school.test"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, h.mail.sent, 1)

	w = h.do(http.MethodPost, "/v1/auth/password-reset/confirm", "", gin.H{"token": "bogus", "password": "teach3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPost, "/v1/auth/password-reset/confirm", "", gin.H{"token": h.mail.sent[0].token, "password": "teach3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h.login("tess@school.test", "teach3")
}
