package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapntrack/internal/model"
)

const (
	key    = "test-key"
	issuer = "tapntrack-test"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue(Identity{Subject: "u1", Role: "TEACHER", Email: "t@school.test"}, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshID)

	claims, err := ParseKind(pair.AccessToken, key, issuer, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t@school.test", claims.Email)
	assert.Equal(t, model.RoleTeacher, claims.Caller().Role)

	refresh, err := ParseKind(pair.RefreshToken, key, issuer, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshID, refresh.ID)

	_, err = ParseKind(pair.RefreshToken, key, issuer, KindAccess)
	assert.Error(t, err, "refresh tokens are not access tokens")

	_, err = Parse(pair.AccessToken, "other-key", issuer)
	assert.Error(t, err)
	_, err = Parse(pair.AccessToken, key, "someone-else")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue(Identity{Subject: "u1", Role: "ADMIN"}, issuer, key, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(pair.AccessToken, key, issuer)
	assert.Error(t, err)
}

func router(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", Bearer(key, issuer, roles...), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Subject)
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearer(t *testing.T) {
	admin, err := Issue(Identity{Subject: "a1", Role: "ADMIN"}, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	device, err := Issue(Identity{Subject: "gate-1", Role: RoleDevice}, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)

	w := do(router(), admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(router(), "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router(), "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router(), admin.RefreshToken).Code)
	assert.Equal(t, http.StatusForbidden, do(router("ADMIN", "TEACHER"), device.AccessToken).Code)
	assert.Equal(t, http.StatusOK, do(router(RoleDevice), device.AccessToken).Code)
}
