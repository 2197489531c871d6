package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/access"
	"tapntrack/internal/accounts"
	"tapntrack/internal/auth"
)

// issue signs a token pair for id and records the refresh token for
// rotation.
func (s *Server) issue(c *gin.Context, id auth.Identity) (gin.H, bool) {
	tokens, err := auth.Issue(id, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return nil, false
	}
	if err := s.repo.SaveRefreshToken(c.Request.Context(), tokens.RefreshID, id.Subject, tokens.RefreshExp); err != nil {
		fail(c, err)
		return nil, false
	}
	return gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	}, true
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := accounts.Login(c.Request.Context(), s.accounts(nil), s.repo, req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	body, ok := s.issue(c, auth.Identity{Subject: u.UID, Role: string(u.Role), Email: u.Email})
	if !ok {
		return
	}
	body["user"] = u
	c.JSON(http.StatusOK, body)
}

// refresh rotates a refresh token. Each refresh token is accepted once.
func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := auth.ParseKind(req.RefreshToken, s.cfg.JWTSigningKey, s.cfg.JWTIssuer, auth.KindRefresh)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	live, err := s.repo.ConsumeRefreshToken(c.Request.Context(), claims.ID)
	if err != nil {
		fail(c, err)
		return
	}
	if !live {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "refresh token already used or expired"})
		return
	}

	id := auth.Identity{Subject: claims.Subject, Role: claims.Role, Email: claims.Email}
	if claims.Role != auth.RoleDevice {
		u, err := s.repo.GetUser(c.Request.Context(), claims.Subject)
		if err != nil {
			fail(c, err)
			return
		}
		if !u.IsActive {
			fail(c, accounts.ErrInactive)
			return
		}
		id = auth.Identity{Subject: u.UID, Role: string(u.Role), Email: u.Email}
	}
	body, ok := s.issue(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := accounts.ForgotPassword(c.Request.Context(), s.accounts(nil), req.Email); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req accounts.PasswordReset
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := accounts.ResetPassword(c.Request.Context(), s.accounts(nil), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) signUp(c *gin.Context) {
	fail(c, accounts.SignUp(c.Request.Context()))
}

// caller returns the identity Bearer attached to c.
func caller(c *gin.Context) (auth.Claims, access.Caller) {
	claims, _ := auth.ClaimsFrom(c)
	return claims, claims.Caller()
}

// session resumes the caller's account session on a fresh provider.
func (s *Server) session(claims auth.Claims) accounts.Provider {
	return s.accounts(&accounts.Session{UID: claims.Subject, Email: claims.Email})
}

func (s *Server) me(c *gin.Context) {
	claims, _ := caller(c)
	u, err := s.repo.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateMe(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := caller(c)
	u, err := s.svc.UpdateProfile(c.Request.Context(), claims.Subject, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) changePassword(c *gin.Context) {
	var req accounts.PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := caller(c)
	if err := accounts.ChangePassword(c.Request.Context(), s.session(claims), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
