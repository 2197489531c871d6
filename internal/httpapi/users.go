package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/access"
	"tapntrack/internal/accounts"
	"tapntrack/internal/attendance"
)

func (s *Server) listUsers(c *gin.Context) {
	f, err := userFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	_, who := caller(c)
	users, err := s.svc.ListUsers(c.Request.Context(), who, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (s *Server) getUser(c *gin.Context) {
	_, who := caller(c)
	detail, err := s.svc.GetUser(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// createUser runs the admin-only creation flow. The admin's own password
// is needed to restore their provider session afterwards.
func (s *Server) createUser(c *gin.Context) {
	claims, who := caller(c)
	if !access.Allowed(who.Role, access.PermissionUsersCreate) {
		fail(c, access.ErrForbidden)
		return
	}
	var req struct {
		accounts.NewUser
		AdminPassword string `json:"adminPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cred := &accounts.Credential{Email: claims.Email, Password: req.AdminPassword}
	req.AdminPassword = ""

	created, err := s.creator.CreateUser(c.Request.Context(), s.session(claims), cred, req.NewUser)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateUser(c *gin.Context) {
	var p attendance.UserPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	_, who := caller(c)
	u, err := s.svc.UpdateUser(c.Request.Context(), who, c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) deleteUser(c *gin.Context) {
	_, who := caller(c)
	if err := s.svc.DeleteUser(c.Request.Context(), who, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) bulkUsers(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	f, err := userFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	_, who := caller(c)
	res, err := s.svc.BulkUsers(c.Request.Context(), who, req.Action, req.IDs, f)
	if err != nil {
		fail(c, err)
		return
	}
	writeBulk(c, res.Report, res.View)
}

func (s *Server) teachers(c *gin.Context) {
	_, who := caller(c)
	if !access.Allowed(who.Role, access.PermissionUsersCreate) {
		fail(c, access.ErrForbidden)
		return
	}
	list, err := s.svc.Teachers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": list})
}

func (s *Server) dashboard(c *gin.Context) {
	_, who := caller(c)
	d, err := s.svc.Dashboard(c.Request.Context(), who)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
