package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/attendance"
	"tapntrack/internal/auth"
)

// deviceKeyHeader carries the shared registration key when one is set.
const deviceKeyHeader = "X-Registration-Key"

func (s *Server) registerDevice(c *gin.Context) {
	if s.cfg.DeviceKey != "" {
		got := c.GetHeader(deviceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.DeviceKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid registration key"})
			return
		}
	}
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.RegisterDevice(c.Request.Context(), req.DeviceID); err != nil {
		fail(c, err)
		return
	}
	body, ok := s.issue(c, auth.Identity{Subject: req.DeviceID, Role: auth.RoleDevice})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, body)
}

func (s *Server) tap(c *gin.Context) {
	var req struct {
		RFIDTag  string `json:"rfid_tag" binding:"required"`
		Location string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.svc.Tap(c.Request.Context(), req.RFIDTag, req.Location)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Action == attendance.TapIn {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}
