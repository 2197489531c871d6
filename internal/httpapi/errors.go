package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/access"
	"tapntrack/internal/accounts"
	"tapntrack/internal/attendance"
	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

// statusOf maps a service error onto an HTTP status. Anything unrecognised
// is treated as an upstream store or provider failure.
func statusOf(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, model.ErrInvalidTimes),
		errors.Is(err, accounts.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden),
		errors.Is(err, accounts.ErrSignupDisabled),
		errors.Is(err, accounts.ErrInactive),
		errors.Is(err, attendance.ErrInactive):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, attendance.ErrUnknownTag):
		return http.StatusNotFound
	case errors.Is(err, accounts.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// fail aborts c with the JSON error body for err.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		body["field"] = ve.Field
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a body or query that failed to bind.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
