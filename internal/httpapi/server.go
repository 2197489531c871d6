// Package httpapi exposes the attendance, roster and account flows over a
// gin JSON API.
package httpapi

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tapntrack/internal/accounts"
	"tapntrack/internal/attendance"
	"tapntrack/internal/auth"
	"tapntrack/internal/config"
	"tapntrack/internal/httpmiddleware"
	"tapntrack/internal/model"
)

// HealthCheck reports the reachability of each named dependency.
type HealthCheck func(ctx context.Context) map[string]bool

// Deps are the collaborators the API is built from.
type Deps struct {
	Config   config.App
	Service  *attendance.Service
	Creator  *accounts.Creator
	Accounts accounts.Factory
	Health   HealthCheck
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg      config.App
	svc      *attendance.Service
	repo     *attendance.Repository
	creator  *accounts.Creator
	accounts accounts.Factory
	health   HealthCheck
}

// New builds a Server from d.
func New(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		svc:      d.Service,
		repo:     d.Service.Repository(),
		creator:  d.Creator,
		accounts: d.Accounts,
		health:   d.Health,
	}
}

var userRoles = []string{string(model.RoleAdmin), string(model.RoleTeacher), string(model.RoleStudent)}

// Router wires middlewares and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	logCfg := gin.LoggerConfig{}
	if !s.cfg.LogHealthChecks {
		logCfg.SkipPaths = []string{"/healthz", "/metrics"}
	}
	r.Use(gin.LoggerWithConfig(logCfg))
	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	pub := r.Group("/v1/auth")
	pub.POST("/login", s.login)
	pub.POST("/refresh", s.refresh)
	pub.POST("/password-reset", s.forgotPassword)
	pub.POST("/password-reset/confirm", s.resetPassword)
	pub.POST("/signup", s.signUp)

	r.POST("/v1/devices/register", s.registerDevice)

	// Taps are limited per device token.
	taps := httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin)
	dev := r.Group("/v1", auth.DeviceAuth(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	dev.POST("/taps", taps.GinMiddlewareBy(func(c *gin.Context) string {
		claims, _ := auth.ClaimsFrom(c)
		return claims.Subject
	}), s.tap)

	v1 := r.Group("/v1", auth.Bearer(s.cfg.JWTSigningKey, s.cfg.JWTIssuer, userRoles...))
	v1.GET("/me", s.me)
	v1.PATCH("/me", s.updateMe)
	v1.POST("/me/password", s.changePassword)

	v1.GET("/logs", s.listLogs)
	v1.GET("/logs/summary", s.logSummary)
	v1.POST("/logs/bulk-delete", s.bulkDeleteLogs)
	v1.GET("/logs/:id", s.getLog)
	v1.PATCH("/logs/:id", s.updateLog)
	v1.DELETE("/logs/:id", s.deleteLog)

	v1.GET("/users", s.listUsers)
	v1.POST("/users", s.createUser)
	v1.POST("/users/bulk", s.bulkUsers)
	v1.GET("/users/:id", s.getUser)
	v1.PATCH("/users/:id", s.updateUser)
	v1.DELETE("/users/:id", s.deleteUser)
	v1.GET("/teachers", s.teachers)
	v1.GET("/dashboard", s.dashboard)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	if s.health != nil {
		for name, ok := range s.health(c.Request.Context()) {
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
	}
	c.JSON(status, body)
}

// corsMiddleware allows the configured comma separated origins, or any
// origin for "*".
func corsMiddleware(origins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", deviceKeyHeader},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        24 * time.Hour,
	}
	var list []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			list = append(list, o)
		}
	}
	if len(list) == 0 || slices.Contains(list, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = list
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
