package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes mounts the session endpoints on group. protect guards
// the endpoints that need a valid access token.
func RegisterAuthRoutes(group *gin.RouterGroup, h *AuthHandler, protect gin.HandlerFunc) {
	auth := group.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)

	secured := auth.Group("")
	secured.Use(protect)
	secured.POST("/logout", h.Logout)
	secured.POST("/logout-all", h.LogoutAll)
	secured.GET("/me", h.Me)
}

// RegisterOpsRoutes mounts liveness, readiness and, when enabled, metrics.
func RegisterOpsRoutes(r *gin.Engine, h *MetricsHandler, metricsEnabled bool) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	if metricsEnabled {
		r.GET("/metrics", h.Prometheus)
	}
}
