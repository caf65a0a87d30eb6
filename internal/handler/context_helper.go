package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-auth/internal/middleware"
	"github.com/noah-isme/sma-adp-auth/internal/models"
)

// sessionClaims returns the access-token claims set by middleware.JWT. Claims
// without a subject are treated as absent.
func sessionClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}
