package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-auth/pkg/config"
)

// tokenCookies mirrors issued tokens into HttpOnly cookies.
type tokenCookies struct {
	cfg config.CookieConfig
}

func (t tokenCookies) set(c *gin.Context, access string, accessTTL time.Duration, refresh string, refreshTTL time.Duration) {
	c.SetSameSite(t.cfg.SameSite)
	c.SetCookie(t.cfg.AccessCookieName, access, int(accessTTL.Seconds()), "/", t.cfg.Domain, t.cfg.Secure, true)
	c.SetSameSite(t.cfg.SameSite)
	c.SetCookie(t.cfg.RefreshCookieName, refresh, int(refreshTTL.Seconds()), t.refreshPath(), t.cfg.Domain, t.cfg.Secure, true)
}

func (t tokenCookies) clear(c *gin.Context) {
	c.SetSameSite(t.cfg.SameSite)
	c.SetCookie(t.cfg.AccessCookieName, "", -1, "/", t.cfg.Domain, t.cfg.Secure, true)
	c.SetSameSite(t.cfg.SameSite)
	c.SetCookie(t.cfg.RefreshCookieName, "", -1, t.refreshPath(), t.cfg.Domain, t.cfg.Secure, true)
}

func (t tokenCookies) refreshToken(c *gin.Context) string {
	value, err := c.Cookie(t.cfg.RefreshCookieName)
	if err != nil {
		return ""
	}
	return value
}

func (t tokenCookies) refreshPath() string {
	if t.cfg.RefreshCookiePath == "" {
		return "/"
	}
	return t.cfg.RefreshCookiePath
}
