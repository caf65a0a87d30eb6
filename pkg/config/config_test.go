package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, LedgerPostgres, cfg.Ledger.Backend)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, http.SameSiteStrictMode, cfg.Cookie.SameSite)
	assert.True(t, cfg.Cookie.Secure)
	assert.Equal(t, "refresh_token", cfg.Cookie.RefreshCookieName)
	assert.Equal(t, "/api/v1/auth", cfg.Cookie.RefreshCookiePath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "Redis")
	t.Setenv("JWT_AUDIENCE", "web, mobile")
	t.Setenv("COOKIE_SAMESITE", "lax")
	t.Setenv("UPSTREAM_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LedgerRedis, cfg.Ledger.Backend)
	assert.Equal(t, []string{"web", "mobile"}, cfg.JWT.Audience)
	assert.Equal(t, http.SameSiteLaxMode, cfg.Cookie.SameSite)
	assert.Equal(t, 750*time.Millisecond, cfg.UpstreamTimeout)
}

func TestLoadRejectsDevSecretInProduction(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsUnknownLedger(t *testing.T) {
	cfg := &Config{
		JWT:      JWTConfig{Secret: "s", AccessTokenTTL: AccessTokenTTL, RefreshTokenTTL: RefreshTokenTTL},
		Ledger:   LedgerConfig{Backend: "memory"},
		Database: DatabaseConfig{Host: "db"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Ledger.Backend = LedgerPostgres
	assert.NoError(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
}

func TestTokenLifetimesAreFixed(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("REFRESH_TOKEN_TTL", "720h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 900*time.Second, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 604800*time.Second, cfg.JWT.RefreshTokenTTL)

	cfg.JWT.AccessTokenTTL = time.Hour
	assert.Error(t, cfg.Validate())
}
