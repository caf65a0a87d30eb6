package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Ledger backends.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

const devSecret = "dev_secret"

// Token lifetimes are fixed; clients rely on expires_in being 900.
const (
	AccessTokenTTL  = 900 * time.Second
	RefreshTokenTTL = 7 * 24 * time.Hour
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	JWT      JWTConfig
	Cookie   CookieConfig
	CORS     CORSConfig
	Log      LogConfig
	Metrics  MetricsConfig

	// UpstreamTimeout bounds every credential store and ledger call.
	UpstreamTimeout time.Duration
	BcryptCost      int
	RunMigrations   bool
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LedgerConfig selects the refresh-token ledger storage engine.
type LedgerConfig struct {
	Backend   string
	KeyPrefix string
	Retention time.Duration
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	Audience        []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CookieConfig controls how tokens are mirrored into cookies.
type CookieConfig struct {
	Secure            bool
	Domain            string
	SameSite          http.SameSite
	AccessCookieName  string
	RefreshCookieName string
	RefreshCookiePath string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Ledger = LedgerConfig{
		Backend:   strings.ToLower(v.GetString("LEDGER_BACKEND")),
		KeyPrefix: v.GetString("LEDGER_KEY_PREFIX"),
		Retention: parseDuration(v.GetString("LEDGER_RETENTION"), 24*time.Hour),
	}

	cfg.JWT = JWTConfig{
		Secret:          v.GetString("JWT_SECRET"),
		Issuer:          v.GetString("JWT_ISSUER"),
		Audience:        splitAndTrim(v.GetString("JWT_AUDIENCE")),
		AccessTokenTTL:  AccessTokenTTL,
		RefreshTokenTTL: RefreshTokenTTL,
	}

	cfg.Cookie = CookieConfig{
		Secure:            v.GetBool("COOKIE_SECURE"),
		Domain:            v.GetString("COOKIE_DOMAIN"),
		SameSite:          parseSameSite(v.GetString("COOKIE_SAMESITE")),
		AccessCookieName:  v.GetString("ACCESS_COOKIE_NAME"),
		RefreshCookieName: v.GetString("REFRESH_COOKIE_NAME"),
		RefreshCookiePath: v.GetString("REFRESH_COOKIE_PATH"),
	}
	if cfg.Cookie.RefreshCookiePath == "" {
		cfg.Cookie.RefreshCookiePath = strings.TrimRight(cfg.APIPrefix, "/") + "/auth"
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.UpstreamTimeout = parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 3*time.Second)
	cfg.BcryptCost = v.GetInt("BCRYPT_COST")
	cfg.RunMigrations = v.GetBool("RUN_MIGRATIONS")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that cannot serve the session lifecycle.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Env == EnvProduction && c.JWT.Secret == devSecret {
		return errors.New("JWT_SECRET must be changed in production")
	}
	if c.JWT.AccessTokenTTL != AccessTokenTTL || c.JWT.RefreshTokenTTL != RefreshTokenTTL {
		return fmt.Errorf("token TTLs are fixed at %s and %s", AccessTokenTTL, RefreshTokenTTL)
	}
	switch c.Ledger.Backend {
	case LedgerPostgres:
	case LedgerRedis:
		if c.Redis.Host == "" {
			return errors.New("REDIS_HOST is required for the redis ledger")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	if c.Database.Host == "" {
		return errors.New("DB_HOST is required for the credential store")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_adp_auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LEDGER_BACKEND", LedgerPostgres)
	v.SetDefault("LEDGER_KEY_PREFIX", "refresh")
	v.SetDefault("LEDGER_RETENTION", "24h")

	v.SetDefault("JWT_SECRET", devSecret)
	v.SetDefault("JWT_ISSUER", "sma-adp-auth")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", "strict")
	v.SetDefault("ACCESS_COOKIE_NAME", "access_token")
	v.SetDefault("REFRESH_COOKIE_NAME", "refresh_token")
	v.SetDefault("REFRESH_COOKIE_PATH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("UPSTREAM_TIMEOUT", "3s")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("RUN_MIGRATIONS", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
