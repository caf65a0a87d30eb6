package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-adp-auth/api/swagger"
	"github.com/noah-isme/sma-adp-auth/internal/handler"
	"github.com/noah-isme/sma-adp-auth/internal/middleware"
	"github.com/noah-isme/sma-adp-auth/internal/repository"
	"github.com/noah-isme/sma-adp-auth/internal/service"
	"github.com/noah-isme/sma-adp-auth/pkg/cache"
	"github.com/noah-isme/sma-adp-auth/pkg/config"
	"github.com/noah-isme/sma-adp-auth/pkg/database"
	"github.com/noah-isme/sma-adp-auth/pkg/jobs"
	"github.com/noah-isme/sma-adp-auth/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-auth/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-auth/pkg/middleware/requestid"
)

// @title SMA ADP Auth API
// @version 1.0.0
// @description Session issuance and refresh-token rotation
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("migrations applied")
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	users := repository.NewUserRepository(db)
	checks := map[string]handler.Pinger{"postgres": users}

	var store service.RefreshLedger
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		redisLedger := repository.NewRedisRefreshTokenRepository(client, cfg.Ledger.KeyPrefix, cfg.Ledger.Retention)
		checks["redis"] = redisLedger
		store = redisLedger
	default:
		store = repository.NewRefreshTokenRepository(db)
	}
	logr.Info("refresh ledger configured", zap.String("backend", cfg.Ledger.Backend))

	credentials, err := service.NewCredentialService(users, cfg.UpstreamTimeout, cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	ledger := service.NewLedgerService(store, cfg.UpstreamTimeout, metrics)

	audit := service.NewAuditDispatcher(repository.NewAuditRepository(db), cfg.UpstreamTimeout, jobs.QueueConfig{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: 3,
		Logger:     logr,
	})
	audit.Start(ctx)
	defer audit.Stop()

	authService := service.NewAuthService(credentials, ledger, tokens, audit, metrics, validator.New(), logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterOpsRoutes(r, handler.NewMetricsHandler(metrics, cfg.UpstreamTimeout, checks), cfg.Metrics.Enabled)
	handler.RegisterAuthRoutes(
		r.Group(cfg.APIPrefix),
		handler.NewAuthHandler(authService, cfg.Cookie),
		middleware.JWT(authService, cfg.Cookie.AccessCookieName),
	)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
