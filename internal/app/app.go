package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/securekit/secure-session-service/internal/config"
	"github.com/securekit/secure-session-service/internal/critical"
	"github.com/securekit/secure-session-service/internal/crypto"
	"github.com/securekit/secure-session-service/internal/health"
	"github.com/securekit/secure-session-service/internal/http/handler"
	"github.com/securekit/secure-session-service/internal/http/router"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/security"
	"github.com/securekit/secure-session-service/internal/service"

	"gorm.io/gorm"
)

const (
	keyRotationSweepInterval = time.Hour
	sessionCleanupInterval   = 10 * time.Minute
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Server        *http.Server
	Observability *observability.Runtime

	Keyring  *crypto.Keyring
	Sessions *service.SessionService
	Auth     *service.AuthService
	Users    repository.UserRepository
}

// New wires the full dependency graph. Construction fails fast: a service
// that cannot reach its database or validate its configuration should not
// come up half-alive.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	db, err := repository.OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	auditRepo := repository.NewAuditRepository(db)
	auditor := observability.NewAuditLogger(logger, auditRepo)

	keyRepo := repository.NewKeyRepository(db)
	keyring := crypto.NewKeyring(keyRepo, auditor, cfg.KeyCacheTTL, cfg.KeyRotationInterval)
	encryptor := crypto.NewEncryptor(keyring, auditor, cfg.MaxPlaintextBytes)

	runner := critical.NewRunner(db, logger, auditor)

	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	userRepo := repository.NewUserRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	tokens := service.NewTokenService(jwtMgr, tokenRepo, cfg.TokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	scorer := service.NewAnomalyScorer(cfg.AnomalyThreshold,
		service.LocationChangeCheck{Weight: cfg.AnomalyLocationWeight},
		service.UnusualHourCheck{Weight: cfg.AnomalyHourWeight},
		service.ConcurrentOriginCheck{Weight: cfg.AnomalyConcurrentWeight, Sessions: sessionRepo},
	)

	sessions := service.NewSessionService(service.SessionServiceParams{
		Sessions:      sessionRepo,
		Cache:         service.NewRedisSessionCacheStore(redisClient, encryptor, "session"),
		Encryptor:     encryptor,
		Runner:        runner,
		Auditor:       auditor,
		Scorer:        scorer,
		Tokens:        tokens,
		Logger:        logger,
		TTL:           cfg.SessionTTL,
		AllowIPChange: cfg.SessionAllowIPChange,
	})

	auth := service.NewAuthService(service.AuthServiceParams{
		Users:         userRepo,
		Sessions:      sessions,
		Tokens:        tokens,
		JWTManager:    jwtMgr,
		Lockout:       service.NewRedisLockoutStore(redisClient, "lockout"),
		Blacklist:     service.NewRedisTokenBlacklist(redisClient, "blacklist"),
		Auditor:       auditor,
		MaxAttempts:   cfg.LockoutMaxAttempts,
		LockoutWindow: cfg.LockoutWindow,
	})

	readiness := health.NewProbeRunner(2*time.Second,
		health.DatabaseCheck(db),
		health.RedisCheck(redisClient),
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, cfg.JWTAccessTTL),
		SessionHandler:   handler.NewSessionHandler(sessions, userRepo),
		AdminHandler:     handler.NewAdminHandler(keyring, auditRepo),
		TokenValidator:   auth,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		MaxBodyBytes:     int64(cfg.MaxPlaintextBytes),
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELMetricsEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Redis:         redisClient,
		Server:        server,
		Observability: runtime,
		Keyring:       keyring,
		Sessions:      sessions,
		Auth:          auth,
		Users:         userRepo,
	}, nil
}

// Run serves HTTP and the maintenance loops until ctx is canceled, then
// shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(keyRotationSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := a.Keyring.RotateExpired(ctx); err != nil {
					a.Logger.ErrorContext(ctx, "key rotation sweep failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				removed, err := a.Sessions.CleanupExpired(ctx)
				if err != nil {
					a.Logger.ErrorContext(ctx, "session cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					a.Logger.InfoContext(ctx, "expired sessions removed", "count", removed)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	return err
}

func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Warn("close database", "error", err)
			}
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		a.Logger.Warn("shutdown observability", "error", err)
	}
}
