package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/internal/app/controller"
	"github.com/lojamoda/storefront-auth/internal/app/repository"
	"github.com/lojamoda/storefront-auth/internal/app/service"
	"github.com/lojamoda/storefront-auth/internal/db"
	"github.com/lojamoda/storefront-auth/internal/middleware"
	"github.com/lojamoda/storefront-auth/internal/router"
	"github.com/lojamoda/storefront-auth/internal/scheduler"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/lojamoda/storefront-auth/pkg/mailer"
	"github.com/lojamoda/storefront-auth/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
		Service:     "storefront-auth",
	})

	logger.Info("Starting storefront auth server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"mail_driver": cfg.Mail.Driver,
	})

	if cfg.Server.Environment == "production" && cfg.Mail.Driver == mailer.DriverConsole {
		logger.Fatal("Console mail driver is not allowed in production", errors.New("MAIL_DRIVER=console"))
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	var blacklist redis.Blacklist = redis.NopBlacklist{}
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer client.Close()
		blacklist = redis.NewBlacklist(client)
	} else {
		logger.Warn("Redis not configured, logout will not revoke tokens")
	}

	m, err := mailer.New(context.Background(), cfg.Mail)
	if err != nil {
		logger.Fatal("Failed to initialize mailer", err)
	}

	userRepo := repository.NewUserRepository(db.GetDB())
	codeRepo := repository.NewTwoFactorCodeRepository(db.GetDB())
	rateLimitRepo := repository.NewRateLimitRepository(db.GetDB())

	authService := service.NewAuthService(
		userRepo,
		blacklist,
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	twoFactorService := service.NewTwoFactorService(codeRepo, service.TwoFactorOptions{
		CodeTTL:     cfg.TwoFactor.CodeTTL,
		MaxAttempts: cfg.TwoFactor.MaxAttempts,
		HashKey:     cfg.TwoFactor.CodeHashKey,
	})
	rateLimiter := service.NewRateLimiterService(rateLimitRepo, service.RateLimiterOptions{
		Cooldown:    cfg.TwoFactor.Cooldown,
		MaxRequests: cfg.TwoFactor.MaxRequestsPerHour,
		Window:      cfg.TwoFactor.RateLimitWindow,
	})
	cleanupService := service.NewCleanupService(
		codeRepo,
		rateLimitRepo,
		cfg.TwoFactor.CodeRetention,
		cfg.TwoFactor.RateLimitRetention,
		nil,
	)

	authController := controller.NewAuthController(
		authService,
		twoFactorService,
		rateLimiter,
		m,
		controller.SessionCookieConfig{
			Name:   cfg.JWT.CookieName,
			Secure: cfg.JWT.CookieSecure,
			MaxAge: cfg.JWT.AccessTokenExpiry,
		},
		cfg.TwoFactor.LimitByIP,
	)
	adminController := controller.NewAdminController(cleanupService)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.CookieName, blacklist)

	cleanupScheduler := scheduler.NewCleanupScheduler(cleanupService, cfg.TwoFactor.CleanupSchedule)
	if err := cleanupScheduler.Start(); err != nil {
		logger.Fatal("Failed to start cleanup scheduler", err)
	}
	defer cleanupScheduler.Stop()

	engine := router.NewRouter(authController, adminController, authMiddleware, cfg).Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	logger.Info("Server stopped successfully")
}
