package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pixelevents/api/routes"
	"pixelevents/internal/shared/config"
	"pixelevents/internal/shared/database"
	"pixelevents/internal/shared/middleware"
	"pixelevents/pkg/logger"
	"pixelevents/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	// Load config
	cfg := config.Load()

	// Set Gin mode (debug/release) before the logger picks its handler
	gin.SetMode(cfg.GinMode)
	appLogger = logger.New()
	logger.SetDefault(appLogger)

	// Initialize DB
	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Rate Limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			WindowDuration:    cfg.RateLimit.WindowDuration,
			DefaultRequests:   cfg.RateLimit.DefaultRequests,
			AdmissionRequests: cfg.RateLimit.AdmissionRequests,
			OrganizerRequests: cfg.RateLimit.OrganizerRequests,
			InboxRequests:     cfg.RateLimit.InboxRequests,
			HealthRequests:    cfg.RateLimit.HealthRequests,
			WhitelistedIPs:    cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
			slog.Int("admission_requests", cfg.RateLimit.AdmissionRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	appRouter, err := routes.NewRouter(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("Failed to wire services", slog.Any("error", err))
		os.Exit(1)
	}

	// Background workers: draw scheduler and delivery receipts
	workerCtx, workerCancel := context.WithCancel(context.Background())
	appRouter.Start(workerCtx)
	defer func() {
		workerCancel()
		if err := appRouter.Stop(); err != nil {
			appLogger.Error("Error stopping background workers", slog.Any("error", err))
		}
	}()

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        setupEngine(cfg, appRouter, appLogger, rateLimiter),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("kafka", cfg.Kafka.Enabled),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupEngine(cfg *config.Config, appRouter *routes.Router, appLogger *logger.Logger, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	// client IPs feed the rate limiter, so only listed proxies may rewrite them
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		appLogger.Warn("Invalid trusted proxies, trusting none", slog.Any("error", err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(appLogger),
		gin.Recovery(),
	)

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Length", "Content-Type",
			middleware.EntrantHeader, middleware.RoleHeader, middleware.RequestIDHeader,
		},
		ExposeHeaders: []string{
			"Content-Length", middleware.RequestIDHeader,
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter, appLogger))
	}

	appRouter.SetupRoutes(engine)
	return engine
}
