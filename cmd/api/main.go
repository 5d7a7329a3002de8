package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/gst3d/pushserver/internal/api"
	"github.com/gst3d/pushserver/internal/auth"
	"github.com/gst3d/pushserver/internal/config"
	"github.com/gst3d/pushserver/internal/domain"
	"github.com/gst3d/pushserver/internal/fcm"
	"github.com/gst3d/pushserver/internal/geo"
	"github.com/gst3d/pushserver/internal/metrics"
	"github.com/gst3d/pushserver/internal/middleware"
	"github.com/gst3d/pushserver/internal/repository"
	"github.com/gst3d/pushserver/internal/storage"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting push server",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Registry and audit log live in memory only
	registry := repository.NewMemoryRegistry()
	auditLog := repository.NewAuditLog(repository.AuditLogCapacity)
	recorder := metrics.New(registry.Count)

	// Initialize Firebase
	var gateway domain.PushGateway
	gatewayReady := true
	fcmClient, err := fcm.NewClient(ctx, logger, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
	if err != nil {
		logger.Warn("Failed to initialize Firebase client - push notifications will fail", zap.Error(err))
		gateway = fcm.Unavailable{Reason: err}
		gatewayReady = false
	} else {
		logger.Info("Firebase client initialized")
		gateway = fcmClient
	}

	archive, err := initArchive(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize report storage", zap.Error(err))
	}

	// Initialize WebSocket hub
	auditHub := api.NewAuditHub(logger)
	go auditHub.Run(ctx)

	// Initialize services
	resolver := geo.NewResolver(cfg.Geo.LookupURL, cfg.Geo.LookupTimeout, logger)
	registrationService := domain.NewRegistrationService(registry, auditLog, resolver, auditHub, recorder, logger)

	dispatchOpts := domain.DispatchOptions{
		Concurrency: cfg.Dispatch.Concurrency,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}
	if cfg.Dispatch.RatePerSec > 0 {
		dispatchOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.Dispatch.RatePerSec), max(1, int(cfg.Dispatch.RatePerSec)))
	}
	notificationService := domain.NewNotificationService(registry, gateway, archive, recorder, logger, dispatchOpts)

	// Initialize handlers
	pushHandler := api.NewPushHandler(registrationService, notificationService, registry, auditLog, cfg.Geo.EdgeCountryHeader, logger)
	healthHandler := api.NewHealthHandler(registry, gatewayReady)

	opts := api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        recorder.Handler(),
		Observer:       recorder,
	}
	if cfg.RateLimit.PerSecond > 0 && cfg.RateLimit.Burst > 0 {
		opts.RateLimiter = middleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)
	}

	// Initialize router
	tokens := auth.NewStaticTokens(cfg.Auth.Tokens()...)
	router := api.NewRouter(pushHandler, healthHandler, auditHub, tokens, opts, logger)
	r := router.Setup()

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening",
			zap.String("addr", srv.Addr),
			zap.Int("bearer_tokens", tokens.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Stop the hub and limiter cleanup after in-flight requests drain
	cancel()

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	if level := cfg.Log.Level; level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zapCfg.Build()
}

func initArchive(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (domain.ReportArchiver, error) {
	var store storage.FileStorage
	switch cfg.Type {
	case "", "none":
		logger.Info("Dispatch report archive disabled")
		return nil, nil
	case "local":
		local, err := storage.NewLocalFileStorage(cfg.ReportDir)
		if err != nil {
			return nil, err
		}
		store = local
	case "s3":
		s3Store, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown STORAGE_TYPE %q", cfg.Type)
	}
	logger.Info("Dispatch report archive enabled", zap.String("type", cfg.Type))
	return storage.NewReportArchive(store, logger), nil
}
