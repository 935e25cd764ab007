package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-marketplace/internal/config"
	"course-marketplace/internal/domain/ports/adapter"
	payAdapters "course-marketplace/internal/infra/adapters/payment"
	"course-marketplace/internal/infra/cache"
	pg "course-marketplace/internal/infra/db/postgres"
	"course-marketplace/internal/infra/logging"
	"course-marketplace/internal/infra/metrics"
	red "course-marketplace/internal/infra/redis"
	"course-marketplace/internal/infra/sched"
	"course-marketplace/internal/infra/web"
	"course-marketplace/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop payment gateway, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	txRepo := pg.NewTransactionRepo(pool)
	courseRepo := pg.NewCourseRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	enrollRepo := pg.NewEnrollmentRepo(pool)
	reviewRepo := pg.NewReviewRepo(pool)
	wishlistRepo := pg.NewWishlistRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Payment.Snap.ServerKey == "" {
		logger.Warn().Msg("no snap server key, using noop payment gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	} else {
		gateway, err = payAdapters.NewSnapGateway(cfg.Payment.Snap.ServerKey, cfg.Payment.Snap.Sandbox)
		if err != nil {
			logger.Fatal().Err(err).Msg("snap gateway init failed")
		}
	}

	// ---- Use cases ----
	recCache := cache.NewRecommendationCache(cfg.Recommendation.CacheTTL)
	enrollUC := usecase.NewEnrollmentUseCase(enrollRepo, logger)
	txUC := usecase.NewTransactionUseCase(txRepo, courseRepo, userRepo, enrollUC, gateway, txManager, logger)
	recUC := usecase.NewRecommendationUseCase(courseRepo, enrollRepo, reviewRepo, wishlistRepo, userRepo, recCache, logger)
	txUC.SetCacheInvalidator(recUC)
	statsUC := usecase.NewStatsUseCase(txRepo, logger)

	// ---- HTTP server ----
	if cfg.Auth.JWTSecret == "" {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("auth.jwt_secret is required")
		}
		logger.Warn().Msg("auth.jwt_secret not set, using dev secret (INSECURE)")
		cfg.Auth.JWTSecret = "dev-secret-do-not-use"
	}
	auth := web.NewAuthMiddleware(cfg.Auth.JWTSecret)
	srv := web.NewServer(txUC, recUC, statsUC, auth, rateLimiter, cfg.Payment.WebhookRateLimit, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Background workers ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, txUC, logger)
	go func() { _ = expiry.Run(ctx) }()

	reconciler := sched.NewPaymentReconciler(txUC, txRepo, gateway, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReconcileStaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
