package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pairlive/backend/internal/api/handler"
	"pairlive/backend/internal/chathub"
	"pairlive/backend/internal/complaint"
	"pairlive/backend/internal/config"
	"pairlive/backend/internal/jobs"
	"pairlive/backend/internal/matching"
	"pairlive/backend/internal/media"
	"pairlive/backend/internal/reputation"
	"pairlive/backend/internal/session"
	"pairlive/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func setupDependencies(ctx context.Context, cfg config.Config, logger *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect Redis", zap.Error(err))
	}

	if err := storage.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	logger.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	defer logger.Sync()

	if cfg.JWTSecret == "" || cfg.MediaSecret == "" {
		logger.Fatal("JWT_SECRET and MEDIA_SECRET must be set")
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg, logger)
	s := storage.NewStorageService(db, rdb)

	rep := reputation.NewService(s, logger.Named("reputation"))
	matcher := matching.NewService(s, logger.Named("matching"), cfg.QueueEntryTTL)
	sessions := session.NewService(s, rep, media.NewJWTIssuer(cfg.MediaSecret, cfg.MediaTokenTTL),
		logger.Named("session"), cfg.SessionMarkerTTL, cfg.SkipCooldown)
	complaints := complaint.NewService(s, rep, logger.Named("complaint"))

	hub := chathub.NewManagerService(s, logger.Named("hub"))
	hub.StartPubSubListener(ctx)
	go hub.Run(ctx)

	scheduler := jobs.NewScheduler(rep, sessions, jobs.Config{
		RecoverySchedule: cfg.RecoverySchedule,
		CleanupSchedule:  cfg.CleanupSchedule,
	}, logger.Named("jobs"))
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	h := handler.NewHandler(hub, matcher, sessions, complaints, handler.NewAuthenticator(cfg.JWTSecret),
		logger.Named("http"), cfg.MatchPollInterval, cfg.StoreTimeout)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", zap.Error(err))
	}
}
