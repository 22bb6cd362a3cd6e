package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/broadcast"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/config"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/hub"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/queue"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/registry"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/repository"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/routes"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/services"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/logger"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting notification engine", slog.String("app", cfg.AppName))

	metrics.InitAPIMetrics()

	connectCfg := retry.Config{
		MaxAttempts:    cfg.ConnectMaxAttempts,
		InitialBackoff: cfg.ConnectBackoff,
		OnRetry: func(attempt int, err error) {
			logr.Warn("startup connect failed, retrying",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if err := retry.Do(ctx, connectCfg, func() error {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		return err
	}); err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer rdb.Close()
	if err := retry.Do(ctx, connectCfg, func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		logr.Error("failed to connect redis", slog.Any("error", err))
		os.Exit(1)
	}

	notifStore, err := repository.NewNotificationStore(db)
	if err != nil {
		logr.Error("failed to prepare notification store", slog.Any("error", err))
		os.Exit(1)
	}
	identityStore, err := repository.NewIdentityStore(db)
	if err != nil {
		logr.Error("failed to prepare identity store", slog.Any("error", err))
		os.Exit(1)
	}

	backend := queue.NewRedisBackend(rdb)
	policy := queue.Policy{MaxAttempts: cfg.QueueMaxAttempts, BaseDelay: cfg.QueueBaseDelay}
	queueSet := queue.NewSet(backend, policy, logr)

	reg := registry.New(identityStore, backend, logr)
	gateway := hub.New(reg, notifStore, cfg.InitialFetchLimit, cfg.AllowedOrigin, logr)

	bus := broadcast.NewRedis(rdb, gateway, logr)
	go func() {
		if err := bus.Listen(ctx); err != nil && ctx.Err() == nil {
			logr.Error("broadcast listener exited", slog.Any("error", err))
		}
	}()

	ledger := services.NewDeliveryLedger(notifStore, logr)
	go func() {
		if err := ledger.Run(ctx, bus); err != nil && ctx.Err() == nil {
			logr.Error("delivery ledger exited", slog.Any("error", err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	started := time.Now()
	router := routes.NewRouter(notifStore, queueSet, gateway.HandleWS, logr, started)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}
	go func() {
		logr.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
	logr.Info("notification engine stopped")
}
