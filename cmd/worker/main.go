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

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/broadcast"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/config"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/queue"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/registry"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/repository"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/routes"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/services"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/logger"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/retry"
)

const pendingSampleInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting fan-out worker", slog.String("app", cfg.AppName))

	metrics.InitWorkerMetrics()

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

	identityStore, err := repository.NewIdentityStore(db)
	if err != nil {
		logr.Error("failed to prepare identity store", slog.Any("error", err))
		os.Exit(1)
	}
	streamLog := repository.NewStreamLog(rdb)

	backend := queue.NewRedisBackend(rdb)
	reg := registry.New(identityStore, backend, logr)
	bus := broadcast.NewRedis(rdb, nil, logr)
	processor := services.NewFanoutProcessor(reg, bus, streamLog, logr)

	policy := queue.Policy{MaxAttempts: cfg.QueueMaxAttempts, BaseDelay: cfg.QueueBaseDelay}
	pool := queue.NewPool(backend, policy, cfg.FanoutConcurrency, processor.Process, cfg.DiscoveryInterval, logr)
	pool.OnTenantStarted = func(ctx context.Context, hackathonID string) error {
		if err := streamLog.EnsureGroup(ctx, hackathonID); err != nil {
			return err
		}
		go samplePending(ctx, streamLog, hackathonID, logr)
		return nil
	}
	pool.OnPermanentFailure = func(job *queue.Job, err error) {
		logr.Error("notification permanently undelivered",
			slog.Uint64("notification_id", uint64(job.NotificationID)),
			slog.String("hackathon_id", job.HackathonID),
			slog.Any("error", err))
	}

	started := time.Now()
	srv := &http.Server{
		Addr:    ":" + cfg.WorkerPort,
		Handler: routes.NewWorkerRouter(started),
	}
	go func() {
		logr.Info("worker http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()

	if err := pool.Run(ctx, cfg.Hackathons); err != nil && ctx.Err() == nil {
		logr.Error("worker pool exited", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
	logr.Info("fan-out worker stopped")
}

// samplePending exports each tenant's unacknowledged stream depth, the
// backpressure signal ingestion throttling would key off.
func samplePending(ctx context.Context, streamLog *repository.StreamLog, hackathonID string, logr *slog.Logger) {
	ticker := time.NewTicker(pendingSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := streamLog.Pending(ctx, hackathonID)
			if err != nil {
				if ctx.Err() == nil {
					logr.Debug("pending sample failed",
						slog.String("hackathon_id", hackathonID),
						slog.Any("error", err))
				}
				continue
			}
			metrics.StreamPendingEntries.WithLabelValues(hackathonID).Set(float64(count))
		}
	}
}
