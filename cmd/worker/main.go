package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loadmatch/dispatcher/config"
	"github.com/loadmatch/dispatcher/internal/cache"
	"github.com/loadmatch/dispatcher/internal/kafka"
	"github.com/loadmatch/dispatcher/internal/logger"
	"github.com/loadmatch/dispatcher/internal/notify"
	"github.com/loadmatch/dispatcher/internal/repository"
	"github.com/loadmatch/dispatcher/internal/service/dispatch"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(cfg.Log.Level, cfg.Log.JSON)
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Dispatch.QueueTTL())
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	vendorRepo := repository.NewVendorRepository(pool)

	sequencer := dispatch.NewSequencer(
		requestRepo,
		bookingRepo,
		vendorRepo,
		producer,
		cfg.Kafka.DispatchTopic,
		cfg.Dispatch.OfferTTL(),
		zlog,
		dispatch.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	coordinator := dispatch.NewCoordinator(
		sequencer,
		bookingRepo,
		requestRepo,
		vendorRepo,
		redisCache,
		producer,
		cfg.Kafka.DispatchTopic,
		zlog,
		dispatch.WithRetry(cfg.Dispatch.RetryAttempts, cfg.Dispatch.RetryBackoff()),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	notifier := notify.NewNotifier(zlog)

	go func() {
		if err := consumer.Consume(ctx, notifier.Notify); err != nil {
			zlog.Info("notification consumer stopped", zap.Error(err))
		}
	}()

	sweepTicker := time.NewTicker(cfg.Worker.SweepInterval())
	defer sweepTicker.Stop()

	zlog.Info("sweeper started", zap.Duration("interval", cfg.Worker.SweepInterval()))
	for {
		select {
		case <-sweepTicker.C:
			expired, err := coordinator.SweepExpired(ctx)
			if err != nil {
				zlog.Error("sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				zlog.Info("expired overdue offers", zap.Int("count", expired))
			}
		case <-ctx.Done():
			zlog.Info("shutting down")
			return
		}
	}
}
