package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loadmatch/dispatcher/api"
	"github.com/loadmatch/dispatcher/config"
	"github.com/loadmatch/dispatcher/internal/bootstrap"
	"github.com/loadmatch/dispatcher/internal/cache"
	"github.com/loadmatch/dispatcher/internal/kafka"
	"github.com/loadmatch/dispatcher/internal/logger"
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

	handler := api.NewDispatchHandler(coordinator)
	router := api.NewRouter(handler, cfg.Auth.JWTSecret)

	zlog.Info("starting http server", zap.String("address", cfg.HTTP.Address))
	if err := bootstrap.Run(ctx, cfg, router); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}
