package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-order-service/pkg/config"
	"github.com/sakashimaa/go-order-service/pkg/db"
	"github.com/sakashimaa/go-order-service/pkg/kafka"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/pkg/utils"
	"github.com/sakashimaa/go-order-service/services/order/internal/repository"
	"github.com/sakashimaa/go-order-service/services/order/internal/service"
	orderHttp "github.com/sakashimaa/go-order-service/services/order/internal/transport/http"
	"github.com/sakashimaa/go-order-service/services/order/internal/transport/http/handler"
	orderKafka "github.com/sakashimaa/go-order-service/services/order/internal/transport/kafka"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "order-service",
		Endpoint:    cfg.Tracing.Endpoint,
		Env:         cfg.Env,
		Enabled:     cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	if cfg.Postgres.Migrations != "" {
		if err := db.Migrate(cfg.Postgres.Migrations, cfg.Postgres.URL); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	orderRepo := repository.NewOrderRepository(logger)
	store := service.NewOrderStore(pool, orderRepo, logger)

	healthChecks := []handler.HealthCheck{
		{Name: "postgres", Ready: true, Check: pool.Ping},
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		store = service.NewCachedOrderStore(store, rdb, cfg.Redis.TTL, logger)

		healthChecks = append(healthChecks, handler.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}

	var (
		publisher messaging.Publisher
		producer  *kafka.Producer
		consumer  *messaging.EventConsumer
	)

	if cfg.Kafka.Enabled() {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			log.Fatalf("error creating kafka producer: %v", err)
		}

		publisher = messaging.NewBreakerPublisher(producer, utils.BreakerSettings(
			"kafka-publisher",
			cfg.Breaker.MaxRequests,
			cfg.Breaker.Interval,
			cfg.Breaker.Timeout,
			logger,
		))

		source, err := kafka.NewConsumerGroup(
			cfg.Kafka.Brokers,
			cfg.Kafka.GroupID,
			[]string{cfg.Kafka.ProductsTopic},
			logger,
		)
		if err != nil {
			log.Fatalf("error creating kafka consumer group: %v", err)
		}

		productConsumer := orderKafka.NewConsumer(orderKafka.NewLoggingHandler(logger), logger)
		consumer = messaging.NewEventConsumer(source, productConsumer.Handle, logger)
	} else {
		mylogger.Warn(ctx, logger, "Kafka brokers not configured, events will not be published or consumed")
		publisher = messaging.NewNullPublisher(logger)
	}

	orderService := service.NewOrderService(store, publisher, service.Topics{
		Orders:        cfg.Kafka.OrdersTopic,
		Notifications: cfg.Kafka.NotificationsTopic,
	}, logger)

	app := orderHttp.NewApp(orderHttp.Options{
		ReadTimeout:  cfg.HTTP.Timeout,
		LimiterMax:   cfg.Limiter.Max,
		LimiterReset: cfg.Limiter.Expiration,
	}, &orderHttp.Handlers{
		Order:  handler.NewOrderHandler(orderService, logger),
		Health: handler.NewHealthHandler(logger, cfg.HTTP.Timeout, healthChecks...),
	})

	if consumer != nil {
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("failed to start event consumer: %v", err)
		}
	}

	go func() {
		mylogger.Info(ctx, logger, "HTTP order service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening HTTP on port %v: %v", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down order service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down HTTP server", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Stop(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to stop event consumer", zap.Error(err))
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
		}
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to close redis client", zap.Error(err))
		}
	}

	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	} else {
		mylogger.Info(shutdownCtx, logger, "Successfully down telemetry")
	}
}
