package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/sku"
	httpTransport "github.com/AdrianSzponarOnline/e-commerce-sub001/internal/transport/http"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/transport/http/handler"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/transport/kafka"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/config"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/db"
	kafka2 "github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/kafka"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	repository2 "github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:    cfg.Logger.Level,
		Env:      cfg.Env,
		Service:  "order-service",
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, "order-service", cfg.Env)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	migrationsURL := utils.ParseWithFallback("MIGRATIONS_URL", "file://migrations")
	if err := db.RunMigrations(migrationsURL, cfg.Postgres.URL); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL, db.Options{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to create pool", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Error closing redis client", zap.Error(err))
		}
	}()

	producer, err := kafka2.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Error creating kafka producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("Error closing kafka producer", zap.Error(err))
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	policy := domain.ShippingPolicy{
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		Surcharge:             cfg.Pricing.ShippingSurcharge,
	}

	orderRepo := repository.NewOrderRepository(pool, logger)
	paymentRepo := repository.NewPaymentRepository(pool, logger)
	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	addressRepo := repository.NewAddressRepository(pool)
	outboxRepo := repository2.NewOutboxRepository(logger)

	dispatcher := notification.NewKafkaDispatcher(producer, cfg.Kafka.NotificationsTopic, logger)

	productService := service.NewCachedProductService(
		service.NewProductService(pool, logger, productRepo, inventoryRepo, outboxRepo, sku.NewGenerator(), cfg.SKU.MaxAttempts),
		redisClient,
		cfg.Redis.TTL,
		logger,
	)
	inventoryService := service.NewInventoryService(pool, logger, inventoryRepo, dispatcher, m, cfg.Inventory.LockTimeout)
	orderService := service.NewOrderService(service.OrderServiceDeps{
		Pool:        pool,
		Logger:      logger,
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		StockRepo:   inventoryRepo,
		OutboxRepo:  outboxRepo,
		Products:    productService,
		Addresses:   addressRepo,
		Dispatcher:  dispatcher,
		Policy:      policy,
		Metrics:     m,
		LockTimeout: cfg.Inventory.LockTimeout,
	})
	paymentService := service.NewPaymentService(pool, logger, paymentRepo, orderRepo, outboxRepo, m)
	coordinator := service.NewCoordinator(service.CoordinatorDeps{
		Pool:        pool,
		Logger:      logger,
		OrderRepo:   orderRepo,
		StockRepo:   inventoryRepo,
		OutboxRepo:  outboxRepo,
		Dispatcher:  dispatcher,
		Metrics:     m,
		LockTimeout: cfg.Inventory.LockTimeout,
	})

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger, m, worker.Options{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	go outboxProcessor.Start(ctx)

	consumer := kafka.NewConsumer(coordinator, logger)
	go func() {
		if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID); err != nil {
			mylogger.Error(ctx, logger, "Coordinator consumer stopped", zap.Error(err))
			stop()
		}
	}()

	app := httpTransport.NewApp(&httpTransport.Handlers{
		Order:     handler.NewOrderHandler(orderService, logger, cfg.HTTP.Timeout),
		Payment:   handler.NewPaymentHandler(paymentService, logger, cfg.HTTP.Timeout),
		Inventory: handler.NewInventoryHandler(inventoryService, logger, cfg.HTTP.Timeout),
		Product:   handler.NewProductHandler(productService, logger, cfg.HTTP.Timeout),
	}, httpTransport.LimiterOptions{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
	})

	go func() {
		mylogger.Info(ctx, logger, "HTTP service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			mylogger.Error(ctx, logger, "HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down order service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
