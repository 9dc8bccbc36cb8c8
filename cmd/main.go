package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/cache"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/handler"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/repository/dynamodb"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/repository/memory"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/repository/postgres"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/service"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/store"
	"github.com/cloud-wave-best-zizon/commerce-service/pkg/config"
	"github.com/cloud-wave-best-zizon/commerce-service/pkg/tls"
)

type backend struct {
	products   service.ProductRepository
	users      service.UserRepository
	orders     service.OrderRepository
	placements store.PlacementStore
	outbox     events.OutboxStore
	ping       func(ctx context.Context) error
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer be.close()

	productService := service.NewProductService(be.products, logger)
	userService := service.NewUserService(be.users, logger)
	orderService := service.NewOrderService(be.placements, be.products, be.orders, logger)

	var deduper events.Deduper
	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()

		productCache := cache.NewProductCache(rdb, cfg.CacheTTL)
		productService.SetCache(productCache)
		orderService.SetCache(productCache)
		deduper = cache.NewDeduper(rdb, cache.DefaultDedupeTTL)
		logger.Info("Product cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.EventsEnabled() {
		orderService.EnableEvents()
		startEvents(ctx, &workers, cfg, be, productService, deduper, logger)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Products:       handler.NewProductHandler(productService, logger),
		Users:          handler.NewUserHandler(userService, logger),
		Orders:         handler.NewOrderHandler(orderService, logger),
		RequestTimeout: cfg.RequestTimeout,
		Ping:           be.ping,
	}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	tlsSource, err := tls.NewSource(ctx, cfg.TLSConfig, logger)
	if err != nil {
		logger.Fatal("Failed to load TLS configuration", zap.Error(err))
	}
	if tlsSource != nil {
		defer tlsSource.Close()
		srv.TLSConfig = tlsSource.ServerConfig()
		go tlsSource.WatchCertificates(ctx, 30*time.Second)
	}

	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("tls", tlsSource != nil))

		var err error
		if tlsSource != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	workers.Wait()
	logger.Info("Server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("Database schema migrated")
		}
		orders := postgres.NewOrderRepository(pool)
		return &backend{
			products:   postgres.NewProductRepository(pool),
			users:      postgres.NewUserRepository(pool),
			orders:     orders,
			placements: orders,
			outbox:     postgres.NewOutboxStore(pool),
			ping:       pool.Ping,
			close:      pool.Close,
		}, nil

	case config.DriverDynamoDB:
		client, err := dynamodb.NewDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tables := dynamodb.TablesFromConfig(cfg)
		orders := dynamodb.NewOrderRepository(client, tables)
		return &backend{
			products:   dynamodb.NewProductRepository(client, tables.Products),
			users:      dynamodb.NewUserRepository(client, tables.Users),
			orders:     orders,
			placements: orders,
			outbox:     dynamodb.NewOutboxStore(client, tables.Outbox),
			close:      func() {},
		}, nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		s := memory.NewStore()
		return &backend{
			products:   s,
			users:      s,
			orders:     s,
			placements: s,
			outbox:     s,
			close:      func() {},
		}, nil
	}
}

// startEvents runs the outbox relay and the restock consumer until ctx is done.
func startEvents(ctx context.Context, workers *sync.WaitGroup, cfg *config.Config, be *backend, restocker events.Restocker, deduper events.Deduper, logger *zap.Logger) {
	producer := events.NewKafkaProducer(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderEventsTopic), logger)
	relayID, err := os.Hostname()
	if err != nil || relayID == "" {
		relayID = uuid.NewString()
	}
	relay := events.NewRelay(be.outbox, producer, events.RelayConfig{
		RelayID:   relayID,
		BatchSize: cfg.RelayBatchSize,
		Interval:  cfg.RelayInterval,
	}, logger)

	reader := events.NewKafkaReader(cfg.KafkaBrokers, cfg.RestockTopic, cfg.ConsumerGroup)
	consumer := events.NewRestockConsumer(reader, restocker, deduper, logger)

	workers.Add(2)
	go func() {
		defer workers.Done()
		defer producer.Close()
		if err := relay.Run(ctx); err != nil {
			logger.Error("Outbox relay stopped", zap.Error(err))
		}
	}()
	go func() {
		defer workers.Done()
		if err := consumer.Run(ctx); err != nil {
			logger.Error("Restock consumer stopped", zap.Error(err))
		}
	}()

	logger.Info("Event pipeline started",
		zap.String("brokers", cfg.KafkaBrokers),
		zap.String("order_topic", cfg.OrderEventsTopic),
		zap.String("restock_topic", cfg.RestockTopic))
}
