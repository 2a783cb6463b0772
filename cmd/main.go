package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/photo_checkout/internal/cart"
	"github.com/fjod/photo_checkout/internal/catalog"
	"github.com/fjod/photo_checkout/internal/config"
	"github.com/fjod/photo_checkout/internal/gateway"
	h "github.com/fjod/photo_checkout/internal/http"
	"github.com/fjod/photo_checkout/internal/idempotency"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/publisher"
	"github.com/fjod/photo_checkout/internal/repository"
	"github.com/fjod/photo_checkout/internal/service"
	"github.com/fjod/photo_checkout/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load(getEnv("CONFIG_DIR", "./configs"), getEnv("APP_ENV", ""))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)
	taxRate, err := cfg.TaxRate()
	if err != nil {
		fatal(log, "invalid tax rate", err)
	}
	log.Info("photo-checkout starting", "addr", cfg.App.HTTPAddr, "notifier", cfg.Notifier.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Options{
			ServiceName: cfg.App.Name,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Environment: cfg.Telemetry.Environment,
		})
		if err != nil {
			fatal(log, "failed to set up tracing", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Orders database
	creds := &repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.Postgres.Migrations,
		MaxOpenConns:      cfg.Postgres.MaxOpenConns,
		MaxIdleConns:      cfg.Postgres.MaxIdleConns,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		fatal(log, "failed to run migrations", err)
	}
	log.Info("database migrations completed")

	// Catalog
	photos, err := catalog.NewRepository(cfg.Catalog.Path)
	if err != nil {
		fatal(log, "failed to open catalog", err)
	}
	defer photos.Close()
	if err := photos.RunMigrations(cfg.Catalog.Migrations); err != nil {
		fatal(log, "failed to migrate catalog", err)
	}

	// Session carts and idempotency
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "redis connection failed", err)
	}
	log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)

	// Account carts
	mongoDB, err := cart.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		fatal(log, "failed to connect to mongodb", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Client().Disconnect(disconnectCtx)
	}()
	accountCarts := cart.NewAccountStore(mongoDB)
	if err := accountCarts.CreateIndexes(ctx); err != nil {
		fatal(log, "failed to create cart indexes", err)
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		PublicKey:        cfg.Gateway.PublicKey,
		ReturnURL:        cfg.Gateway.ReturnURL,
		CancelURL:        cfg.Gateway.CancelURL,
		Timeout:          cfg.Gateway.Timeout,
		MaxRequests:      cfg.Gateway.Breaker.MaxRequests,
		Interval:         cfg.Gateway.Breaker.Interval,
		OpenTimeout:      cfg.Gateway.Breaker.Timeout,
		FailureThreshold: cfg.Gateway.Breaker.FailureThreshold,
	})
	signer := gateway.NewSigner(cfg.Gateway.SecretKey)

	carts := service.NewCartAggregator(
		cart.NewSessionStore(redisClient, cfg.Redis.SessionTTL),
		accountCarts,
		photos,
		cfg.Checkout.Currency,
	)
	ledger := service.NewLedger(repo, photos, carts, idempotency.NewRedisStore(redisClient, cfg.Idempotency.TTL),
		service.LedgerConfig{Currency: cfg.Checkout.Currency, TaxRate: taxRate})
	payments := service.NewPayments(repo, gw, signer)
	reconciler := service.NewReconciler(repo, gw, signer, carts)

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		fatal(log, "failed to set up notifier", err)
	}
	defer notifier.Close()

	var wg sync.WaitGroup
	poller := publisher.NewOutboxPoller(repo, notifier, publisher.PollerConfig{
		Tick:    cfg.Outbox.Tick,
		Batch:   cfg.Outbox.Batch,
		Timeout: cfg.Outbox.Timeout,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	router := h.NewRouter(h.Services{
		Carts:     carts,
		Orders:    ledger,
		Payments:  payments,
		Callbacks: reconciler,
		Ready: func(r *http.Request) error {
			return errors.Join(repo.Ping(r.Context()), redisClient.Ping(r.Context()).Err())
		},
	}, h.RouterOptions{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.App.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()

	log.Info("photo-checkout stopped")
}

func newNotifier(cfg config.Config, log *slog.Logger) (publisher.Notifier, error) {
	switch cfg.Notifier.Kind {
	case "kafka":
		return publisher.NewKafkaNotifier(cfg.Notifier.Kafka.Topic, cfg.Notifier.Kafka.Brokers...), nil
	case "rabbitmq":
		return publisher.NewRabbitNotifier(cfg.Notifier.RabbitMQ.URL, cfg.Notifier.RabbitMQ.Exchange)
	default:
		return publisher.NewLogNotifier(log.With("component", "notifier")), nil
	}
}
