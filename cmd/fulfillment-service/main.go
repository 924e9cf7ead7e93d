package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cache"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment/paypal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/store/memory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/store/postgres"
)

// backingStore is what both store drivers provide to the services.
type backingStore interface {
	order.Store
	Carts() cart.Repository
	GetProduct(ctx context.Context, id uuid.UUID) (*inventory.Product, error)
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)

	log.Info().Str("store", cfg.App.Store).Msg("Fulfillment service starting...")

	var (
		store  backingStore
		health handler.HealthCheck
	)
	switch cfg.App.Store {
	case config.StorePostgres:
		dbConn, err := db.New(context.Background(), cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		if err := dbConn.ApplyMigrations(cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		store = postgres.NewStore(dbConn.Pool, dbConn.DB)
		health = dbConn.Pool.Ping
	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		store = memory.NewStore()
	}

	var notifier order.Notifier = notify.LogNotifier{}
	if brokers := notify.SplitBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(notify.NewWriter(brokers, cfg.Kafka.Topic), cfg.Kafka.WriteTimeout)
		defer func() {
			if err := kafkaNotifier.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close kafka writer")
			}
		}()
		notifier = kafkaNotifier
		log.Info().Strs("brokers", brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka notifications enabled")
	}

	var paymentOpts []payment.Option
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.App.Name)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisCache.Ping(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, processed-event marker disabled")
		} else {
			paymentOpts = append(paymentOpts, payment.WithEventMarker(cache.NewEventMarker(redisCache, cfg.Redis.EventTTL)))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Processed-event marker enabled")
		}
	}

	provider := paypal.NewClient(paypal.Config{
		BaseURL:      cfg.Payment.BaseURL,
		ClientID:     cfg.Payment.ClientID,
		ClientSecret: cfg.Payment.ClientSecret,
		Timeout:      cfg.Payment.Timeout,
		ReturnURL:    cfg.Payment.ReturnURL,
		CancelURL:    cfg.Payment.CancelURL,
	})

	orderSvc := order.NewService(store, notifier)
	cartSvc := cart.NewService(store.Carts(), store)
	paymentSvc := payment.NewService(store, provider, notifier, cfg.Payment.WebhookSecret, paymentOpts...)

	stopCleanup := make(chan struct{})
	limiter := handler.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiter.StartCleanup(time.Minute, stopCleanup)
	defer close(stopCleanup)

	router := handler.NewRouter(handler.RouterDeps{
		Orders:      orderSvc,
		Carts:       cartSvc,
		Payments:    paymentSvc,
		ParseEvent:  paypal.ParseEvent,
		Auth:        handler.NewAuthenticator(cfg.Auth.JWTSecret),
		RateLimiter: limiter,
		Health:      health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || cfg.App.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
}
