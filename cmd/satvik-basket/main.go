package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/satvik-basket/backend/internal/auth"
	"github.com/satvik-basket/backend/internal/cart"
	"github.com/satvik-basket/backend/internal/config"
	"github.com/satvik-basket/backend/internal/db"
	"github.com/satvik-basket/backend/internal/messaging"
	"github.com/satvik-basket/backend/internal/messaging/kafka"
	"github.com/satvik-basket/backend/internal/order"
	"github.com/satvik-basket/backend/internal/payment"
	"github.com/satvik-basket/backend/internal/product"
	"github.com/satvik-basket/backend/internal/razorpay"
	"github.com/satvik-basket/backend/internal/transport"
	"github.com/satvik-basket/backend/internal/user"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting satvik-basket backend...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	postgres, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgres.Close()

	userRepository := user.NewRepository(postgres.Pool)
	userService := user.NewService(userRepository)

	productRepository := product.NewRepository(postgres.Pool)
	productService := product.NewService(productRepository)

	orderRepository := order.NewRepository(postgres.Pool)
	orderService := order.NewService(orderRepository, productService)

	tokenManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.KafkaEnabled() {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka payment event feed enabled")
	}

	var paymentService payment.Service
	if cfg.RazorpayEnabled() {
		gateway := razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
		paymentRepository := payment.NewRepository(postgres.Pool)
		paymentService = payment.NewService(paymentRepository, orderRepository, gateway, publisher)
		log.Info().Msg("Razorpay checkout enabled")
	} else {
		log.Warn().Msg("Razorpay credentials missing, payment routes disabled")
	}

	var cartStore *cart.Store
	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		cartStore = cart.NewStore(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis cart store enabled")
	} else {
		log.Warn().Msg("Redis address missing, cart routes disabled")
	}

	router := transport.NewRouter(transport.Deps{
		Users:    userService,
		Products: productService,
		Orders:   orderService,
		Payments: paymentService,
		Carts:    cartStore,
		Tokens:   tokenManager,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Satvik-basket backend stopped gracefully.")
}
