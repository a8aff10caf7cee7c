/**
 * @description
 * This is the main entry point for the gateway-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the upstream exchange client, the outbound request queue, message
 * broker, repositories, the core application services, and the HTTP server.
 * It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Background reconciliation schedule.
 * - internal/api, internal/app, internal/config, internal/domain, internal/store.
 * - pkg/exchangeclient, pkg/rabbitmq: External collaborators.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shieldswap/gateway-service/internal/api"
	"github.com/shieldswap/gateway-service/internal/app"
	"github.com/shieldswap/gateway-service/internal/config"
	"github.com/shieldswap/gateway-service/internal/domain"
	"github.com/shieldswap/gateway-service/internal/store"
	"github.com/shieldswap/gateway-service/pkg/exchangeclient"
	"github.com/shieldswap/gateway-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.ExchangeAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"exchange api key must be configured\" env=EXCHANGE_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting gateway-service\" port=%s outbound_rps=%.2f", cfg.ServerPort, cfg.EffectiveOutboundRate())

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for terminal status events.
	// This service only needs to publish, so a missing broker only degrades.
	var eventProducer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; terminal events disabled\" env=RABBITMQ_URL")
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else if producer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Pick the inbound rate limiter: distributed when Redis is configured,
	// per-instance sliding window otherwise.
	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()

	var limiter app.RequestLimiter
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", parseErr)
		}
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis ping failed; falling back to in-memory rate limiting\" err=%v", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
			log.Println("level=info component=bootstrap msg=\"redis connected; distributed rate limiting enabled\"")
		}
	}
	if limiter == nil {
		memoryLimiter := app.NewMemoryRateLimiter()
		memoryLimiter.StartJanitor(janitorCtx, 2*time.Minute, 15*time.Minute)
		limiter = memoryLimiter
	}

	// Initialize the client for the upstream exchange API and the process-wide
	// outbound queue owning the rate budget toward it.
	exchangeClient := exchangeclient.NewClient(cfg.ExchangeAPIBaseURL, cfg.ExchangeAPIKey)

	queue := app.NewOutboundQueue(app.OutboundQueueConfig{
		RequestsPerSecond: cfg.EffectiveOutboundRate(),
		CallTimeout:       time.Duration(cfg.OutboundCallTimeoutSeconds) * time.Second,
		MaxAttempts:       cfg.OutboundMaxAttempts,
		RetryBaseDelay:    time.Duration(cfg.OutboundRetryBaseDelayMs) * time.Millisecond,
	})
	queue.Start()
	defer queue.Close()

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	validator := domain.NewRegexAddressValidator()
	coordinator := app.NewService(repository, exchangeClient, queue, validator)
	monitor := app.NewStatusMonitor(repository, exchangeClient, queue, eventProducer)

	// Background reconciliation: re-poll stale pending transfers so terminal
	// outcomes land even when no client is watching.
	scheduler := cron.New()
	sweepSpec := fmt.Sprintf("@every %ds", cfg.StatusSweepIntervalSeconds)
	_, err = scheduler.AddFunc(sweepSpec, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.StatusSweepIntervalSeconds)*time.Second)
		defer cancel()
		monitor.SweepPending(sweepCtx, time.Duration(cfg.StatusSweepMinAgeSeconds)*time.Second, cfg.StatusSweepBatchSize)
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sweep schedule registration failed\" err=%v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewGatewayHandlers(coordinator, monitor)
	router := api.GatewayRoutes(handlers, limiter, api.RateLimitSettings{
		GeneralLimit:  cfg.GeneralRateLimitPerMinute,
		GeneralWindow: time.Minute,
		CreateLimit:   cfg.CreateRateLimitPerMinute,
		CreateWindow:  time.Minute,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
