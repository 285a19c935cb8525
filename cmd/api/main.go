package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/notification-relay/internal/adapters/primary/http"
	mw "github.com/lorrc/notification-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/notification-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/notification-relay/internal/adapters/secondary/authz"
	"github.com/lorrc/notification-relay/internal/adapters/secondary/redis"
	"github.com/lorrc/notification-relay/internal/auth"
	"github.com/lorrc/notification-relay/internal/config"
	"github.com/lorrc/notification-relay/internal/core/broadcast"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/core/retry"
	"github.com/lorrc/notification-relay/internal/core/services"
	"github.com/lorrc/notification-relay/internal/infrastructure/logging"
	"github.com/lorrc/notification-relay/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	policy := retry.Policy{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff,
		Multiplier:     2,
	}

	// 3. Connect to the shared store
	client, err := redis.Connect(ctx, redis.Config{
		URL:         cfg.Redis.URL,
		DialTimeout: cfg.Redis.DialTimeout,
		Retry:       policy,
	})
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer client.Close()
	logger.Info("redis connection established")

	m := metrics.New()

	// 4. Broadcast medium: one subscription feeding a local hot stream
	stream := broadcast.NewBroker("notifications",
		broadcast.WithBufferSize[string](cfg.WebSocket.SendBuffer),
		broadcast.WithLogger[string](logger),
	)
	subscriber := redis.NewSubscriber(redis.ClientSubscribe(client), redis.SubscriberConfig{
		Channel:        cfg.Redis.Channel,
		MaxAttempts:    cfg.Retry.SubscribeMaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		AckTimeout:     cfg.Retry.SubscribeAckTimeout,
	}, stream, logger)
	if err := subscriber.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", cfg.Redis.Channel, err)
	}
	logger.Info("subscribed to broadcast channel", "channel", cfg.Redis.Channel)

	// 5. Dependency Injection (Wiring the Hexagon)
	ticketStore := redis.NewTicketStore(client, policy)
	publisher := redis.NewPublisher(client, cfg.Redis.Channel, policy)

	ticketService := services.NewTicketService(ticketStore, services.TicketServiceConfig{
		TTL:       cfg.Ticket.TTL,
		SingleUse: cfg.Ticket.SingleUse,
	})
	notificationService := services.NewNotificationService(publisher, m, logger)

	var access ports.AccessChecker = authz.AllowAll{}
	if cfg.Authz.URL != "" {
		access = authz.NewClient(cfg.Authz.URL, cfg.Authz.Timeout, logger)
	} else {
		logger.Warn("AUTHZ_URL not set, every ticket request is permitted")
	}

	registry := websocket.NewRegistry(m, logger)
	notifier := websocket.NewNotifier(registry, m, logger)
	protocol := websocket.NewAuthProtocol(ticketService, registry, cfg.WebSocket.AuthTimeout, logger)

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	// 6. Initialize Rate Limiters
	var generalRateLimiter, ticketRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		general := mw.DefaultRateLimiterConfig()
		general.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		general.BurstSize = cfg.RateLimit.BurstSize
		generalRateLimiter = mw.NewRateLimiter(general)
		defer generalRateLimiter.Stop()

		tickets := mw.TicketRateLimiterConfig()
		tickets.RequestsPerSecond = cfg.RateLimit.TicketRPS
		tickets.BurstSize = cfg.RateLimit.TicketBurst
		ticketRateLimiter = mw.NewRateLimiter(tickets)
		defer ticketRateLimiter.Stop()
	}

	// Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	handlers := httpAdapter.Handlers{
		Health: httpAdapter.NewHealthHandler(redis.NewPinger(client, retry.Policy{}), subscriber, registry, cfg.App.Version, logger),
		Notify: httpAdapter.NewNotifyHandler(notificationService, errorHandler, logger),
		Ticket: httpAdapter.NewWSTicketHandler(ticketService, access, errorHandler, logger),
		WebSocket: httpAdapter.NewWebSocketHandler(protocol, httpAdapter.WebSocketConfig{
			AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			IsDevelopment:   cfg.IsDevelopment(),
			Conn: websocket.ConnConfig{
				PingInterval: cfg.WebSocket.PingInterval,
				PongWait:     cfg.WebSocket.PongWait,
				SendBuffer:   cfg.WebSocket.SendBuffer,
			},
		}, logger),
	}

	// 7. Setup Router
	r := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:             logger,
		TokenValidator:     tokenManager,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		GeneralLimiter:     generalRateLimiter,
		TicketLimiter:      ticketRateLimiter,
		Metrics:            m.Handler(),
	}, handlers)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. Run until a signal arrives or the broadcast subscription is lost
	eg, gctx := errgroup.WithContext(ctx)
	messages := subscriber.Subscribe(gctx)

	eg.Go(func() error {
		notifier.Run(gctx, messages)
		return nil
	})

	eg.Go(func() error {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		select {
		case <-subscriber.Failed():
			return fmt.Errorf("broadcast subscription failed: %w", subscriber.Err())
		case <-gctx.Done():
			return nil
		}
	})

	eg.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown started")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Close connections first so ServeHTTP returns for every upgraded request
		protocol.Shutdown()
		registry.CloseAll()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := subscriber.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop subscriber", "error", err)
		}
		stream.Shutdown()

		return nil
	})

	return eg.Wait()
}
