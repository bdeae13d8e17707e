package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-board/internal/board"
	"github.com/ramiqadoumi/go-task-board/internal/broadcast"
	"github.com/ramiqadoumi/go-task-board/internal/jobs"
	"github.com/ramiqadoumi/go-task-board/internal/kafka"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-task-board/internal/redis"
	"github.com/ramiqadoumi/go-task-board/internal/version"
	"github.com/ramiqadoumi/go-task-board/pkg/retry"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-board/services/board-api/config"
	"github.com/ramiqadoumi/go-task-board/services/board-api/handler"
	"github.com/ramiqadoumi/go-task-board/services/board-api/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("jwt-secret", "changeme", "HS256 secret bearer tokens are signed with")
	serveCmd.Flags().String("allowed-origins", "http://localhost:5173", "comma-separated browser origins allowed by CORS and the websocket")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().Int("rate-limit", 60, "mutations allowed per user per window; 0 disables")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().Int("bus-buffer", broadcast.DefaultBuffer, "events buffered per live subscriber before dropping")
	serveCmd.Flags().String("webhook-urls", "", "comma-separated URLs every board event is POSTed to")
	serveCmd.Flags().String("load-refresh", jobs.DefaultLoadRefresh, "cron schedule for the open-load gauge")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("jwt_secret", serveCmd.Flags(), "jwt-secret")
	bindFlag("allowed_origins", serveCmd.Flags(), "allowed-origins")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_window", serveCmd.Flags(), "rate-window")
	bindFlag("bus_buffer", serveCmd.Flags(), "bus-buffer")
	bindFlag("webhook_urls", serveCmd.Flags(), "webhook-urls")
	bindFlag("load_refresh", serveCmd.Flags(), "load-refresh")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)
	logger.Info("starting", slog.String("version", version.String()))

	if cfg.JWTSecret == "changeme" {
		logger.Warn("jwt_secret is the default value; set a real secret outside development")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// ── backing stores ────────────────────────────────────────────────────────
	pool, redisClient, err := connectStores(cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer func() { _ = redisClient.Close() }()

	tasks := postgres.NewRepository(pool)
	users := postgres.NewUserDirectory(pool)
	activity := postgres.NewActivityLog(pool)
	counter := redisstore.NewRotationCounter(redisClient, redisstore.SmartAssignKey)

	var limiter middleware.Limiter
	if cfg.RateLimit > 0 {
		limiter = redisstore.NewRateLimiter(redisClient, "mutations", cfg.RateLimit, cfg.RateWindow)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── broadcast ─────────────────────────────────────────────────────────────
	bus := broadcast.NewBus(cfg.BusBuffer, logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		defer func() { _ = producer.Close() }()
		go broadcast.NewKafkaSink(bus, producer, logger).Run(runCtx)
		logger.Info("kafka event sink enabled", slog.String("topic", cfg.EventsTopic))
	}
	for _, url := range cfg.WebhookURLs {
		go broadcast.NewWebhookSink(bus, url, logger).Run(runCtx)
	}

	svc := board.NewService(tasks, users, activity, counter, bus, board.WithLogger(logger))

	refresher, err := jobs.NewLoadRefresher(tasks, users, counter, cfg.LoadRefresh, logger)
	if err != nil {
		return err
	}
	go refresher.Run(runCtx)

	// ── HTTP ──────────────────────────────────────────────────────────────────
	ready := map[string]telemetry.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, ready, logger)

	router := handler.NewRouter(handler.RouterDeps{
		REST:           handler.NewREST(svc, logger),
		Stream:         handler.NewStream(bus, cfg.AllowedOrigins, logger),
		Auth:           middleware.NewAuthenticator(cfg.JWTSecret, users, logger),
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Ready:          ready,
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("board-api HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		logger.Error("HTTP server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("shutting down...")
	runCancel()
	bus.Close()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}

// connectStores waits for PostgreSQL and Redis to accept connections.
func connectStores(cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, *goredis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	policy := func(store string) retry.Config {
		c := retry.Startup
		c.OnRetry = func(attempt int, err error) {
			logger.Warn("store not reachable yet",
				slog.String("store", store),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return c
	}

	var pool *pgxpool.Pool
	err := retry.Do(ctx, policy("postgres"), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := postgres.NewPool(attemptCtx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	client := redisstore.NewClient(cfg.RedisAddr)
	err = retry.Do(ctx, policy("redis"), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		pool.Close()
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return pool, client, nil
}
