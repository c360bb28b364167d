package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookflow/internal/api"
	"bookflow/internal/backend"
	"bookflow/internal/checkout"
	"bookflow/internal/config"
	"bookflow/internal/domain"
	"bookflow/internal/events"
	"bookflow/internal/gate"
	"bookflow/internal/logging"
	"bookflow/internal/metrics"
	"bookflow/internal/models"
	"bookflow/internal/repository"
	"bookflow/internal/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	be := backend.NewClient(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second, &logger)

	repo := initSessionRepository(cfg, &logger)

	eventBus := events.NewEventBus()
	subscribeEventLogging(eventBus, &logger)

	disclaimerGate := gate.NewDisclaimerGate(be, models.DisclaimerValidityMonths, &logger)
	orchestrator := checkout.NewOrchestrator(be, &logger)

	manager, err := session.NewManager(
		models.Vertical(cfg.Tenant.Vertical),
		cfg.Tenant.MaxAdvanceDays,
		be, repo, disclaimerGate, orchestrator, eventBus, &logger,
	)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	httpServer := api.NewHTTPServer(cfg.API, cfg.Sessions, cfg.Tenant, manager, be, repo, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go expireIdleSessions(ctx, manager, time.Duration(cfg.Sessions.TTLSeconds)*time.Second, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App, cfg.Tenant)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// initSessionRepository prefers redis with a memory fallback; without redis
// configured the process runs on memory alone, which is fine for one replica.
func initSessionRepository(cfg *config.Config, logger *zerolog.Logger) domain.SessionRepository {
	ttl := time.Duration(cfg.Sessions.TTLSeconds) * time.Second
	memory := repository.NewMemorySessionRepository(ttl)

	if !cfg.Redis.Enabled {
		logger.Info().Msg("session store: memory")
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing on memory store")
		return memory
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("session store: redis with memory failover")
	primary := repository.NewRedisSessionRepository(client, ttl)
	return repository.NewFailoverSessionRepository(primary, memory, logger)
}

func subscribeEventLogging(bus *events.EventBus, logger *zerolog.Logger) {
	for _, eventType := range []string{
		events.EventSessionStarted,
		events.EventSessionCancelled,
		events.EventSessionExpired,
		events.EventBookingConfirmed,
		events.EventPaymentRedirect,
		events.EventPaymentCancelled,
		events.EventSubmissionFailed,
	} {
		et := eventType
		bus.Subscribe(et, func(event *events.Event) error {
			logger.Info().Str("event", et).RawJSON("payload", event.Payload).Msg("session event")
			return nil
		})
	}
}

// expireIdleSessions sweeps the live controller map so sessions abandoned
// mid-flow do not outlive the snapshot TTL in memory.
func expireIdleSessions(ctx context.Context, manager *session.Manager, ttl time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := manager.ExpireIdle(ttl); n > 0 {
				logger.Debug().Int("expired", n).Msg("idle sessions dropped")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Int("http_port", cfg.API.Port).
		Str("vertical", cfg.Tenant.Vertical).
		Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("booking API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
