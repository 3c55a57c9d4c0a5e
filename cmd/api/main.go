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
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/umrah-va-gateway/api"
	"github.com/josh-kwaku/umrah-va-gateway/internal/config"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/handler"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/metrics"
	"github.com/josh-kwaku/umrah-va-gateway/internal/middleware"
	"github.com/josh-kwaku/umrah-va-gateway/internal/notify"
	"github.com/josh-kwaku/umrah-va-gateway/internal/queue"
	"github.com/josh-kwaku/umrah-va-gateway/internal/repository"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
	"github.com/josh-kwaku/umrah-va-gateway/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("umrah-va-gateway", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.PoolConfig())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(reg)
	}

	gwCfg := cfg.GatewayConfig()
	gw, err := gateway.New(gwCfg)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("payment gateway configured", "mode", gw.Mode(), "live_credentials", gwCfg.HasLiveCredentials())

	sinks, pingers, closeSinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	fanout := notify.NewFanout(logging.Component(logger, "notify"), m, sinks...)

	txdb := repository.NewDB(db)
	vaRepo := repository.NewVirtualAccountRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	jobs := queue.New(db, cfg.QueueConfig(), m, logging.Component(logger, "queue"))
	listener := pq.NewListener(cfg.DatabaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("queue listener event", "event", ev, "error", err)
		}
	})
	defer listener.Close()
	if err := jobs.UseListener(listener); err != nil {
		// Workers still poll, so a missing listener only slows pickup.
		logger.Warn("queue listener unavailable, polling only", "error", err)
	}

	vaService := service.NewVirtualAccountService(vaRepo, customerRepo, gw, m, cfg.VATTL)
	ingestor := service.NewNotificationIngestor(txdb, gw, vaRepo, notificationRepo, jobs, m)
	processor := service.NewNotificationProcessor(txdb, notificationRepo, vaRepo, paymentRepo, customerRepo, fanout, m, logging.Component(logger, "processor"))
	notificationService := service.NewNotificationService(txdb, notificationRepo, jobs)
	diagnostics := service.NewDiagnosticsService(gwCfg, jobs, fanout.Sinks())
	sweeper := service.NewSweeper(vaService, idempotencyRepo, jobs, cfg.VASweepInterval, logging.Component(logger, "sweeper"))

	healthHandler := handler.NewHealthHandler(db, pingers)
	vaHandler := handler.NewVirtualAccountHandler(vaService)
	webhookHandler := handler.NewWebhookHandler(ingestor)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	gatewayHandler := handler.NewGatewayHandler(diagnostics)

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Tracing(middleware.Logging(middleware.Recovery(middleware.Auth(cfg.JWTSecret)(h))))
	}
	authedIdempotent := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.Idempotency(idempotencyRepo)(h).ServeHTTP)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return middleware.Tracing(middleware.Logging(middleware.Recovery(h)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler(reg))
	}
	mux.HandleFunc("GET /docs", handler.ServeDocs("/docs/openapi.yaml"))
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.Spec))

	mux.Handle("POST /api/v1/webhooks/midtrans", public(webhookHandler.ReceiveMidtrans))

	mux.Handle("POST /api/v1/customers/{customerId}/virtual-accounts", authedIdempotent(vaHandler.Issue))
	mux.Handle("GET /api/v1/customers/{customerId}/virtual-accounts", authed(vaHandler.ListByCustomer))
	mux.Handle("GET /api/v1/customers/{customerId}/virtual-accounts/active", authed(vaHandler.ListActiveByCustomer))
	mux.Handle("GET /api/v1/virtual-accounts/{id}", authed(vaHandler.Get))
	mux.Handle("POST /api/v1/virtual-accounts/{id}/close", authed(vaHandler.Close))
	mux.Handle("GET /api/v1/virtual-accounts/{id}/gateway-status", authed(vaHandler.ProviderStatus))

	mux.Handle("GET /api/v1/payment-notifications", authed(notificationHandler.List))
	mux.Handle("POST /api/v1/payment-notifications/{id}/retry", authed(notificationHandler.Retry))
	mux.Handle("GET /api/v1/payment-gateway/status", authed(gatewayHandler.Status))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return jobs.Run(gctx, processor.Process)
	})

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// buildSinks connects the optional downstream consumers. A sink that fails to
// connect at startup is skipped; payments still settle without it.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]notify.Sink, map[string]handler.Pinger, func(), error) {
	var (
		sinks   []notify.Sink
		closers []func() error
	)
	pingers := map[string]handler.Pinger{}

	if cfg.RedisURL != "" {
		rs, err := notify.NewRedisSink(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis sink: %w", err)
		}
		sinks = append(sinks, rs)
		pingers["redis"] = rs
		closers = append(closers, rs.Close)
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		ks, err := notify.NewKafkaSink(brokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warn("kafka sink disabled", "brokers", brokers, "error", err)
		} else {
			sinks = append(sinks, ks)
			closers = append(closers, ks.Close)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("failed to close downstream sink", "error", err)
			}
		}
	}
	return sinks, pingers, closeAll, nil
}
