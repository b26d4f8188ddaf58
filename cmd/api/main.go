package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/salon-scheduler/cmd/mainconfig"
	"github.com/wolfman30/salon-scheduler/internal/actions"
	"github.com/wolfman30/salon-scheduler/internal/api/router"
	"github.com/wolfman30/salon-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-scheduler/internal/config"
	"github.com/wolfman30/salon-scheduler/internal/dayrate"
	"github.com/wolfman30/salon-scheduler/internal/events"
	"github.com/wolfman30/salon-scheduler/internal/observability/metrics"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/internal/scheduling"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon-scheduler API server", "env", cfg.Env, "port", cfg.Port)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn("redis not configured; POS sync disabled for every tenant")
	}

	metricsHandler, schedMetrics := setupMetrics()

	gate := bootstrap.BuildGate(cfg, redisClient, stores, logger).WithMetrics(schedMetrics)
	engine := scheduling.NewEngine(stores.Appointments, gate, logger).WithMetrics(schedMetrics)
	allocator := dayrate.NewAllocator(stores.DayRate, logger).
		WithMetrics(schedMetrics).
		WithMaxRange(cfg.DayRateMaxRangeDays)
	workflow := actions.NewWorkflow(stores.Actions, actions.NewEngineExecutor(engine), logger).
		WithMetrics(schedMetrics)
	if stores.Audit != nil {
		workflow.WithAuditor(stores.Audit)
	}

	routerCfg := &router.Config{
		Logger:             logger,
		Appointments:       scheduling.NewHandler(engine, logger),
		DayRate:            dayrate.NewHandler(allocator, logger),
		Actions:            actions.NewHandler(workflow, logger),
		MetricsHandler:     metricsHandler,
		HealthChecks:       stores.HealthChecks,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthSecret:         cfg.AuthJWTSecret,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	if redisClient != nil {
		routerCfg.Sync = possync.NewHandler(possync.NewSettingsStore(redisClient), possync.NewStaffMap(redisClient), logger)
		routerCfg.HealthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if stores.Outbox != nil {
		handler, err := outboxHandler(ctx, cfg, logger)
		if err != nil {
			return err
		}
		deliverer := events.NewDeliverer(stores.Outbox, handler, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval)
		g.Go(func() error { return deliverer.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if derr := engine.Drain(shutdownCtx); derr != nil {
			logger.Warn("series propagation still running at shutdown", "error", derr)
		}
		return err
	})
	return g.Wait()
}

func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

// outboxHandler publishes to SQS when a notification queue is configured and
// logs events otherwise. Events are also archived to S3 when a bucket is set.
func outboxHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, error) {
	if cfg.NotificationQueueURL == "" && cfg.EventArchiveBucket == "" {
		logger.Warn("NOTIFICATION_QUEUE_URL not set; outbox events are only logged")
		return events.NewLogHandler(logger), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var handlers events.Fanout
	if cfg.NotificationQueueURL != "" {
		handlers = append(handlers, events.NewSQSPublisher(mainconfig.NewSQSClient(awsCfg, cfg), cfg.NotificationQueueURL))
	} else {
		handlers = append(handlers, events.NewLogHandler(logger))
	}
	if cfg.EventArchiveBucket != "" {
		handlers = append(handlers, events.NewArchiver(mainconfig.NewS3Client(awsCfg, cfg), cfg.EventArchiveBucket, logger))
	}
	if len(handlers) == 1 {
		return handlers[0], nil
	}
	return handlers, nil
}
