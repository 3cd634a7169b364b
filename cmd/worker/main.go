package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/teletherapy-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/teletherapy-platform/internal/config"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}).Component("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Error("worker requires DATABASE_URL and REDIS_ADDR")
		os.Exit(1)
	}

	pool, err := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis unavailable", "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	svc, err := bootstrap.BuildServices(ctx, cfg, pool, redisClient, m, logger)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	wg := startWorkers(ctx, svc, cfg, redisClient, m, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("worker shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
}

// startWorkers launches the reminder loop and, when an outbox is wired,
// the stream deliverer. The returned group finishes once ctx is cancelled.
func startWorkers(ctx context.Context, svc *bootstrap.Services, cfg *appconfig.Config, redisClient *redis.Client, m *metrics.BookingMetrics, logger *logging.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup

	reminders := svc.ReminderWorker(cfg, m, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reminders.Start(ctx)
	}()

	if svc.Outbox != nil && redisClient != nil {
		deliverer := events.NewDeliverer(svc.Outbox, events.NewStreamPublisher(redisClient, cfg.NotifyStream), logger).
			WithInterval(cfg.OutboxInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliverer.Start(ctx)
		}()
	} else {
		logger.Warn("outbox delivery disabled")
	}
	return &wg
}
