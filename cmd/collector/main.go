// Command collector starts the event collector's HTTP server and worker pool
// in a single process, per the system's single-binary startup lifecycle.
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

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/duskport/eventcollector/internal/adapter/httpserver"
	"github.com/duskport/eventcollector/internal/adapter/observability"
	"github.com/duskport/eventcollector/internal/adapter/queue/redisqueue"
	"github.com/duskport/eventcollector/internal/adapter/repo/postgres"
	"github.com/duskport/eventcollector/internal/app"
	"github.com/duskport/eventcollector/internal/config"
	"github.com/duskport/eventcollector/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := connectStore(ctx, cfg)
	if err != nil {
		slog.Error("store connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := connectQueue(ctx, cfg)
	if err != nil {
		slog.Error("queue connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	queue := redisqueue.New(redisClient, cfg.QueuePopTimeout)
	writer := postgres.NewWriter(pool)
	eventsRepo := postgres.NewEventRepo(pool)
	statsRepo := postgres.NewStatsRepo(pool)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerPool := worker.New(queue, writer, cfg.WorkerCountOrDefault(), cfg.WriterBackoff)
	go workerPool.Run(workerCtx)

	go sampleQueueDepth(workerCtx, queue)

	checks := app.BuildReadinessChecks(queue, pool)
	srv := httpserver.NewServer(cfg, queue, eventsRepo, statsRepo, checks)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.Int("workers", cfg.WorkerCountOrDefault()))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// connectStore opens the Postgres pool and ensures the schema exists,
// retrying with bounded exponential backoff since the database may still be
// starting up alongside the collector.
func connectStore(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	op := func() error {
		p, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := postgres.EnsureSchema(ctx, p); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}
	bo := backoff.WithMaxRetries(startupBackoff(cfg), startupMaxRetries(cfg))
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("op=main.connect_store: %w", err)
	}
	return pool, nil
}

// connectQueue opens the Redis client and verifies connectivity, retrying
// with the same bounded policy as the store connection.
func connectQueue(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=main.parse_redis_url: %w", err)
	}
	client := redis.NewClient(opts)

	bo := backoff.WithMaxRetries(startupBackoff(cfg), startupMaxRetries(cfg))
	op := func() error { return client.Ping(ctx).Err() }
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("op=main.connect_queue: %w", err)
	}
	return client, nil
}

// startupBackoff builds the exponential policy shared by the store and
// queue connection retries.
func startupBackoff(cfg config.Config) *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	if cfg.StartupRetryInitial > 0 {
		expo.InitialInterval = cfg.StartupRetryInitial
	}
	return expo
}

// startupMaxRetries converts StartupRetryAttempts (the total number of
// attempts) into the retries-after-the-first count backoff.WithMaxRetries
// expects, so cfg.StartupRetryAttempts == 5 yields exactly 5 total attempts.
func startupMaxRetries(cfg config.Config) uint64 {
	if cfg.StartupRetryAttempts == 0 {
		return 0
	}
	return uint64(cfg.StartupRetryAttempts - 1)
}

// sampleQueueDepth periodically updates the queue_depth gauge for metrics.
func sampleQueueDepth(ctx context.Context, q *redisqueue.Queue) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := q.Depth(ctx)
			if err != nil {
				continue
			}
			observability.SetQueueDepth(n)
		}
	}
}
