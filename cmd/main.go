package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/internal/adapters/http/api"
	"github.com/okian/verdict/internal/adapters/http/feed"
	"github.com/okian/verdict/internal/adapters/http/swagger"
	"github.com/okian/verdict/internal/adapters/mq/queue"
	"github.com/okian/verdict/internal/adapters/mq/worker"
	"github.com/okian/verdict/internal/adapters/repository"
	"github.com/okian/verdict/internal/adapters/sqldb"
	service "github.com/okian/verdict/internal/app"
	"github.com/okian/verdict/internal/auth"
	"github.com/okian/verdict/internal/config"
	"github.com/okian/verdict/internal/domain/rubric"
	"github.com/okian/verdict/pkg/logger"
	"github.com/okian/verdict/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 35 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = os.Stderr.WriteString("verdict: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	dir, err := directory.LoadFile(ctx, cfg.DirectoryFile)
	if err != nil {
		_ = store.Close()
		return err
	}
	rb, err := buildRubric(cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc := service.New(
		service.WithStore(store),
		service.WithDirectory(dir),
		service.WithRubric(rb),
		service.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	handler, cleanup, err := buildHandler(ctx, cfg, svc, log)
	if err != nil {
		return err
	}
	defer cleanup()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("storage", cfg.StorageDriver),
			logger.Float64("scale", rb.Scale()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore picks the evaluation store for cfg.StorageDriver. SQL backends
// are migrated before use.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StorageDriver == "" || cfg.StorageDriver == "memory" {
		return repository.NewMemoryStore(), nil
	}
	driver, err := sqldb.ParseDriver(cfg.StorageDriver)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.OpenMigrated(ctx, driver, cfg.StorageDSN)
	if err != nil {
		return nil, err
	}
	return repository.NewSQLStore(db, driver, repository.WithOwnedDB()), nil
}

func buildRubric(cfg *config.Config) (*rubric.Rubric, error) {
	criteria := make([]rubric.Criterion, 0, len(cfg.Rubric))
	for _, c := range cfg.Rubric {
		criteria = append(criteria, rubric.Criterion{Name: c.Name, Weight: c.Weight, MaxScore: c.MaxScore})
	}
	rb, err := rubric.New(criteria, rubric.WithScale(cfg.RubricScale))
	if err != nil {
		return nil, fmt.Errorf("rubric: %w", err)
	}
	return rb, nil
}

// buildHandler assembles the router with docs, feed and rate limiting. The
// returned cleanup drains pending announcements, closes feed subscribers and
// releases the limiter.
func buildHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) (http.Handler, func(), error) {
	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return nil, nil, err
	}

	var limiter api.RateLimiter
	if cfg.RedisAddr != "" {
		rl, err := api.DialRedisRateLimiter(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.Named("ratelimit"))
		if err != nil {
			return nil, nil, err
		}
		limiter = rl
	} else {
		limiter = api.NewMemoryRateLimiter()
	}

	opts := []api.Option{
		api.WithLogger(log.Named("http")),
		api.WithCORSOrigins(cfg.Origins()...),
		api.WithRequestTimeout(time.Duration(cfg.RequestTimeoutSec) * time.Second),
		api.WithRateLimiter(limiter, cfg.SubmitRateLimit, time.Duration(cfg.SubmitRateWindowSec)*time.Second),
	}
	var (
		hub  *feed.Hub
		pool *worker.Pool
	)
	if cfg.FeedEnabled {
		hub = feed.NewHub()
		var q *queue.InMemoryQueue
		q, pool = startAnnouncements(ctx, cfg, hub, log.Named("announce"))
		opts = append(opts,
			api.WithPublisher(q),
			api.WithFeed(feed.NewHandler(hub, log.Named("feed"), nil)),
		)
	}

	router := api.NewServer(svc, verifier, opts...).Router()
	swagger.Register(ctx, router)

	cleanup := func() {
		if pool != nil {
			if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn(ctx, "announcement workers did not drain", logger.Error(err))
			}
		}
		if hub != nil {
			hub.Close()
		}
		if err := limiter.Close(); err != nil {
			log.Warn(ctx, "rate limiter close failed", logger.Error(err))
		}
	}
	return router, cleanup, nil
}

// startAnnouncements starts the workers that move queued announcements onto
// hub. Workers outlive ctx: Pool.Shutdown stops them once the queue drains.
func startAnnouncements(ctx context.Context, cfg *config.Config, hub worker.Broadcaster, log logger.Logger) (*queue.InMemoryQueue, *worker.Pool) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.FeedQueueSize))
	pool := worker.NewPool(cfg.FeedWorkers, q, hub, log)
	pool.Start(context.WithoutCancel(ctx))
	return q, pool
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
