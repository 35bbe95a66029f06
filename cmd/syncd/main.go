package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	zerologlog "github.com/rs/zerolog/log"

	httpAdapter "github.com/osk/fintrack/internal/adapter/http"
	"github.com/osk/fintrack/internal/adapter/http/handler"
	"github.com/osk/fintrack/internal/adapter/http/middleware"
	postgresRepo "github.com/osk/fintrack/internal/adapter/repository/postgres"
	redisRepo "github.com/osk/fintrack/internal/adapter/repository/redis"
	"github.com/osk/fintrack/internal/adapter/transport/httpsync"
	"github.com/osk/fintrack/internal/adapter/transport/wschannel"
	"github.com/osk/fintrack/internal/infrastructure/config"
	zlog "github.com/osk/fintrack/internal/infrastructure/logger"
	"github.com/osk/fintrack/internal/infrastructure/logging"
	"github.com/osk/fintrack/internal/infrastructure/metrics"
	"github.com/osk/fintrack/internal/infrastructure/postgres"
	"github.com/osk/fintrack/internal/infrastructure/redis"
	"github.com/osk/fintrack/internal/infrastructure/syncworker"
	"github.com/osk/fintrack/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	logger := log.Logger
	accessLogger := zlog.New(zlog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	zerologlog.Logger = accessLogger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	// Repositories
	txManager := postgresRepo.NewTxManager(pool)
	queueRepo := postgresRepo.NewQueueRepository(pool)
	txRepo := postgresRepo.NewTransactionRepository(pool)
	entityRepo := postgresRepo.NewEntityRepository(pool)
	monthlyRepo := postgresRepo.NewMonthlyBalanceRepository(pool)
	stateRepo := postgresRepo.NewSyncStateRepository(pool)
	cache := redisRepo.NewCache(redisClient)
	idGen := postgresRepo.NewULIDGenerator()

	// Backend transport
	transport := httpsync.NewClient(httpsync.Config{
		BaseURL: cfg.BackendURL,
		Token:   cfg.BackendToken,
		Timeout: cfg.BackendTimeout,
	})

	m := metrics.New()

	// Use cases
	balanceUC := usecase.NewBalanceUseCase(usecase.BalanceConfig{
		TxManager:   txManager,
		TxRepo:      txRepo,
		MonthlyRepo: monthlyRepo,
		Cache:       cache,
		Logger:      logger,
		Debounce:    cfg.RecomputeDebounce,
		CacheTTL:    cfg.MonthlyCacheTTL,
		Observe: func(s usecase.RecomputeStats) {
			m.RecomputeRuns.Inc()
			m.RecomputeDuration.Observe(s.Duration.Seconds())
			m.RecomputeWrites.Observe(float64(s.BalanceWrites))
			m.SnapshotsUpserted.Add(float64(s.SnapshotsWritten))
		},
	})
	queueUC := usecase.NewSyncQueueUseCase(usecase.SyncQueueConfig{
		TxManager:  txManager,
		QueueRepo:  queueRepo,
		TxRepo:     txRepo,
		EntityRepo: entityRepo,
		Transport:  transport,
		Recompute:  balanceUC,
		IDGen:      idGen,
		Logger:     logger,
		BatchSize:  cfg.PushBatchSize,
	})
	pullUC := usecase.NewPullUseCase(usecase.PullConfig{
		TxManager:  txManager,
		QueueRepo:  queueRepo,
		TxRepo:     txRepo,
		EntityRepo: entityRepo,
		StateRepo:  stateRepo,
		Transport:  transport,
		Recompute:  balanceUC,
		Logger:     logger,
	})

	// Background workers
	monitor := syncworker.NewMonitor(syncworker.Config{
		Queue:          queueUC,
		Puller:         pullUC,
		TenantID:       cfg.TenantID,
		Logger:         logger,
		Metrics:        m,
		Interval:       cfg.MonitorInterval,
		ReclaimTimeout: cfg.ReclaimTimeout,
		PullEvery:      cfg.PullEvery,
	})
	listener := wschannel.NewListener(wschannel.Config{
		URL:      cfg.BackendStreamURL,
		TenantID: cfg.TenantID,
		Handler:  queueUC,
		Logger:   logger,
	})

	go func() {
		if err := balanceUC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("balance scheduler stopped", "error", err)
		}
	}()
	go func() {
		if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sync monitor stopped", "error", err)
		}
	}()
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stream listener stopped", "error", err)
		}
	}()

	// Admin API
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx, time.Hour)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		QueueHandler:   handler.NewQueueHandler(queueUC, cfg.TenantID, cfg.ReclaimTimeout),
		BalanceHandler: handler.NewBalanceHandler(balanceUC, cfg.TenantID),
		SyncHandler:    handler.NewSyncHandler(pullUC, cfg.TenantID),
		HealthHandler:  handler.NewHealthHandler(pool, redisClient),
		AccessLogger:   accessLogger,
		RateLimiter:    limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info("starting admin api", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Flush debounced recomputes before the pools close.
	balanceUC.Wait()

	logger.Info("stopped")
}
