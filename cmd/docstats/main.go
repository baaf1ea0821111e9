package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/cache"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/handler"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docstats/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/docstats.yaml", "path to config file")
	migrate := flag.Bool("migrate", false, "create missing tables before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging)
	slog.Info("starting docstats service", "port", cfg.Server.Port, "database", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.Serve(ctx, cfg.Metrics.Port)
	}

	var db *database.Client
	err = resilience.Retry(ctx, "database connect", resilience.Backoff{
		Attempts: 5,
		Base:     500 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.2,
	}, func(ctx context.Context) error {
		var err error
		db, err = database.New(ctx, cfg.Database)
		return err
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if *migrate {
		if err := db.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
	}

	store := provider.NewStore(db, cfg.Storage, m)
	if err := store.CheckUploadDir(ctx); err != nil {
		slog.Warn("upload directory not usable yet", "dir", cfg.Storage.UploadDir, "error", err)
	}
	if cfg.Storage.Watch {
		go func() {
			err := store.Watch(ctx, func(path string) {
				slog.Debug("document file changed", "path", path)
			})
			if err != nil {
				slog.Error("upload watcher stopped", "error", err)
			}
		}()
	}

	var redisClient *pkgredis.Client
	var backend cache.Backend
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			backend = redisClient
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	resultCache := cache.New(backend, cfg.Redis.CacheTTL, m)

	var tracker analytics.Tracker = analytics.NopTracker{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		bc := collector.NewBatchCollector(producer, collector.Options{FlushInterval: 2 * time.Second})
		bc.Start(ctx)
		defer bc.Close()
		tracker = bc
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	service := stats.New(store, store, stats.Options{
		Limit:      cfg.Stats.Limit,
		Vectorizer: cfg.Stats.Vectorizer,
		Cache:      resultCache,
		Tracer:     tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate),
		Metrics:    m,
		Tracker:    tracker,
	})

	checker := health.NewChecker("docstats")
	checker.Register("database", health.PingCheck(db.Ping))
	checker.Register("upload_dir", health.PingCheck(store.CheckUploadDir))
	if redisClient != nil {
		checker.RegisterOptional("redis", health.PingCheck(redisClient.Ping))
	}

	keys := apikey.NewValidator(db)
	routes := router.Config{
		Handler:        handler.New(service, store, resultCache, keys),
		Health:         checker,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowOrigins:   cfg.Server.AllowOrigins,
	}
	if cfg.Auth.Enabled {
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		defer limiter.Close()
		routes.Validator = keys
		routes.Limiter = limiter
	} else {
		slog.Warn("authentication disabled, trusting the X-User-ID header")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(routes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("docstats service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("docstats service stopped")
}
