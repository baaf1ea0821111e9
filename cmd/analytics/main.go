// Command analytics consumes computation events from Kafka, aggregates them
// in memory (operation counts, latency percentiles, cache hit rate, error
// kinds, busiest documents) and serves the aggregate over HTTP. With a
// database configured it also snapshots the aggregate periodically. Its
// Prometheus metrics are served on metrics.port + 1.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/docstats.yaml] [-port 8081]
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
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/docstats.yaml", "path to config file")
	port := flag.Int("port", 0, "HTTP port (defaults to server.port + 1)")
	snapshotEvery := flag.Duration("snapshot-interval", time.Minute, "how often to persist the aggregate; 0 disables")
	snapshotRetain := flag.Int("snapshot-retain", aggregator.DefaultRetain, "number of snapshots kept")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = cfg.Server.Port + 1
	}

	logger.Setup(cfg.Logging)
	slog.Info("starting analytics service", "port", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.Serve(ctx, cfg.Metrics.Port+1)
	}

	agg := analytics.NewAggregator(m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.Handle())
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker("analytics")
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		s := consumer.Stats()
		if s.Errors > 0 && s.Messages == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("%d fetch errors", s.Errors)}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d handled, %d given up, lag %d", s.Handled, s.GivenUp, s.Lag),
		}
	})

	var snapshots analytics.SnapshotLister
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db, *snapshotRetain)
		snapshots = store
		if *snapshotEvery > 0 {
			store.StartPeriodicSave(ctx, agg, *snapshotEvery)
		}
		checker.RegisterOptional("database", health.PingCheck(db.Ping))
	}

	h := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		var route http.Handler = fn
		if m != nil {
			route = middleware.Metrics(m, pattern)(route)
		}
		mux.Handle(pattern, route)
	}
	handle("GET /api/v1/analytics", h.Stats)
	handle("GET /api/v1/analytics/snapshots", h.Snapshots)
	handle("GET /health/live", checker.LiveHandler())
	handle("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
