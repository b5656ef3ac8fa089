package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/httpserver"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/app"
	"github.com/pscheid92/sheetpulse/internal/broadcast"
	"github.com/pscheid92/sheetpulse/internal/platform/config"
	"github.com/pscheid92/sheetpulse/internal/platform/logging"
	"github.com/pscheid92/sheetpulse/internal/platform/version"
	"github.com/pscheid92/sheetpulse/internal/sheet"
)

const shutdownTimeout = 10 * time.Second

type shutdownDeps struct {
	server        *httpserver.Server
	stopScheduler context.CancelFunc
	schedulerDone <-chan struct{}
	registry      *broadcast.Registry
	worker        *sheet.Worker
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		deps.stopScheduler()
		select {
		case <-deps.schedulerDone:
		case <-shutdownCtx.Done():
			slog.Warn("Scheduler did not stop in time")
		}

		if err := deps.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		closed := deps.registry.CloseAll(broadcast.ReasonShutdown)
		slog.Info("Websocket sessions closed", "count", closed)

		deps.worker.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "build", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	promRegistry := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(promRegistry)
	refreshMetrics := metrics.NewRefreshMetrics(promRegistry)

	fetcher := sheet.NewFetcher(sheet.FetcherConfig{
		URL:              cfg.SheetURL,
		RequestTimeout:   cfg.RequestTimeout,
		MaxAttempts:      cfg.MaxRetries,
		BackoffUnit:      cfg.RetryBackoffUnit,
		RateLimitBackoff: cfg.RateLimitBackoff,
		Clock:            clock,
	}, refreshMetrics)
	worker := sheet.NewWorker()

	registry := broadcast.NewRegistry(cfg.MaxConnections, clock, wsMetrics)
	broadcaster := broadcast.NewBroadcaster(registry, clock, cfg.SendTimeout, wsMetrics)

	engine := app.NewEngine(app.EngineConfig{
		Source:       fetcher,
		Normalizer:   worker,
		Cache:        sheet.NewSnapshotCache(),
		Registry:     registry,
		Broadcaster:  broadcaster,
		Clock:        clock,
		ProbeTimeout: cfg.ProbeTimeout,
		Metrics:      refreshMetrics,
	})

	scheduler := app.NewScheduler(clock, metrics.NewSchedulerMetrics(promRegistry))
	for _, job := range engine.Jobs(cfg.UpdateInterval, cfg.StaleSweepInterval) {
		scheduler.Add(job)
	}

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Engine:      engine,
		Registry:    registry,
		Broadcaster: broadcaster,
		Clock:       clock,
		Prometheus:  promRegistry,
		HTTPMetrics: metrics.NewHTTPMetrics(promRegistry),
		WSMetrics:   wsMetrics,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "snapshot", Check: func(context.Context) error {
				_, err := engine.Current()
				return err
			}},
		},
	})

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(schedulerCtx); err != nil {
			slog.Error("Scheduler stopped with error", "error", err)
		}
	}()
	slog.Info("Scheduler started",
		"sheet_url", cfg.SheetURL,
		"update_interval", cfg.UpdateInterval,
		"stale_sweep_interval", cfg.StaleSweepInterval,
	)

	done := runGracefulShutdown(shutdownDeps{
		server:        srv,
		stopScheduler: stopScheduler,
		schedulerDone: schedulerDone,
		registry:      registry,
		worker:        worker,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
