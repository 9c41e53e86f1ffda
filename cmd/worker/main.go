package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PulseQueue/internal/api"
	"PulseQueue/internal/attachment"
	"PulseQueue/internal/config"
	"PulseQueue/internal/db"
	"PulseQueue/internal/email"
	"PulseQueue/internal/metrics"
	"PulseQueue/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown Signal
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Mail Transport
	// ------------------------------------------------
	transport := email.NewTransport(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPassword,
		cfg.SMTPFrom,
	)

	if err := transport.Verify(); err != nil {
		logger.Fatal("mail transport verification failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Claim & Retry Engine
	// ------------------------------------------------
	fetcher := attachment.NewFetcher(cfg.AttachmentTimeout(), cfg.AttachmentMaxElapsed())

	engine := worker.NewEngine(store, transport, fetcher, cfg.RetryBackoffBase(), logger)

	// ------------------------------------------------
	// Dispatcher + Scheduler
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	dispatcher := worker.NewDispatcher(engine, limiter, cfg.MaxConcurrent, logger)

	scheduler := worker.NewScheduler(
		store,
		dispatcher,
		cfg.BatchSize,
		cfg.PollInterval(),
		cfg.HeartbeatInterval(),
		cfg.StaleAfter(),
		logger,
	)

	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedulerDone)
	}()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Store:  store,
		Sender: engine,
		Log:    logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /enqueue", apiHandler.Enqueue)
	apiMux.HandleFunc("POST /enqueue/bulk", apiHandler.BulkEnqueue)
	apiMux.HandleFunc("POST /send", apiHandler.SendNow)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Force-exit if the drain exceeds the grace period.
	forceExit := time.AfterFunc(cfg.ShutdownGrace(), func() {
		logger.Error("graceful shutdown timed out, forcing exit")
		os.Exit(1)
	})
	defer forceExit.Stop()

	// Let the in-flight dispatch group finish.
	<-schedulerDone

	transport.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("worker shutdown complete")
}
