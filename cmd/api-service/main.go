package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/recipe-import/internal/api/handler"
	"github.com/cuongbtq/recipe-import/internal/api/router"
	"github.com/cuongbtq/recipe-import/internal/bootstrap"
	"github.com/cuongbtq/recipe-import/internal/config"
	"github.com/cuongbtq/recipe-import/internal/importer"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/cuongbtq/recipe-import/internal/worker"
	"github.com/cuongbtq/recipe-import/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("dispatch", cfg.Import.Dispatch),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	stores, err := bootstrap.OpenStores(cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	// in-process jobs run under jobsCtx so shutdown can stop their claiming
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	var (
		dispatcher   importer.Dispatcher
		inProcess    *importer.InProcessDispatcher
		rabbitClient *rabbitmq.Client
	)

	switch cfg.Import.Dispatch {
	case config.DispatchQueue:
		rabbitClient, err = bootstrap.OpenRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		dispatcher = importer.NewQueueDispatcher(rabbitClient, appLogger.Logger)
		appLogger.Info("RabbitMQ connection established")

	default:
		postFetcher, err := bootstrap.NewFetcher(&cfg.Fetcher, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize fetcher: %w", err)
		}

		pool := worker.NewPool(&worker.PoolConfig{
			Logger:      appLogger.Logger,
			Store:       stores.Jobs,
			Fetcher:     postFetcher,
			Saver:       stores.Recipes,
			Metrics:     collector,
			ItemTimeout: cfg.Worker.ItemTimeout,
			StaleAfter:  cfg.Worker.StaleAfter,
		})
		inProcess = importer.NewInProcessDispatcher(jobsCtx, pool, cfg.Worker.Concurrency, appLogger.Logger)
		dispatcher = inProcess
	}

	orchestrator := importer.NewOrchestrator(&importer.Config{
		Logger:         appLogger.Logger,
		Jobs:           stores.Jobs,
		Recipes:        stores.Recipes,
		Dispatcher:     dispatcher,
		Metrics:        collector,
		MaxPostsPerJob: cfg.Import.MaxPostsPerJob,
	})

	if inProcess != nil {
		// queued jobs survive on the broker; in-process ones must be picked up again
		if _, err := orchestrator.ResumeUnfinished(jobsCtx); err != nil {
			appLogger.Error("Failed to resume unfinished import jobs", slog.Any("error", err))
		}
	}

	deps := &handler.Dependencies{
		Logger:      appLogger.Logger,
		Service:     orchestrator,
		Health:      stores,
		MetricsPath: cfg.Metrics.Path,
		ServiceName: cfg.App.Name,
	}
	if cfg.Metrics.Enabled {
		deps.Gatherer = reg
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	if inProcess != nil {
		stopJobs()
		waitForJobs(inProcess, cfg.Worker.ShutdownTimeout, appLogger.Logger)
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// waitForJobs lets claimed items of in-process jobs finish, up to timeout
func waitForJobs(d *importer.InProcessDispatcher, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("In-process import jobs stopped")
	case <-time.After(timeout):
		logger.Warn("Import job shutdown timeout exceeded; unfinished items stay IN_PROGRESS")
	}
}
