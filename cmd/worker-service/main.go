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

	"github.com/cuongbtq/recipe-import/internal/bootstrap"
	"github.com/cuongbtq/recipe-import/internal/config"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/cuongbtq/recipe-import/internal/worker"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	stores, err := bootstrap.OpenStores(cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := bootstrap.OpenRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

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

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Queue:         rabbitClient,
		Runner:        pool,
		Resetter:      stores.Jobs,
		WorkerID:      workerID,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		MaxJobs:       cfg.Worker.MaxJobs,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		StaleAfter:    cfg.Worker.StaleAfter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	g.Go(func() error {
		select {
		case amqpErr, ok := <-rabbitClient.NotifyClose():
			if ok && amqpErr != nil {
				return fmt.Errorf("rabbitmq channel closed: %w", amqpErr)
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.Metrics.Enabled {
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           metrics.NewServeMux(reg, cfg.Metrics.Path),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			appLogger.Info("Metrics server listening", slog.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	appLogger.Info("Worker service started successfully")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	<-gctx.Done()
	appLogger.Info("Shutting down worker service")

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Worker service stopped with error", slog.Any("error", err))
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	return nil
}
