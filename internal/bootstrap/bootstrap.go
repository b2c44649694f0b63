// Package bootstrap builds the runtime components shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/recipe-import/internal/config"
	"github.com/cuongbtq/recipe-import/internal/database"
	"github.com/cuongbtq/recipe-import/internal/fetcher"
	"github.com/cuongbtq/recipe-import/internal/importer/storage"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
	"github.com/cuongbtq/recipe-import/shared/logger"
	"github.com/cuongbtq/recipe-import/shared/postgresql"
	"github.com/cuongbtq/recipe-import/shared/rabbitmq"
)

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// PostgresConfig maps the database section onto the client configuration
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the client configuration
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		DeadLetterQueue:    cfg.Queue.DeadLetterQueue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		Publish: rabbitmq.RetryPolicy{
			Retries:    cfg.Publish.RetryAttempts,
			Delay:      cfg.Publish.RetryInterval,
			Multiplier: cfg.Publish.BackoffMultiplier,
		},
	}
}

// OpenRabbitMQ connects to the broker and declares the job queue
func OpenRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// NewFetcher builds the HTTP post fetcher
func NewFetcher(cfg *config.FetcherConfig, logger *slog.Logger) (*fetcher.HTTPFetcher, error) {
	return fetcher.NewHTTPFetcher(fetcher.Config{
		BaseURL:         cfg.BaseURL,
		APIToken:        cfg.APIToken,
		Timeout:         cfg.Timeout,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		RatePerSecond:   cfg.RatePerSecond,
		Burst:           cfg.Burst,
		AllowPrivateNet: cfg.AllowPrivateNet,
	}, logger)
}

// Stores bundles the job store and recipe repository of one backend
type Stores struct {
	Jobs    storage.JobStore
	Recipes store.Repository
	DB      *postgresql.Client // nil for the memory driver
}

// OpenStores opens the configured storage backend, running migrations first
// when storage.migrate_on_start is set.
func OpenStores(cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if !cfg.UsesPostgres() {
		logger.Warn("Using in-memory storage; jobs and recipes are lost on restart")
		return &Stores{
			Jobs:    storage.NewMemoryStore(),
			Recipes: store.NewMemoryRepository(),
		}, nil
	}

	pgCfg := PostgresConfig(&cfg.Database)

	if cfg.Storage.MigrateOnStart {
		logger.Info("Running database migrations")
		if err := database.RunMigrations(pgCfg.URL()); err != nil {
			return nil, err
		}
	}

	client, err := postgresql.NewClient(pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Stores{
		Jobs:    storage.NewPostgresStore(client, logger),
		Recipes: store.NewPostgresRepository(client, logger),
		DB:      client,
	}, nil
}

// HealthCheck pings the database, if any
func (s *Stores) HealthCheck(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.HealthCheck(ctx)
}

// Close releases the database connection, if any
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
