package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/recipe-import/internal/config"
	"github.com/cuongbtq/recipe-import/internal/importer/storage"
	"github.com/cuongbtq/recipe-import/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStores_Memory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.StorageDriverMemory}}

	stores, err := OpenStores(cfg, logger.NewDiscard().Logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, stores.Jobs)
	assert.Nil(t, stores.DB)
	assert.NoError(t, stores.HealthCheck(context.Background()))
	assert.NoError(t, stores.Close())
}

func TestRabbitMQConfig(t *testing.T) {
	cfg := &config.RabbitMQConfig{
		Host:       "mq",
		Port:       5672,
		Exchange:   config.ExchangeConfig{Name: "imports_exchange", Type: "direct", Durable: true},
		Queue:      config.QueueConfig{Name: "imports_queue", Durable: true, DeadLetterQueue: "imports_dead"},
		RoutingKey: "imports",
		Publish:    config.PublishConfig{RetryAttempts: 4, RetryInterval: 50 * time.Millisecond, BackoffMultiplier: 1.5},
	}

	got := RabbitMQConfig(cfg)
	assert.Equal(t, "imports_exchange", got.ExchangeName)
	assert.Equal(t, "imports_queue", got.QueueName)
	assert.Equal(t, "imports", got.RoutingKey)
	assert.Equal(t, "imports_dead", got.DeadLetterQueue)
	assert.Equal(t, 4, got.Publish.Retries)
	assert.Equal(t, 1.5, got.Publish.Multiplier)
}

func TestPostgresConfig_URL(t *testing.T) {
	got := PostgresConfig(&config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "recipes",
		Password: "p@ss",
		Database: "recipes_db",
		SSLMode:  "disable",
	})
	assert.Equal(t, "postgres://recipes:p%40ss@db:5433/recipes_db?sslmode=disable", got.URL())
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(&config.FetcherConfig{BaseURL: "https://posts.example.com/api", Timeout: time.Second}, logger.NewDiscard().Logger)
	require.NoError(t, err)
	assert.NotNil(t, f)
}
