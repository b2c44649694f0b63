package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Dispatch modes for submitted import jobs
const (
	DispatchInProcess = "inprocess"
	DispatchQueue     = "queue"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Import   ImportConfig   `yaml:"import"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	// DeadLetterQueue collects job messages the worker rejects
	DeadLetterQueue string `yaml:"dead_letter_queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds import worker configuration.
// Concurrency is the number of item workers per job; MaxJobs is the number
// of jobs a worker service runs side by side. An IN_PROGRESS item claimed
// longer than StaleAfter ago is treated as abandoned by a dead worker.
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	MaxJobs         int           `yaml:"max_jobs"`
	ItemTimeout     time.Duration `yaml:"item_timeout"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ImportConfig holds bulk import submission settings
type ImportConfig struct {
	MaxPostsPerJob int    `yaml:"max_posts_per_job"`
	Dispatch       string `yaml:"dispatch"`
}

// FetcherConfig holds settings for the post content source
type FetcherConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIToken        string        `yaml:"api_token"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	AllowPrivateNet bool          `yaml:"allow_private_net"`
}

// StorageConfig selects the job and recipe store backend
type StorageConfig struct {
	Driver         string `yaml:"driver"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// Load reads and parses the configuration file.
// ${VAR} references are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.MaxJobs == 0 {
		c.Worker.MaxJobs = 2
	}
	if c.Worker.ItemTimeout == 0 {
		c.Worker.ItemTimeout = 30 * time.Second
	}
	if c.Worker.StaleAfter == 0 {
		c.Worker.StaleAfter = 2 * c.Worker.ItemTimeout
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Import.MaxPostsPerJob == 0 {
		c.Import.MaxPostsPerJob = 500
	}
	if c.Import.Dispatch == "" {
		c.Import.Dispatch = DispatchInProcess
	}
	if c.Fetcher.Timeout == 0 {
		c.Fetcher.Timeout = 10 * time.Second
	}
	if c.Fetcher.MaxBodyBytes == 0 {
		c.Fetcher.MaxBodyBytes = 1 << 20
	}
	if c.Fetcher.Burst == 0 {
		c.Fetcher.Burst = 1
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageDriverPostgres
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = c.Worker.MaxJobs
	}
}

// UsesPostgres reports whether the configured storage driver needs a database
func (c *Config) UsesPostgres() bool {
	return c.Storage.Driver == StorageDriverPostgres
}

// Validate checks the settings shared by every service
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	if c.Fetcher.BaseURL == "" {
		return fmt.Errorf("fetcher base_url is required")
	}

	if c.Fetcher.RatePerSecond < 0 {
		return fmt.Errorf("fetcher rate_per_second must not be negative")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ItemTimeout <= 0 {
		return fmt.Errorf("worker item_timeout must be greater than 0")
	}

	if c.Worker.StaleAfter <= c.Worker.ItemTimeout {
		return fmt.Errorf("worker stale_after must be greater than item_timeout")
	}

	return nil
}

// ValidateAPIConfig checks the settings needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Import.MaxPostsPerJob <= 0 {
		return fmt.Errorf("import max_posts_per_job must be greater than 0")
	}

	switch c.Import.Dispatch {
	case DispatchInProcess:
	case DispatchQueue:
		if c.Storage.Driver == StorageDriverMemory {
			return fmt.Errorf("queue dispatch requires postgres storage")
		}
		return c.validateRabbitMQ()
	default:
		return fmt.Errorf("unknown import dispatch mode: %q", c.Import.Dispatch)
	}

	return nil
}

// ValidateWorkerConfig checks the settings needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Storage.Driver != StorageDriverPostgres {
		return fmt.Errorf("worker service requires postgres storage")
	}

	if c.Worker.MaxJobs <= 0 {
		return fmt.Errorf("worker max_jobs must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
