package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the channel has been closed
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection and topology configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string

	// DeadLetterQueue receives deliveries the consumer rejects without
	// requeue. Empty disables dead-lettering.
	DeadLetterQueue string

	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration

	Publish RetryPolicy
}

// URL returns the AMQP URI with credentials and vhost escaped
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	vhost := strings.TrimPrefix(c.VHost, "/")
	if vhost != "" {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}
	return u.String()
}

func (c *Config) deadLetterExchange() string {
	if c.DeadLetterQueue == "" {
		return ""
	}
	return c.ExchangeName + ".dlx"
}

// RetryPolicy is an exponential backoff for publishing
type RetryPolicy struct {
	Retries    int
	Delay      time.Duration
	Multiplier float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Retries <= 0 {
		p.Retries = 3
	}
	if p.Delay <= 0 {
		p.Delay = 100 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Backoff returns the wait before retry number attempt, counting from 1
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.Delay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Client owns one connection and one channel bound to the job queue
type Client struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	closeChan chan *amqp.Error
}

// NewClient dials the broker and declares the exchange and queues
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

func (c *Client) dial() (*amqp.Connection, error) {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := max(c.config.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.DialConfig(c.config.URL(), amqpConfig)
		if err == nil {
			return conn, nil
		}

		c.logger.Warn("RabbitMQ dial failed",
			slog.String("host", c.config.Host),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
}

func (c *Client) connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	closeChan := make(chan *amqp.Error, 1)
	channel.NotifyClose(closeChan)

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.closeChan = closeChan
	c.mu.Unlock()

	c.logger.Info("RabbitMQ client ready",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("dead_letter_queue", c.config.DeadLetterQueue),
	)
	return nil
}

func (c *Client) declareTopology(ch *amqp.Channel) error {
	var queueArgs amqp.Table

	if dlx := c.config.deadLetterExchange(); dlx != "" {
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(c.config.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter queue: %w", err)
		}
		if err := ch.QueueBind(c.config.DeadLetterQueue, "", dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead letter queue: %w", err)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": dlx}
	}

	err := ch.ExchangeDeclare(
		c.config.ExchangeName,
		c.config.ExchangeType,
		c.config.ExchangeDurable,
		c.config.ExchangeAutoDelete,
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.config.QueueName,
		c.config.QueueDurable,
		c.config.QueueAutoDelete,
		c.config.QueueExclusive,
		false, // no-wait
		queueArgs,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(c.config.QueueName, c.config.RoutingKey, c.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

func (c *Client) openChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

// PublishWithRetry publishes a persistent message to the job exchange,
// retrying with exponential backoff until the policy is exhausted or ctx ends.
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	policy := c.config.Publish.withDefaults()

	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Retries+1; attempt++ {
		ch, err := c.openChannel()
		if err != nil {
			return err
		}

		msg.Timestamp = time.Now()
		lastErr = ch.PublishWithContext(ctx, c.config.ExchangeName, c.config.RoutingKey, false, false, msg)
		if lastErr == nil {
			c.logger.Debug("Job message published",
				slog.Int("attempt", attempt),
				slog.Int("body_size", len(body)),
			)
			return nil
		}

		if attempt > policy.Retries {
			break
		}

		wait := policy.Backoff(attempt)
		c.logger.Warn("Publish failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", wait),
			slog.Any("error", lastErr),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("publish canceled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", policy.Retries+1, lastErr)
}

// Qos limits unacknowledged deliveries per consumer
func (c *Client) Qos(prefetchCount int) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// Consume starts a manual-ack consumer on the job queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(
		c.config.QueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Consuming job queue",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)
	return deliveries, nil
}

// NotifyClose returns the channel that receives the broker close error
func (c *Client) NotifyClose() <-chan *amqp.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeChan
}

// Close shuts the channel and the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}
