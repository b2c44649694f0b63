package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageQueue is the part of the RabbitMQ client the worker service consumes from
type MessageQueue interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// JobRunner runs one import job to completion
type JobRunner interface {
	Run(ctx context.Context, jobID string, concurrency int) error
}

// StaleItemResetter returns abandoned IN_PROGRESS items of a job to PENDING
type StaleItemResetter interface {
	ResetStaleItems(ctx context.Context, jobID string, olderThan time.Duration) (int, error)
}

// Config holds worker service configuration
type Config struct {
	Logger        *slog.Logger
	Queue         MessageQueue
	Runner        JobRunner
	Resetter      StaleItemResetter
	WorkerID      string
	QueueName     string
	Concurrency   int
	MaxJobs       int
	PrefetchCount int
	// StaleAfter is the claim age past which a redelivered job's
	// IN_PROGRESS items are given back. It must exceed the item timeout.
	StaleAfter    time.Duration
}

// Worker consumes job messages and runs up to MaxJobs jobs side by side
type Worker struct {
	logger        *slog.Logger
	queue         MessageQueue
	runner        JobRunner
	resetter      StaleItemResetter
	workerID      string
	queueName     string
	concurrency   int
	maxJobs       int
	prefetchCount int
	staleAfter    time.Duration
	jobsChan      chan *jobDelivery
	wg            sync.WaitGroup
}

// jobDelivery is a validated job message together with the delivery to settle
type jobDelivery struct {
	msg      domain.JobMessage
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Worker{
		logger:        cfg.Logger,
		queue:         cfg.Queue,
		runner:        cfg.Runner,
		resetter:      cfg.Resetter,
		workerID:      cfg.WorkerID,
		queueName:     cfg.QueueName,
		concurrency:   cfg.Concurrency,
		maxJobs:       maxJobs,
		prefetchCount: cfg.PrefetchCount,
		staleAfter:    cfg.StaleAfter,
		jobsChan:      make(chan *jobDelivery),
	}
}

// Start consumes job messages until ctx is canceled or the broker closes the
// delivery channel, then waits for running jobs to return.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_jobs", w.maxJobs),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnJobLoops(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))

	if ctx.Err() == nil {
		return fmt.Errorf("rabbitmq delivery channel closed")
	}
	return nil
}

// spawnJobLoops spawns one goroutine per job slot
func (w *Worker) spawnJobLoops(ctx context.Context) {
	for i := 0; i < w.maxJobs; i++ {
		w.wg.Add(1)
		go w.jobLoop(ctx, i)
	}
}

// jobLoop runs dispatched jobs one at a time and settles their deliveries
func (w *Worker) jobLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	slotName := fmt.Sprintf("%s-%d", w.workerID, slot)

	for jd := range w.jobsChan {
		logger := w.logger.With(
			slog.String("slot", slotName),
			slog.String("job_id", jd.msg.JobID),
			slog.Uint64("delivery_tag", jd.delivery.DeliveryTag),
		)
		logger.Info("Worker received job", slog.Bool("redelivered", jd.delivery.Redelivered))

		err := w.processJob(ctx, jd, logger)
		w.settle(jd.delivery, err, logger)
	}
}

func (w *Worker) processJob(ctx context.Context, jd *jobDelivery, logger *slog.Logger) error {
	if jd.delivery.Redelivered && w.resetter != nil {
		// the previous consumer may have died mid-run; give its old claims back
		n, err := w.resetter.ResetStaleItems(ctx, jd.msg.JobID, w.staleAfter)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return err
			}
			return domain.NewRetryableError(fmt.Errorf("failed to reset stale items: %w", err))
		}
		if n > 0 {
			logger.Warn("Reset stale items of redelivered job", slog.Int("items", n))
		}
	}

	return w.runner.Run(ctx, jd.msg.JobID, w.concurrency)
}

// settle ACKs or NACKs a delivery based on the job result
func (w *Worker) settle(delivery amqp.Delivery, err error, logger *slog.Logger) {
	if err == nil || errors.Is(err, ErrJobAborted) {
		if err != nil {
			logger.Warn("Job aborted and marked FAILED", slog.Any("error", err))
		}
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.Any("error", ackErr))
			return
		}
		logger.Info("Job message acknowledged")
		return
	}

	requeue := shouldRequeueJob(err)
	logger.Error("Job processing failed",
		slog.Any("error", err),
		slog.Bool("requeue", requeue),
	)

	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.Any("error", nackErr))
		return
	}
	logger.Info("Message NACKed", slog.Bool("requeue", requeue))
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
