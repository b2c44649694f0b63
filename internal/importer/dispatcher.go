package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
)

// Dispatcher hands a created job to whatever runs its worker pool
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// JobRunner runs one import job to completion
type JobRunner interface {
	Run(ctx context.Context, jobID string, concurrency int) error
}

// InProcessDispatcher runs each job on a goroutine of the current process
type InProcessDispatcher struct {
	runner      JobRunner
	concurrency int
	logger      *slog.Logger
	ctx         context.Context
	wg          sync.WaitGroup
}

// NewInProcessDispatcher creates a dispatcher whose jobs run under ctx;
// canceling it stops claiming new items.
func NewInProcessDispatcher(ctx context.Context, runner JobRunner, concurrency int, logger *slog.Logger) *InProcessDispatcher {
	return &InProcessDispatcher{
		runner:      runner,
		concurrency: concurrency,
		logger:      logger,
		ctx:         ctx,
	}
}

// Dispatch starts the job and returns without waiting for it
func (d *InProcessDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.runner.Run(d.ctx, jobID, d.concurrency); err != nil {
			d.logger.Error("Import job run failed",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

// Publisher publishes a message body to the job queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// QueueDispatcher publishes jobs to RabbitMQ for the worker service
type QueueDispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueueDispatcher creates a new queue dispatcher
func NewQueueDispatcher(publisher Publisher, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	d.logger.Info("Job message published", slog.String("job_id", jobID))
	return nil
}
