package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets the prefetch limit and starts consuming the job queue
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if w.prefetchCount > 0 {
		if err := w.queue.Qos(w.prefetchCount); err != nil {
			return nil, err
		}
		w.logger.Info("Job queue prefetch limit set",
			slog.Int("prefetch_count", w.prefetchCount),
		)
	}

	deliveries, err := w.queue.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Consuming import jobs",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// parseJobMessage decodes a delivery body into a job message
func parseJobMessage(body []byte) (domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return msg, fmt.Errorf("%w: job_id %q is not a uuid", domain.ErrInvalidPayload, msg.JobID)
	}
	return msg, nil
}

// startMessageDispatcher validates deliveries and hands them to the job loops
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Waiting for import jobs",
		slog.String("worker_id", w.workerID),
		slog.Int("max_jobs", w.maxJobs),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Job intake stopped")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Job queue delivery channel closed")
				return
			}

			msg, err := parseJobMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead-letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &jobDelivery{msg: msg, delivery: delivery}:
				w.logger.Debug("Job dispatched to job loop",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Job intake stopped with a job in hand, returning it to the queue")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to return job message to the queue",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}
