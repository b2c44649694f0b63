package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/recipe-import/internal/fetcher"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/importer/storage"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
)

// ErrJobAborted is returned by Pool.Run when a store failure stopped the job
// and it was marked FAILED.
var ErrJobAborted = errors.New("import job aborted")

// PoolConfig holds the collaborators of a Pool
type PoolConfig struct {
	Logger      *slog.Logger
	Store       storage.JobStore
	Fetcher     fetcher.PostFetcher
	Parser      *recipe.Parser
	Saver       store.Saver
	Metrics     metrics.MetricsCollector
	ItemTimeout time.Duration
	// StaleAfter defaults to twice ItemTimeout
	StaleAfter  time.Duration
}

// Pool drains the pending items of a job with a bounded number of workers
type Pool struct {
	logger      *slog.Logger
	store       storage.JobStore
	fetcher     fetcher.PostFetcher
	parser      *recipe.Parser
	saver       store.Saver
	metrics     metrics.MetricsCollector
	itemTimeout time.Duration
	staleAfter  time.Duration
}

// NewPool creates a new pool
func NewPool(cfg *PoolConfig) *Pool {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	parser := cfg.Parser
	if parser == nil {
		parser = recipe.NewParser()
	}
	timeout := cfg.ItemTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * timeout
	}

	return &Pool{
		logger:      cfg.Logger,
		store:       cfg.Store,
		fetcher:     cfg.Fetcher,
		parser:      parser,
		saver:       cfg.Saver,
		metrics:     m,
		itemTimeout: timeout,
		staleAfter:  staleAfter,
	}
}

// jobRun is the shared state of the workers draining one job
type jobRun struct {
	jobID string
	once  sync.Once
	stop  chan struct{}
	err   error
}

// abort stops every worker of the run; only the first error is kept
func (r *jobRun) abort(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.stop)
	})
}

func (r *jobRun) aborted() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Run processes the pending items of jobID with up to concurrency workers and
// blocks until they have all exited. Canceling ctx stops claiming; items
// already claimed still run to completion. Items another pool left
// IN_PROGRESS are reclaimed once they are staleAfter old.
func (p *Pool) Run(ctx context.Context, jobID string, concurrency int) error {
	if concurrency <= 0 {
		return domain.NewValidationError("concurrency", "must be greater than 0")
	}

	status, err := p.store.GetStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}
	if status.Status.IsTerminal() {
		p.logger.Info("Job already finished, nothing to run",
			slog.String("job_id", jobID),
			slog.String("status", string(status.Status)),
		)
		return nil
	}

	workers := min(concurrency, status.Remaining())

	p.logger.Info("Spawning worker pool",
		slog.String("job_id", jobID),
		slog.Int("concurrency", workers),
		slog.Int("remaining", status.Remaining()),
	)

	p.metrics.RecordPoolStarted()
	defer p.metrics.RecordPoolStopped()

	// ctx may already be canceled below; job bookkeeping must still land
	bg := context.WithoutCancel(ctx)

	for {
		run := &jobRun{jobID: jobID, stop: make(chan struct{})}

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(workerNum int) {
				defer wg.Done()
				p.workerLoop(ctx, run, workerNum)
			}(i)
		}
		wg.Wait()

		if run.err != nil {
			return p.failJob(bg, jobID, run.err)
		}

		finalized, err := p.store.MaybeFinalize(bg, jobID)
		if err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to finalize job: %w", err))
		}
		if finalized {
			p.recordFinalized(bg, jobID)
			return nil
		}

		if ctx.Err() != nil {
			p.logger.Warn("Job run interrupted before all items were claimed",
				slog.String("job_id", jobID),
				slog.Any("error", ctx.Err()),
			)
			return domain.NewRetryableError(fmt.Errorf("job run interrupted: %w", ctx.Err()))
		}

		if err := p.reclaimStaleItems(ctx, jobID); err != nil {
			if errors.Is(err, errJobSettled) {
				return nil
			}
			return err
		}
	}
}

// errJobSettled stops the run loop when another pool finished the job
var errJobSettled = errors.New("job settled elsewhere")

// reclaimStaleItems handles items still IN_PROGRESS after this pool drained
// the job: they belong to another pool, live or dead. It waits staleAfter and
// then returns the claims that are still open to PENDING.
func (p *Pool) reclaimStaleItems(ctx context.Context, jobID string) error {
	status, err := p.store.GetStatus(ctx, jobID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}
	if status.Status.IsTerminal() {
		return errJobSettled
	}

	p.logger.Warn("Job has items claimed elsewhere, waiting for them to go stale",
		slog.String("job_id", jobID),
		slog.Int("remaining", status.Remaining()),
		slog.Duration("stale_after", p.staleAfter),
	)

	select {
	case <-time.After(p.staleAfter):
	case <-ctx.Done():
		return domain.NewRetryableError(fmt.Errorf("job run interrupted: %w", ctx.Err()))
	}

	n, err := p.store.ResetStaleItems(ctx, jobID, p.staleAfter)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to reset stale items: %w", err))
	}
	if n > 0 {
		p.logger.Warn("Reclaimed stale items", slog.String("job_id", jobID), slog.Int("items", n))
	}
	return nil
}

// workerLoop claims and processes items until none are left, the run is
// aborted or ctx is canceled
func (p *Pool) workerLoop(ctx context.Context, run *jobRun, workerNum int) {
	logger := p.logger.With(
		slog.String("job_id", run.jobID),
		slog.Int("worker_num", workerNum),
	)
	logger.Debug("Worker goroutine started")

	for {
		if run.aborted() {
			logger.Debug("Worker goroutine stopping - job aborted")
			return
		}
		if ctx.Err() != nil {
			logger.Debug("Worker goroutine stopping - context canceled")
			return
		}

		item, err := p.store.ClaimNextPending(ctx, run.jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to claim item", slog.Any("error", err))
			run.abort(fmt.Errorf("claim failed: %w", err))
			return
		}
		if item == nil {
			logger.Debug("Worker goroutine stopping - no pending items")
			return
		}

		p.processItem(ctx, run, item, logger)
	}
}

func (p *Pool) failJob(ctx context.Context, jobID string, cause error) error {
	p.logger.Error("Aborting import job",
		slog.String("job_id", jobID),
		slog.Any("error", cause),
	)

	if err := p.store.FailJob(ctx, jobID, cause.Error()); err != nil {
		p.logger.Error("Failed to mark job as FAILED",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w (cause: %v)", err, cause))
	}

	p.metrics.RecordJobFinalized(string(domain.JobStatusFailed))
	return fmt.Errorf("%w: %w", ErrJobAborted, cause)
}

func (p *Pool) recordFinalized(ctx context.Context, jobID string) {
	status, err := p.store.GetStatus(ctx, jobID)
	if err != nil {
		p.logger.Warn("Failed to load finalized job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	p.metrics.RecordJobFinalized(string(status.Status))
	p.logger.Info("Job finalized",
		slog.String("job_id", jobID),
		slog.String("status", string(status.Status)),
		slog.Int("successful_posts", status.SuccessfulPosts),
		slog.Int("failed_posts", status.FailedPosts),
	)
}
