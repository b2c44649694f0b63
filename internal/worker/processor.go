package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/recipe-import/internal/fetcher"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
)

// processItem runs one claimed item through fetch, parse and save, then
// records its outcome. Item failures are stored on the item and never stop
// the run; only store outages abort it.
func (p *Pool) processItem(ctx context.Context, run *jobRun, item *domain.Item, logger *slog.Logger) {
	logger = logger.With(
		slog.String("item_id", item.ID),
		slog.String("post_id", item.PostID),
	)

	started := time.Now()

	// a claimed item always runs to completion, even when the job is canceled
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.itemTimeout)
	defer cancel()

	outcome, stage, fatal := p.execute(itemCtx, item)

	job, finalized, err := p.store.RecordOutcome(context.WithoutCancel(ctx), item.ID, outcome)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotClaimed) {
			logger.Warn("Item outcome already recorded, skipping", slog.Any("error", err))
			return
		}
		logger.Error("Failed to record item outcome", slog.Any("error", err))
		run.abort(fmt.Errorf("record outcome failed: %w", err))
		return
	}

	p.metrics.RecordItemDuration(time.Since(started))
	if outcome.Status == domain.ItemStatusSucceeded {
		p.metrics.RecordItemSucceeded()
		logger.Info("Item imported", slog.String("recipe_id", outcome.RecipeID))
	} else {
		p.metrics.RecordItemFailed(stage)
		logger.Warn("Item failed",
			slog.String("error_code", outcome.ErrorCode),
			slog.String("error_detail", outcome.ErrorDetail),
		)
	}

	if !finalized && job.ProcessedPosts == job.TotalPosts {
		if finalized, err = p.store.MaybeFinalize(context.WithoutCancel(ctx), job.ID); err != nil {
			logger.Warn("Failed to finalize job", slog.Any("error", err))
		}
	}
	if finalized {
		p.recordFinalized(context.WithoutCancel(ctx), job.ID)
		return
	}

	if fatal != nil {
		run.abort(fatal)
	}
}

// execute produces the outcome for one item. The returned error is non-nil
// only when the recipe store is unreachable, which no other item can get past.
func (p *Pool) execute(ctx context.Context, item *domain.Item) (domain.Outcome, string, error) {
	fetchStarted := time.Now()
	raw, err := p.fetcher.Fetch(ctx, item.PostID)
	p.metrics.RecordFetchLatency(time.Since(fetchStarted))
	if err != nil {
		return fetchFailure(err), metrics.StageFetch, nil
	}

	draft, err := p.parser.Parse(raw)
	if err != nil {
		return domain.Failed(domain.ErrorCodeParse, err.Error()), metrics.StageParse, nil
	}

	recipeID, err := p.saver.SaveRecipe(ctx, draft)
	if err != nil {
		outcome := domain.Failed(domain.ErrorCodePersistence, err.Error())
		if errors.Is(err, store.ErrStoreUnavailable) {
			return outcome, metrics.StagePersist, fmt.Errorf("recipe store unavailable: %w", err)
		}
		return outcome, metrics.StagePersist, nil
	}

	return domain.Succeeded(recipeID), "", nil
}

func fetchFailure(err error) domain.Outcome {
	code := fetcher.CodeUpstream
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		code = fetchErr.Code
	}
	return domain.Failed(domain.ErrorCodeFetchPrefix+string(code), err.Error())
}
