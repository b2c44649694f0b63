// Package importer is the entry point of the bulk recipe import pipeline.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/importer/storage"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
)

// SubmitResult is returned for an accepted bulk import
type SubmitResult struct {
	JobID      string
	Status     domain.JobStatus
	TotalPosts int
	Message    string
}

// Config holds the orchestrator's collaborators
type Config struct {
	Logger         *slog.Logger
	Jobs           storage.JobStore
	Recipes        store.Repository
	Dispatcher     Dispatcher
	Metrics        metrics.MetricsCollector
	MaxPostsPerJob int
}

// Orchestrator accepts import requests and answers status queries
type Orchestrator struct {
	logger         *slog.Logger
	jobs           storage.JobStore
	recipes        store.Repository
	dispatcher     Dispatcher
	metrics        metrics.MetricsCollector
	maxPostsPerJob int
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg *Config) *Orchestrator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Orchestrator{
		logger:         cfg.Logger,
		jobs:           cfg.Jobs,
		recipes:        cfg.Recipes,
		dispatcher:     cfg.Dispatcher,
		metrics:        m,
		maxPostsPerJob: cfg.MaxPostsPerJob,
	}
}

// SubmitBulkImport creates a job for postIDs and dispatches it. It returns as
// soon as the job is stored; processing happens in the background.
func (o *Orchestrator) SubmitBulkImport(ctx context.Context, postIDs []string) (*SubmitResult, error) {
	ids, err := o.cleanPostIDs(postIDs)
	if err != nil {
		return nil, err
	}

	job, err := o.jobs.CreateJob(ctx, ids)
	if err != nil {
		o.logger.Error("Failed to create import job",
			slog.Int("total_posts", len(ids)),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	o.metrics.RecordJobSubmitted(job.TotalPosts)
	o.logger.Info("Import job created",
		slog.String("job_id", job.ID),
		slog.Int("total_posts", job.TotalPosts),
	)

	if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
		o.logger.Error("Failed to dispatch import job",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		if failErr := o.jobs.FailJob(context.WithoutCancel(ctx), job.ID, "dispatch failed: "+err.Error()); failErr != nil {
			o.logger.Error("Failed to mark undispatched job as FAILED",
				slog.String("job_id", job.ID),
				slog.Any("error", failErr),
			)
		} else {
			o.metrics.RecordJobFinalized(string(domain.JobStatusFailed))
		}
		return nil, fmt.Errorf("failed to dispatch job %s: %w", job.ID, err)
	}

	return &SubmitResult{
		JobID:      job.ID,
		Status:     job.Status,
		TotalPosts: job.TotalPosts,
		Message:    fmt.Sprintf("Import of %d posts accepted", job.TotalPosts),
	}, nil
}

// ResumeUnfinished dispatches every PENDING or RUNNING job again. In-process
// jobs die with the process that ran them, so the API service calls this on
// startup. Claims the dead process left open are reclaimed by the pool once
// they go stale. It returns the number of jobs dispatched.
func (o *Orchestrator) ResumeUnfinished(ctx context.Context) (int, error) {
	ids, err := o.jobs.ListUnfinishedJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}

	var errs []error
	resumed := 0
	for _, id := range ids {
		if err := o.dispatcher.Dispatch(ctx, id); err != nil {
			o.logger.Error("Failed to resume import job",
				slog.String("job_id", id),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("job %s: %w", id, err))
			continue
		}
		resumed++
	}

	if resumed > 0 {
		o.logger.Info("Resumed unfinished import jobs", slog.Int("jobs", resumed))
	}
	return resumed, errors.Join(errs...)
}

func (o *Orchestrator) cleanPostIDs(postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return nil, domain.NewValidationError("post_ids", "must not be empty")
	}
	if o.maxPostsPerJob > 0 && len(postIDs) > o.maxPostsPerJob {
		return nil, domain.NewValidationError("post_ids", fmt.Sprintf("must not contain more than %d ids", o.maxPostsPerJob))
	}

	ids := make([]string, len(postIDs))
	for i, id := range postIDs {
		ids[i] = strings.TrimSpace(id)
		if ids[i] == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("post_ids[%d]", i), "must not be blank")
		}
	}
	return ids, nil
}

// GetJobStatus returns the current view of a job
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error) {
	return o.jobs.GetStatus(ctx, jobID)
}

// ListJobItems returns the per-post progress of a job in input order
func (o *Orchestrator) ListJobItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown item status %q", filter.Status))
	}
	if filter.PageSize < 0 || filter.AfterPosition < 0 {
		return nil, domain.NewValidationError("page", "must not be negative")
	}
	return o.jobs.ListItems(ctx, jobID, filter)
}

// ImportSinglePost normalizes, validates and saves one structured recipe,
// bypassing the job machinery. Validation failures are *recipe.ValidationError.
func (o *Orchestrator) ImportSinglePost(ctx context.Context, draft *recipe.Draft) (*recipe.Recipe, error) {
	recipe.Normalize(draft)
	if err := recipe.Validate(draft).Err(); err != nil {
		return nil, err
	}

	id, err := o.recipes.SaveRecipe(ctx, draft)
	if err != nil {
		o.logger.Error("Failed to save single recipe", slog.Any("error", err))
		return nil, err
	}

	saved, err := o.recipes.GetRecipe(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecipeNotFound) {
			return nil, fmt.Errorf("saved recipe %s disappeared: %w", id, store.ErrPersistence)
		}
		return nil, err
	}

	o.logger.Info("Recipe imported", slog.String("recipe_id", id))
	return saved, nil
}

// GetRecipe returns a stored recipe
func (o *Orchestrator) GetRecipe(ctx context.Context, recipeID string) (*recipe.Recipe, error) {
	return o.recipes.GetRecipe(ctx, recipeID)
}

// GenerateSteps produces default instructions for a title and ingredient list
func (o *Orchestrator) GenerateSteps(title string, ingredients []recipe.Ingredient) []recipe.Step {
	return recipe.GenerateSteps(title, ingredients)
}
