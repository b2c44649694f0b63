// Package storage persists bulk import jobs and their items.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
)

// JobStore owns the job/item aggregate. Every mutation of a job or item
// goes through one of its atomic operations.
type JobStore interface {
	// CreateJob stores a PENDING job with one PENDING item per post id, in
	// input order. Duplicate ids each get their own item.
	CreateJob(ctx context.Context, postIDs []string) (*domain.Job, error)

	// ClaimNextPending moves one PENDING item to IN_PROGRESS and returns it.
	// It returns (nil, nil) when nothing is left to claim.
	ClaimNextPending(ctx context.Context, jobID string) (*domain.Item, error)

	// RecordOutcome writes the terminal item state, bumps the job counters
	// and finalizes the job when it was the last item, all at once.
	// finalized is true only for the call that completed the job.
	RecordOutcome(ctx context.Context, itemID string, outcome domain.Outcome) (job *domain.Job, finalized bool, err error)

	// MaybeFinalize completes the job when every item has an outcome.
	// It reports true at most once per job.
	MaybeFinalize(ctx context.Context, jobID string) (bool, error)

	// FailJob marks a non-terminal job FAILED with a job-level error
	FailJob(ctx context.Context, jobID, message string) error

	GetStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error)

	ListItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error)

	// ResetStaleItems returns IN_PROGRESS items of a non-terminal job that
	// were claimed at least olderThan ago to PENDING. olderThan must exceed
	// the longest time a live worker can hold a claim.
	ResetStaleItems(ctx context.Context, jobID string, olderThan time.Duration) (int, error)

	// ListUnfinishedJobs returns the ids of PENDING and RUNNING jobs, oldest first
	ListUnfinishedJobs(ctx context.Context) ([]string, error)
}

func validatePostIDs(postIDs []string) error {
	if len(postIDs) == 0 {
		return domain.NewValidationError("post_ids", "must not be empty")
	}
	return nil
}

// finalStatus is the terminal status for a job whose items all have outcomes
func finalStatus(failedPosts int) domain.JobStatus {
	if failedPosts == 0 {
		return domain.JobStatusCompleted
	}
	return domain.JobStatusCompletedWithErrors
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
