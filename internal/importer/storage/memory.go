package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
)

// MemoryStore keeps jobs in process memory behind a single mutex
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	items    map[string]*domain.Item
	jobItems map[string][]*domain.Item
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*domain.Job),
		items:    make(map[string]*domain.Item),
		jobItems: make(map[string][]*domain.Item),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, postIDs []string) (*domain.Job, error) {
	if err := validatePostIDs(postIDs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &domain.Job{
		ID:         uuid.NewString(),
		Status:     domain.JobStatusPending,
		TotalPosts: len(postIDs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	items := make([]*domain.Item, len(postIDs))
	for i, postID := range postIDs {
		item := &domain.Item{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			PostID:    postID,
			Position:  i + 1,
			Status:    domain.ItemStatusPending,
			CreatedAt: now,
		}
		items[i] = item
		s.items[item.ID] = item
	}

	s.jobs[job.ID] = job
	s.jobItems[job.ID] = items

	clone := *job
	return &clone, nil
}

func (s *MemoryStore) ClaimNextPending(ctx context.Context, jobID string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return nil, nil
	}

	for _, item := range s.jobItems[jobID] {
		if item.Status != domain.ItemStatusPending {
			continue
		}

		now := s.now()
		item.Status = domain.ItemStatusInProgress
		item.ClaimedAt = &now

		if job.Status == domain.JobStatusPending {
			job.Status = domain.JobStatusRunning
			job.StartedAt = &now
			job.UpdatedAt = now
		}

		clone := *item
		return &clone, nil
	}

	return nil, nil
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, itemID string, outcome domain.Outcome) (*domain.Job, bool, error) {
	if err := outcome.Validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status != domain.ItemStatusInProgress {
		return nil, false, domain.ErrItemNotClaimed
	}

	now := s.now()
	item.Status = outcome.Status
	item.ResultRecipeID = outcome.RecipeID
	item.ErrorCode = outcome.ErrorCode
	item.ErrorDetail = outcome.ErrorDetail
	item.FinishedAt = &now

	job := s.jobs[item.JobID]
	job.ProcessedPosts++
	if outcome.Status == domain.ItemStatusSucceeded {
		job.SuccessfulPosts++
	} else {
		job.FailedPosts++
	}
	job.UpdatedAt = now

	finalized := s.finalizeLocked(job)

	clone := *job
	return &clone, finalized, nil
}

func (s *MemoryStore) MaybeFinalize(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	return s.finalizeLocked(job), nil
}

func (s *MemoryStore) finalizeLocked(job *domain.Job) bool {
	if job.ProcessedPosts != job.TotalPosts {
		return false
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusRunning {
		return false
	}

	now := s.now()
	job.Status = finalStatus(job.FailedPosts)
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true
}

func (s *MemoryStore) FailJob(ctx context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return nil
	}

	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.View(), nil
}

func (s *MemoryStore) ListItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.jobItems[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if item.Position <= filter.AfterPosition {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, *item)
		if filter.PageSize > 0 && len(out) == filter.PageSize {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ResetStaleItems(ctx context.Context, jobID string, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return 0, domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return 0, nil
	}

	cutoff := s.now().Add(-olderThan)
	reset := 0
	for _, item := range s.jobItems[jobID] {
		if item.Status != domain.ItemStatusInProgress {
			continue
		}
		if item.ClaimedAt == nil || !item.ClaimedAt.After(cutoff) {
			item.Status = domain.ItemStatusPending
			item.ClaimedAt = nil
			reset++
		}
	}
	return reset, nil
}

func (s *MemoryStore) ListUnfinishedJobs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids, nil
}
