package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
)

// runJobStoreTests exercises the JobStore contract against one implementation
func runJobStoreTests(t *testing.T, newStore func(t *testing.T) JobStore) {
	ctx := context.Background()

	t.Run("create job stores one pending item per post id", func(t *testing.T) {
		s := newStore(t)

		job, err := s.CreateJob(ctx, []string{"p1", "p2", "p2"})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, 3, job.TotalPosts)
		assert.Zero(t, job.ProcessedPosts)
		assert.Nil(t, job.StartedAt)

		items, err := s.ListItems(ctx, job.ID, domain.ItemFilter{})
		require.NoError(t, err)
		require.Len(t, items, 3)
		for i, item := range items {
			assert.Equal(t, i+1, item.Position)
			assert.Equal(t, domain.ItemStatusPending, item.Status)
			assert.Equal(t, job.ID, item.JobID)
		}
		assert.Equal(t, []string{"p1", "p2", "p2"}, []string{items[0].PostID, items[1].PostID, items[2].PostID})
		assert.NotEqual(t, items[1].ID, items[2].ID)
	})

	t.Run("create job rejects empty input", func(t *testing.T) {
		s := newStore(t)

		job, err := s.CreateJob(ctx, nil)
		require.Error(t, err)
		assert.Nil(t, job)

		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("first claim starts the job", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2"})
		require.NoError(t, err)

		first, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "p1", first.PostID)
		assert.Equal(t, domain.ItemStatusInProgress, first.Status)
		assert.NotNil(t, first.ClaimedAt)

		status, err := s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, status.Status)
		require.NotNil(t, status.StartedAt)
		startedAt := *status.StartedAt

		second, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.Equal(t, "p2", second.PostID)

		status, err = s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, startedAt.Equal(*status.StartedAt))

		none, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("claim on unknown job returns nothing", func(t *testing.T) {
		s := newStore(t)

		item, err := s.ClaimNextPending(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("record outcome updates counters and finalizes once", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2"})
		require.NoError(t, err)

		a, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		b, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)

		got, finalized, err := s.RecordOutcome(ctx, a.ID, domain.Succeeded(uuid.NewString()))
		require.NoError(t, err)
		assert.False(t, finalized)
		assert.Equal(t, 1, got.ProcessedPosts)
		assert.Equal(t, 1, got.SuccessfulPosts)
		assert.Equal(t, domain.JobStatusRunning, got.Status)

		got, finalized, err = s.RecordOutcome(ctx, b.ID, domain.Failed("FETCH_NOT_FOUND", "post not found"))
		require.NoError(t, err)
		assert.True(t, finalized)
		assert.Equal(t, 2, got.ProcessedPosts)
		assert.Equal(t, 1, got.FailedPosts)
		assert.Equal(t, domain.JobStatusCompletedWithErrors, got.Status)
		assert.NotNil(t, got.CompletedAt)

		again, err := s.MaybeFinalize(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, again)

		_, _, err = s.RecordOutcome(ctx, b.ID, domain.Succeeded(uuid.NewString()))
		assert.ErrorIs(t, err, domain.ErrItemNotClaimed)

		items, err := s.ListItems(ctx, job.ID, domain.ItemFilter{})
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusSucceeded, items[0].Status)
		assert.NotEmpty(t, items[0].ResultRecipeID)
		assert.Empty(t, items[0].ErrorDetail)
		assert.Equal(t, domain.ItemStatusFailed, items[1].Status)
		assert.Empty(t, items[1].ResultRecipeID)
		assert.Equal(t, "post not found", items[1].ErrorDetail)
		assert.Equal(t, "FETCH_NOT_FOUND", items[1].ErrorCode)
		assert.NotNil(t, items[1].FinishedAt)
	})

	t.Run("all successes complete the job", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1"})
		require.NoError(t, err)

		item, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)

		got, finalized, err := s.RecordOutcome(ctx, item.ID, domain.Succeeded(uuid.NewString()))
		require.NoError(t, err)
		assert.True(t, finalized)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
	})

	t.Run("record outcome rejects unclaimed items and malformed outcomes", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1"})
		require.NoError(t, err)

		items, err := s.ListItems(ctx, job.ID, domain.ItemFilter{})
		require.NoError(t, err)

		_, _, err = s.RecordOutcome(ctx, items[0].ID, domain.Succeeded(uuid.NewString()))
		assert.ErrorIs(t, err, domain.ErrItemNotClaimed)

		_, _, err = s.RecordOutcome(ctx, items[0].ID, domain.Succeeded(""))
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

		_, _, err = s.RecordOutcome(ctx, uuid.NewString(), domain.Failed(domain.ErrorCodeParse, "bad"))
		assert.ErrorIs(t, err, domain.ErrItemNotClaimed)
	})

	t.Run("failed job stops claims and is never finalized", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2"})
		require.NoError(t, err)

		item, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)

		require.NoError(t, s.FailJob(ctx, job.ID, "recipe store unreachable"))

		none, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		// the in-flight item still gets its outcome
		got, finalized, err := s.RecordOutcome(ctx, item.ID, domain.Failed(domain.ErrorCodePersistence, "down"))
		require.NoError(t, err)
		assert.False(t, finalized)
		assert.Equal(t, domain.JobStatusFailed, got.Status)

		status, err := s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, status.Status)
		assert.Equal(t, "recipe store unreachable", status.ErrorMessage)
		assert.Nil(t, status.CompletedAt)

		// terminal jobs are left alone
		require.NoError(t, s.FailJob(ctx, job.ID, "second failure"))
		status, err = s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "recipe store unreachable", status.ErrorMessage)
	})

	t.Run("unknown job lookups", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()

		_, err := s.GetStatus(ctx, id)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)

		_, err = s.ListItems(ctx, id, domain.ItemFilter{})
		assert.ErrorIs(t, err, domain.ErrJobNotFound)

		assert.ErrorIs(t, s.FailJob(ctx, id, "x"), domain.ErrJobNotFound)

		_, err = s.GetStatus(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("list items filters and pages by position", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2", "p3", "p4"})
		require.NoError(t, err)

		_, err = s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)

		page, err := s.ListItems(ctx, job.ID, domain.ItemFilter{AfterPosition: 1, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, 2, page[0].Position)
		assert.Equal(t, 3, page[1].Position)

		pending, err := s.ListItems(ctx, job.ID, domain.ItemFilter{Status: domain.ItemStatusPending})
		require.NoError(t, err)
		assert.Len(t, pending, 3)

		inProgress, err := s.ListItems(ctx, job.ID, domain.ItemFilter{Status: domain.ItemStatusInProgress})
		require.NoError(t, err)
		require.Len(t, inProgress, 1)
		assert.Equal(t, "p1", inProgress[0].PostID)
	})

	t.Run("reset stale items returns claims to pending", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2", "p3"})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err := s.ClaimNextPending(ctx, job.ID)
			require.NoError(t, err)
		}

		n, err := s.ResetStaleItems(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n, "fresh claims belong to a live worker")

		n, err = s.ResetStaleItems(ctx, job.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		item, err := s.ClaimNextPending(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "p1", item.PostID)
	})

	t.Run("list unfinished jobs skips terminal jobs", func(t *testing.T) {
		s := newStore(t)

		pending, err := s.CreateJob(ctx, []string{"p1"})
		require.NoError(t, err)
		running, err := s.CreateJob(ctx, []string{"p1", "p2"})
		require.NoError(t, err)
		failed, err := s.CreateJob(ctx, []string{"p1"})
		require.NoError(t, err)

		_, err = s.ClaimNextPending(ctx, running.ID)
		require.NoError(t, err)
		require.NoError(t, s.FailJob(ctx, failed.ID, "broker gone"))

		ids, err := s.ListUnfinishedJobs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{pending.ID, running.ID}, ids)
	})

	t.Run("concurrent claims never share an item", func(t *testing.T) {
		s := newStore(t)

		const total = 100
		postIDs := make([]string, total)
		for i := range postIDs {
			postIDs[i] = fmt.Sprintf("post-%03d", i)
		}
		job, err := s.CreateJob(ctx, postIDs)
		require.NoError(t, err)

		var (
			mu        sync.Mutex
			seen      = make(map[string]int)
			finalized atomic.Int32
			wg        sync.WaitGroup
			done      = make(chan struct{})
		)

		// observe snapshots while workers run
		snapshotErr := make(chan error, 1)
		go func() {
			defer close(snapshotErr)
			for {
				select {
				case <-done:
					return
				default:
				}
				v, err := s.GetStatus(ctx, job.ID)
				if err != nil {
					snapshotErr <- err
					return
				}
				if v.ProcessedPosts != v.SuccessfulPosts+v.FailedPosts || v.ProcessedPosts > v.TotalPosts {
					snapshotErr <- fmt.Errorf("inconsistent snapshot: %+v", v)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()

		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					item, err := s.ClaimNextPending(ctx, job.ID)
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					if item == nil {
						return
					}

					mu.Lock()
					seen[item.ID]++
					mu.Unlock()

					outcome := domain.Succeeded(uuid.NewString())
					if item.Position%10 == 0 {
						outcome = domain.Failed(domain.ErrorCodeParse, "no ingredients")
					}
					_, fin, err := s.RecordOutcome(ctx, item.ID, outcome)
					if err != nil {
						t.Errorf("record: %v", err)
						return
					}
					if fin {
						finalized.Add(1)
					}
				}
			}()
		}
		wg.Wait()
		close(done)
		require.NoError(t, <-snapshotErr)

		assert.Len(t, seen, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "item %s processed %d times", id, n)
		}
		assert.Equal(t, int32(1), finalized.Load())

		status, err := s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompletedWithErrors, status.Status)
		assert.Equal(t, total, status.ProcessedPosts)
		assert.Equal(t, 90, status.SuccessfulPosts)
		assert.Equal(t, 10, status.FailedPosts)
	})

	t.Run("racing finalization transitions exactly once", func(t *testing.T) {
		s := newStore(t)
		job, err := s.CreateJob(ctx, []string{"p1", "p2", "p3"})
		require.NoError(t, err)

		claimed := make([]*domain.Item, 0, 3)
		for i := 0; i < 3; i++ {
			item, err := s.ClaimNextPending(ctx, job.ID)
			require.NoError(t, err)
			claimed = append(claimed, item)
		}

		var (
			wg          sync.WaitGroup
			transitions atomic.Int32
			start       = make(chan struct{})
		)
		for _, item := range claimed {
			wg.Add(1)
			go func(item *domain.Item) {
				defer wg.Done()
				<-start
				_, fin, err := s.RecordOutcome(ctx, item.ID, domain.Succeeded(uuid.NewString()))
				if err != nil {
					t.Errorf("record: %v", err)
					return
				}
				if fin {
					transitions.Add(1)
				}
			}(item)
		}
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					fin, err := s.MaybeFinalize(ctx, job.ID)
					if err != nil {
						t.Errorf("maybe finalize: %v", err)
						return
					}
					if fin {
						transitions.Add(1)
					}
				}
			}()
		}
		close(start)
		wg.Wait()

		if fin, err := s.MaybeFinalize(ctx, job.ID); assert.NoError(t, err) && fin {
			transitions.Add(1)
		}

		assert.Equal(t, int32(1), transitions.Load())
		status, err := s.GetStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, status.Status)
		assert.Equal(t, 3, status.ProcessedPosts)
	})
}

func TestMemoryStore(t *testing.T) {
	runJobStoreTests(t, func(t *testing.T) JobStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ResetStaleItemsHonorsClaimAge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	job, err := s.CreateJob(ctx, []string{"p1", "p2"})
	require.NoError(t, err)

	old, err := s.ClaimNextPending(ctx, job.ID)
	require.NoError(t, err)
	clock = clock.Add(45 * time.Second)
	_, err = s.ClaimNextPending(ctx, job.ID)
	require.NoError(t, err)
	clock = clock.Add(30 * time.Second)

	n, err := s.ResetStaleItems(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.ListItems(ctx, job.ID, domain.ItemFilter{Status: domain.ItemStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, old.ID, pending[0].ID)
}

func TestMemoryStore_ListUnfinishedJobsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.CreateJob(ctx, []string{"p1"})
	require.NoError(t, err)
	clock = clock.Add(time.Second)
	second, err := s.CreateJob(ctx, []string{"p1"})
	require.NoError(t, err)

	ids, err := s.ListUnfinishedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids)
}
