package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/shared/postgresql"
)

const jobColumns = `id, status, total_posts, processed_posts, successful_posts, failed_posts,
	error_message, created_at, started_at, completed_at, updated_at`

const itemColumns = `id, job_id, post_id, position, status, result_recipe_id, error_code,
	error_detail, created_at, claimed_at, finished_at`

type jobRow struct {
	ID              string         `db:"id"`
	Status          string         `db:"status"`
	TotalPosts      int            `db:"total_posts"`
	ProcessedPosts  int            `db:"processed_posts"`
	SuccessfulPosts int            `db:"successful_posts"`
	FailedPosts     int            `db:"failed_posts"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:              r.ID,
		Status:          domain.JobStatus(r.Status),
		TotalPosts:      r.TotalPosts,
		ProcessedPosts:  r.ProcessedPosts,
		SuccessfulPosts: r.SuccessfulPosts,
		FailedPosts:     r.FailedPosts,
		ErrorMessage:    r.ErrorMessage.String,
		CreatedAt:       r.CreatedAt,
		StartedAt:       nullTime(r.StartedAt),
		CompletedAt:     nullTime(r.CompletedAt),
		UpdatedAt:       r.UpdatedAt,
	}
}

type itemRow struct {
	ID             string         `db:"id"`
	JobID          string         `db:"job_id"`
	PostID         string         `db:"post_id"`
	Position       int            `db:"position"`
	Status         string         `db:"status"`
	ResultRecipeID sql.NullString `db:"result_recipe_id"`
	ErrorCode      sql.NullString `db:"error_code"`
	ErrorDetail    sql.NullString `db:"error_detail"`
	CreatedAt      time.Time      `db:"created_at"`
	ClaimedAt      sql.NullTime   `db:"claimed_at"`
	FinishedAt     sql.NullTime   `db:"finished_at"`
}

func (r *itemRow) toDomain() domain.Item {
	return domain.Item{
		ID:             r.ID,
		JobID:          r.JobID,
		PostID:         r.PostID,
		Position:       r.Position,
		Status:         domain.ItemStatus(r.Status),
		ResultRecipeID: r.ResultRecipeID.String,
		ErrorCode:      r.ErrorCode.String,
		ErrorDetail:    r.ErrorDetail.String,
		CreatedAt:      r.CreatedAt,
		ClaimedAt:      nullTime(r.ClaimedAt),
		FinishedAt:     nullTime(r.FinishedAt),
	}
}

type newItemRow struct {
	ID       string `db:"id"`
	JobID    string `db:"job_id"`
	PostID   string `db:"post_id"`
	Position int    `db:"position"`
	Status   string `db:"status"`
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresStore is the durable JobStore. Claims and outcomes are single
// conditional UPDATE statements so concurrent workers never share an item.
type PostgresStore struct {
	client *postgresql.Client
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a job store on top of a PostgreSQL client
func NewPostgresStore(client *postgresql.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		client: client,
		db:     client.GetDB(),
		logger: logger,
	}
}

func (s *PostgresStore) CreateJob(ctx context.Context, postIDs []string) (*domain.Job, error) {
	if err := validatePostIDs(postIDs); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	items := make([]newItemRow, len(postIDs))
	for i, postID := range postIDs {
		items[i] = newItemRow{
			ID:       uuid.NewString(),
			JobID:    jobID,
			PostID:   postID,
			Position: i + 1,
			Status:   string(domain.ItemStatusPending),
		}
	}

	var row jobRow
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &row, `
			INSERT INTO import_jobs (id, status, total_posts)
			VALUES ($1, $2, $3)
			RETURNING `+jobColumns,
			jobID, domain.JobStatusPending, len(postIDs),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO import_items (id, job_id, post_id, position, status)
			VALUES (:id, :job_id, :post_id, :position, :status)`,
			items,
		); err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("create job", err)
	}

	s.logger.Info("Import job created",
		slog.String("job_id", jobID),
		slog.Int("total_posts", len(postIDs)),
	)

	return row.toDomain(), nil
}

func (s *PostgresStore) ClaimNextPending(ctx context.Context, jobID string) (*domain.Item, error) {
	if uuid.Validate(jobID) != nil {
		return nil, nil
	}

	var (
		row     itemRow
		claimed bool
	)
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, `
			UPDATE import_items
			SET status = $2,
			    claimed_at = NOW(),
			    updated_at = NOW()
			WHERE id = (
				SELECT i.id
				FROM import_items i
				JOIN import_jobs j ON j.id = i.job_id
				WHERE i.job_id = $1
				  AND i.status = $3
				  AND j.status IN ($4, $5)
				ORDER BY i.position
				LIMIT 1
				FOR UPDATE OF i SKIP LOCKED
			)
			  AND status = $3
			RETURNING `+itemColumns,
			jobID, domain.ItemStatusInProgress, domain.ItemStatusPending,
			domain.JobStatusPending, domain.JobStatusRunning,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim item: %w", err)
		}
		claimed = true

		// first claim starts the job; later claims match nothing
		if _, err := tx.ExecContext(ctx, `
			UPDATE import_jobs
			SET status = $2,
			    started_at = COALESCE(started_at, NOW()),
			    updated_at = NOW()
			WHERE id = $1 AND status = $3`,
			jobID, domain.JobStatusRunning, domain.JobStatusPending,
		); err != nil {
			return fmt.Errorf("start job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("claim next pending", err)
	}
	if !claimed {
		return nil, nil
	}

	item := row.toDomain()
	s.logger.Debug("Item claimed",
		slog.String("job_id", jobID),
		slog.String("item_id", item.ID),
		slog.String("post_id", item.PostID),
	)
	return &item, nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, itemID string, outcome domain.Outcome) (*domain.Job, bool, error) {
	if err := outcome.Validate(); err != nil {
		return nil, false, err
	}
	if uuid.Validate(itemID) != nil {
		return nil, false, domain.ErrItemNotClaimed
	}

	succeeded, failed := 0, 0
	if outcome.Status == domain.ItemStatusSucceeded {
		succeeded = 1
	} else {
		failed = 1
	}

	var (
		row       jobRow
		finalized bool
	)
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		var jobID string
		err := tx.GetContext(ctx, &jobID, `
			UPDATE import_items
			SET status = $2,
			    result_recipe_id = $3,
			    error_code = $4,
			    error_detail = $5,
			    finished_at = NOW(),
			    updated_at = NOW()
			WHERE id = $1 AND status = $6
			RETURNING job_id`,
			itemID, outcome.Status, nullString(outcome.RecipeID), nullString(outcome.ErrorCode),
			nullString(outcome.ErrorDetail), domain.ItemStatusInProgress,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrItemNotClaimed
		}
		if err != nil {
			return fmt.Errorf("write item outcome: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE import_jobs
			SET processed_posts = processed_posts + 1,
			    successful_posts = successful_posts + $2,
			    failed_posts = failed_posts + $3,
			    updated_at = NOW()
			WHERE id = $1`,
			jobID, succeeded, failed,
		); err != nil {
			return fmt.Errorf("increment counters: %w", err)
		}

		finalized, err = finalizeJob(ctx, tx, jobID)
		if err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, jobID); err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrItemNotClaimed) {
		return nil, false, err
	}
	if err != nil {
		return nil, false, unavailable("record outcome", err)
	}

	job := row.toDomain()
	if finalized {
		s.logger.Info("Import job finalized",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.Int("successful_posts", job.SuccessfulPosts),
			slog.Int("failed_posts", job.FailedPosts),
		)
	}
	return job, finalized, nil
}

// finalizeJob completes the job if every item has an outcome. The status
// guard lets only one caller win.
func finalizeJob(ctx context.Context, ext sqlx.ExtContext, jobID string) (bool, error) {
	result, err := ext.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = CASE WHEN failed_posts = 0 THEN $2 ELSE $3 END,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND processed_posts = total_posts
		  AND status IN ($4, $5)`,
		jobID, domain.JobStatusCompleted, domain.JobStatusCompletedWithErrors,
		domain.JobStatusPending, domain.JobStatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("finalize job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) MaybeFinalize(ctx context.Context, jobID string) (bool, error) {
	if uuid.Validate(jobID) != nil {
		return false, domain.ErrJobNotFound
	}

	finalized, err := finalizeJob(ctx, s.db, jobID)
	if err != nil {
		return false, unavailable("maybe finalize", err)
	}
	return finalized, nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	if uuid.Validate(jobID) != nil {
		return domain.ErrJobNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)`,
		jobID, domain.JobStatusFailed, message, domain.JobStatusPending, domain.JobStatusRunning,
	)
	if err != nil {
		return unavailable("fail job", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("fail job", err)
	}
	if rows == 0 {
		// already terminal, or unknown
		if _, err := s.GetStatus(ctx, jobID); err != nil {
			return err
		}
		return nil
	}

	s.logger.Error("Import job failed",
		slog.String("job_id", jobID),
		slog.String("error", message),
	)
	return nil
}

func (s *PostgresStore) GetStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error) {
	if uuid.Validate(jobID) != nil {
		return nil, domain.ErrJobNotFound
	}

	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, unavailable("get job status", err)
	}
	return row.toDomain().View(), nil
}

func (s *PostgresStore) ListItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error) {
	if _, err := s.GetStatus(ctx, jobID); err != nil {
		return nil, err
	}

	limit := sql.NullInt64{Int64: int64(filter.PageSize), Valid: filter.PageSize > 0}

	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+`
		FROM import_items
		WHERE job_id = $1
		  AND position > $2
		  AND ($3 = '' OR status = $3)
		ORDER BY position
		LIMIT $4`,
		jobID, filter.AfterPosition, string(filter.Status), limit,
	)
	if err != nil {
		return nil, unavailable("list items", err)
	}

	items := make([]domain.Item, len(rows))
	for i := range rows {
		items[i] = rows[i].toDomain()
	}
	return items, nil
}

func (s *PostgresStore) ResetStaleItems(ctx context.Context, jobID string, olderThan time.Duration) (int, error) {
	if uuid.Validate(jobID) != nil {
		return 0, domain.ErrJobNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_items i
		SET status = $2,
		    claimed_at = NULL,
		    updated_at = NOW()
		FROM import_jobs j
		WHERE j.id = i.job_id
		  AND i.job_id = $1
		  AND i.status = $3
		  AND j.status IN ($4, $5)
		  AND (i.claimed_at IS NULL OR i.claimed_at <= NOW() - $6::double precision * INTERVAL '1 second')`,
		jobID, domain.ItemStatusPending, domain.ItemStatusInProgress,
		domain.JobStatusPending, domain.JobStatusRunning, olderThan.Seconds(),
	)
	if err != nil {
		return 0, unavailable("reset stale items", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable("reset stale items", err)
	}
	if rows > 0 {
		s.logger.Warn("Returned stale items to PENDING",
			slog.String("job_id", jobID),
			slog.Int64("items", rows),
		)
	}
	return int(rows), nil
}

func (s *PostgresStore) ListUnfinishedJobs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM import_jobs
		WHERE status IN ($1, $2)
		ORDER BY created_at, id`,
		domain.JobStatusPending, domain.JobStatusRunning,
	)
	if err != nil {
		return nil, unavailable("list unfinished jobs", err)
	}
	return ids, nil
}
