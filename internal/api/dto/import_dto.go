package dto

import (
	"time"

	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/recipe"
)

type CreateImportRequest struct {
	PostIDs []string `json:"post_ids"`
}

type CreateImportResponse struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	TotalPosts int    `json:"total_posts"`
	Message    string `json:"message"`
}

type JobStatusDTO struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	TotalPosts      int    `json:"total_posts"`
	ProcessedPosts  int    `json:"processed_posts"`
	SuccessfulPosts int    `json:"successful_posts"`
	FailedPosts     int    `json:"failed_posts"`
	RemainingPosts  int    `json:"remaining_posts"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

type ListItemsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListItemsResponse struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type ItemDTO struct {
	ItemID      string `json:"item_id"`
	PostID      string `json:"post_id"`
	Position    int    `json:"position"`
	Status      string `json:"status"`
	RecipeID    string `json:"recipe_id,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	ClaimedAt   string `json:"claimed_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

type GenerateStepsRequest struct {
	Title       string              `json:"title" binding:"required"`
	Ingredients []recipe.Ingredient `json:"ingredients"`
}

type GenerateStepsResponse struct {
	Steps []recipe.Step `json:"steps"`
}

// NewJobStatusDTO converts a job status view for the wire
func NewJobStatusDTO(v *domain.JobStatusView) JobStatusDTO {
	return JobStatusDTO{
		ID:              v.ID,
		Status:          string(v.Status),
		TotalPosts:      v.TotalPosts,
		ProcessedPosts:  v.ProcessedPosts,
		SuccessfulPosts: v.SuccessfulPosts,
		FailedPosts:     v.FailedPosts,
		RemainingPosts:  v.Remaining(),
		ErrorMessage:    v.ErrorMessage,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
		StartedAt:       formatTime(v.StartedAt),
		CompletedAt:     formatTime(v.CompletedAt),
	}
}

// NewItemDTO converts an import item for the wire
func NewItemDTO(it domain.Item) ItemDTO {
	return ItemDTO{
		ItemID:      it.ID,
		PostID:      it.PostID,
		Position:    it.Position,
		Status:      string(it.Status),
		RecipeID:    it.ResultRecipeID,
		ErrorCode:   it.ErrorCode,
		ErrorDetail: it.ErrorDetail,
		ClaimedAt:   formatTime(it.ClaimedAt),
		FinishedAt:  formatTime(it.FinishedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
