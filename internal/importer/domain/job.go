package domain

import "time"

// Job is a bulk import job. It is owned by the job store and only changes
// through the store's atomic operations.
type Job struct {
	ID              string
	Status          JobStatus
	TotalPosts      int
	ProcessedPosts  int
	SuccessfulPosts int
	FailedPosts     int
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// View projects the job into its read-only status representation
func (j *Job) View() *JobStatusView {
	return &JobStatusView{
		ID:              j.ID,
		Status:          j.Status,
		TotalPosts:      j.TotalPosts,
		ProcessedPosts:  j.ProcessedPosts,
		SuccessfulPosts: j.SuccessfulPosts,
		FailedPosts:     j.FailedPosts,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

// JobStatusView is what status queries return
type JobStatusView struct {
	ID              string
	Status          JobStatus
	TotalPosts      int
	ProcessedPosts  int
	SuccessfulPosts int
	FailedPosts     int
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Remaining is the number of items without a recorded outcome
func (v *JobStatusView) Remaining() int {
	return v.TotalPosts - v.ProcessedPosts
}

// Item is one post's progress record within a job. Position is the 1-based
// index of the post in the submitted list.
type Item struct {
	ID             string
	JobID          string
	PostID         string
	Position       int
	Status         ItemStatus
	ResultRecipeID string
	ErrorCode      string
	ErrorDetail    string
	CreatedAt      time.Time
	ClaimedAt      *time.Time
	FinishedAt     *time.Time
}

// Outcome is the terminal result recorded for a claimed item
type Outcome struct {
	Status      ItemStatus
	RecipeID    string
	ErrorCode   string
	ErrorDetail string
}

// Succeeded builds a successful outcome pointing at the created recipe
func Succeeded(recipeID string) Outcome {
	return Outcome{Status: ItemStatusSucceeded, RecipeID: recipeID}
}

// Failed builds a failed outcome
func Failed(code, detail string) Outcome {
	return Outcome{Status: ItemStatusFailed, ErrorCode: code, ErrorDetail: detail}
}

// Validate checks the outcome is a well-formed terminal state
func (o Outcome) Validate() error {
	switch o.Status {
	case ItemStatusSucceeded:
		if o.RecipeID == "" {
			return ErrInvalidOutcome
		}
	case ItemStatusFailed:
		if o.ErrorDetail == "" {
			return ErrInvalidOutcome
		}
	default:
		return ErrInvalidOutcome
	}
	return nil
}

// ItemFilter narrows item listings. Only items with a Position greater than
// AfterPosition are returned; PageSize 0 means no limit.
type ItemFilter struct {
	Status        ItemStatus
	AfterPosition int
	PageSize      int
}

// JobMessage represents an import job message from RabbitMQ
type JobMessage struct {
	JobID string `json:"job_id"`
}
