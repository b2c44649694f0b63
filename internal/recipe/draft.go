// Package recipe turns raw post content into validated recipe drafts.
package recipe

import (
	"encoding/json"
	"time"
)

// RawContent is what a post fetcher returns for one post
type RawContent struct {
	PostID     string
	Title      string
	Caption    string
	Structured json.RawMessage // optional machine-readable recipe attached to the post
	SourceURL  string
	Author     string
}

// Draft is a normalized recipe that has not been persisted yet
type Draft struct {
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	PrepTimeMinutes *int        `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes *int        `json:"cook_time_minutes,omitempty"`
	Servings        *int        `json:"servings,omitempty"`
	Difficulty      string      `json:"difficulty,omitempty"`
	Category        string      `json:"category,omitempty"`
	Cuisine         string      `json:"cuisine,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
	Components      []Component `json:"components"`
	SourcePostID    string      `json:"source_post_id,omitempty"`
	SourceURL       string      `json:"source_url,omitempty"`
	Author          string      `json:"author,omitempty"`
}

// Component is a named part of a recipe with its own ingredients and steps
type Component struct {
	Name        string       `json:"name"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
}

// Ingredient is one ingredient line
type Ingredient struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// Step is one instruction. Order is for display only and is stored as given.
type Step struct {
	Order           int    `json:"order"`
	Instruction     string `json:"instruction"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Tips            string `json:"tips,omitempty"`
}

// Recipe is a persisted draft
type Recipe struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Draft
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
