// Package store persists recipes produced by the import pipeline.
package store

import (
	"context"
	"errors"

	"github.com/cuongbtq/recipe-import/internal/recipe"
)

var (
	// ErrPersistence is returned when a recipe could not be written
	ErrPersistence = errors.New("recipe persistence failed")

	// ErrStoreUnavailable is returned when the recipe store cannot be reached at all
	ErrStoreUnavailable = errors.New("recipe store unavailable")

	// ErrRecipeNotFound is returned when a recipe id is unknown
	ErrRecipeNotFound = errors.New("recipe not found")
)

// Saver writes a validated draft and returns the new recipe id
type Saver interface {
	SaveRecipe(ctx context.Context, draft *recipe.Draft) (string, error)
}

// Repository is a Saver that can also read recipes back
type Repository interface {
	Saver
	GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error)
}
