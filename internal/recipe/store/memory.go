package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/recipe-import/internal/recipe"
)

// MemoryRepository keeps recipes in process memory. Stored drafts are
// copied so callers cannot mutate them afterwards.
type MemoryRepository struct {
	mu      sync.RWMutex
	recipes map[string]storedRecipe
}

type storedRecipe struct {
	createdAt time.Time
	draft     []byte
}

// NewMemoryRepository creates an empty in-memory recipe repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recipes: make(map[string]storedRecipe)}
}

func (r *MemoryRepository) SaveRecipe(ctx context.Context, draft *recipe.Draft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("%w: encode recipe: %w", ErrPersistence, err)
	}

	id := uuid.NewString()

	r.mu.Lock()
	r.recipes[id] = storedRecipe{createdAt: time.Now().UTC(), draft: data}
	r.mu.Unlock()

	return id, nil
}

func (r *MemoryRepository) GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error) {
	r.mu.RLock()
	stored, ok := r.recipes[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRecipeNotFound
	}

	out := &recipe.Recipe{ID: id, CreatedAt: stored.createdAt}
	if err := json.Unmarshal(stored.draft, &out.Draft); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return out, nil
}

// Len returns the number of stored recipes
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recipes)
}
