package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/shared/postgresql"
)

type recipeRow struct {
	ID              string        `db:"id"`
	Title           string        `db:"title"`
	Description     string        `db:"description"`
	PrepTimeMinutes sql.NullInt64 `db:"prep_time_minutes"`
	CookTimeMinutes sql.NullInt64 `db:"cook_time_minutes"`
	Servings        sql.NullInt64 `db:"servings"`
	Difficulty      string        `db:"difficulty"`
	Category        string        `db:"category"`
	Cuisine         string        `db:"cuisine"`
	SourcePostID    string        `db:"source_post_id"`
	SourceURL       string        `db:"source_url"`
	Author          string        `db:"author"`
	CreatedAt       time.Time     `db:"created_at"`
}

type componentRow struct {
	ID       string `db:"id"`
	RecipeID string `db:"recipe_id"`
	Position int    `db:"position"`
	Name     string `db:"name"`
}

type ingredientRow struct {
	ComponentID string          `db:"component_id"`
	Position    int             `db:"position"`
	Name        string          `db:"name"`
	Quantity    sql.NullFloat64 `db:"quantity"`
	Unit        string          `db:"unit"`
	Notes       string          `db:"notes"`
	Optional    bool            `db:"optional"`
}

type stepRow struct {
	ComponentID     string        `db:"component_id"`
	Position        int           `db:"position"`
	StepOrder       int           `db:"step_order"`
	Instruction     string        `db:"instruction"`
	DurationMinutes sql.NullInt64 `db:"duration_minutes"`
	Tips            string        `db:"tips"`
}

// PostgresRepository stores recipes across the recipes, recipe_tags,
// recipe_components, component_ingredients and component_steps tables.
// Steps keep their given order value; list position is stored separately.
type PostgresRepository struct {
	client *postgresql.Client
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a recipe repository on top of a PostgreSQL client
func NewPostgresRepository(client *postgresql.Client, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		client: client,
		db:     client.GetDB(),
		logger: logger,
	}
}

func (r *PostgresRepository) SaveRecipe(ctx context.Context, draft *recipe.Draft) (string, error) {
	recipeID := uuid.NewString()

	err := r.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipes (id, title, description, prep_time_minutes, cook_time_minutes, servings,
			                     difficulty, category, cuisine, source_post_id, source_url, author)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			recipeID, draft.Title, draft.Description, nullInt(draft.PrepTimeMinutes), nullInt(draft.CookTimeMinutes),
			nullInt(draft.Servings), draft.Difficulty, draft.Category, draft.Cuisine,
			draft.SourcePostID, draft.SourceURL, draft.Author,
		); err != nil {
			return fmt.Errorf("insert recipe: %w", err)
		}

		for _, tag := range draft.Tags {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recipe_tags (recipe_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				recipeID, tag,
			); err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
		}

		for ci, c := range draft.Components {
			componentID := uuid.NewString()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recipe_components (id, recipe_id, position, name) VALUES ($1, $2, $3, $4)`,
				componentID, recipeID, ci+1, c.Name,
			); err != nil {
				return fmt.Errorf("insert component %q: %w", c.Name, err)
			}

			if len(c.Ingredients) > 0 {
				rows := make([]ingredientRow, len(c.Ingredients))
				for i, ing := range c.Ingredients {
					rows[i] = ingredientRow{
						ComponentID: componentID,
						Position:    i + 1,
						Name:        ing.Name,
						Quantity:    nullFloat(ing.Quantity),
						Unit:        ing.Unit,
						Notes:       ing.Notes,
						Optional:    ing.Optional,
					}
				}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO component_ingredients (component_id, position, name, quantity, unit, notes, optional)
					VALUES (:component_id, :position, :name, :quantity, :unit, :notes, :optional)`,
					rows,
				); err != nil {
					return fmt.Errorf("insert ingredients of %q: %w", c.Name, err)
				}
			}

			if len(c.Steps) > 0 {
				rows := make([]stepRow, len(c.Steps))
				for i, s := range c.Steps {
					rows[i] = stepRow{
						ComponentID:     componentID,
						Position:        i + 1,
						StepOrder:       s.Order,
						Instruction:     s.Instruction,
						DurationMinutes: nullInt(s.DurationMinutes),
						Tips:            s.Tips,
					}
				}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO component_steps (component_id, position, step_order, instruction, duration_minutes, tips)
					VALUES (:component_id, :position, :step_order, :instruction, :duration_minutes, :tips)`,
					rows,
				); err != nil {
					return fmt.Errorf("insert steps of %q: %w", c.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		err = classify(ctx, err)
		r.logger.Error("Failed to save recipe",
			slog.String("source_post_id", draft.SourcePostID),
			slog.Any("error", err),
		)
		return "", err
	}

	r.logger.Debug("Recipe saved",
		slog.String("recipe_id", recipeID),
		slog.String("source_post_id", draft.SourcePostID),
	)
	return recipeID, nil
}

func (r *PostgresRepository) GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrRecipeNotFound
	}

	var row recipeRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, title, description, prep_time_minutes, cook_time_minutes, servings, difficulty,
		       category, cuisine, source_post_id, source_url, author, created_at
		FROM recipes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecipeNotFound
	}
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("get recipe: %w", err))
	}

	out := &recipe.Recipe{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Draft: recipe.Draft{
			Title:           row.Title,
			Description:     row.Description,
			PrepTimeMinutes: intPtr(row.PrepTimeMinutes),
			CookTimeMinutes: intPtr(row.CookTimeMinutes),
			Servings:        intPtr(row.Servings),
			Difficulty:      row.Difficulty,
			Category:        row.Category,
			Cuisine:         row.Cuisine,
			SourcePostID:    row.SourcePostID,
			SourceURL:       row.SourceURL,
			Author:          row.Author,
		},
	}

	if err := r.db.SelectContext(ctx, &out.Tags, `SELECT tag FROM recipe_tags WHERE recipe_id = $1 ORDER BY tag`, id); err != nil {
		return nil, classify(ctx, fmt.Errorf("get tags: %w", err))
	}

	var components []componentRow
	if err := r.db.SelectContext(ctx, &components, `
		SELECT id, recipe_id, position, name FROM recipe_components
		WHERE recipe_id = $1 ORDER BY position`, id); err != nil {
		return nil, classify(ctx, fmt.Errorf("get components: %w", err))
	}

	ids := make([]string, len(components))
	for i, c := range components {
		ids[i] = c.ID
	}

	var ingredients []ingredientRow
	if err := r.db.SelectContext(ctx, &ingredients, `
		SELECT component_id, position, name, quantity, unit, notes, optional
		FROM component_ingredients
		WHERE component_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, classify(ctx, fmt.Errorf("get ingredients: %w", err))
	}

	var steps []stepRow
	if err := r.db.SelectContext(ctx, &steps, `
		SELECT component_id, position, step_order, instruction, duration_minutes, tips
		FROM component_steps
		WHERE component_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, classify(ctx, fmt.Errorf("get steps: %w", err))
	}

	index := make(map[string]int, len(components))
	out.Components = make([]recipe.Component, len(components))
	for i, c := range components {
		index[c.ID] = i
		out.Components[i].Name = c.Name
	}
	for _, ing := range ingredients {
		c := &out.Components[index[ing.ComponentID]]
		c.Ingredients = append(c.Ingredients, recipe.Ingredient{
			Name:     ing.Name,
			Quantity: floatPtr(ing.Quantity),
			Unit:     ing.Unit,
			Notes:    ing.Notes,
			Optional: ing.Optional,
		})
	}
	for _, s := range steps {
		c := &out.Components[index[s.ComponentID]]
		c.Steps = append(c.Steps, recipe.Step{
			Order:           s.StepOrder,
			Instruction:     s.Instruction,
			DurationMinutes: intPtr(s.DurationMinutes),
			Tips:            s.Tips,
		})
	}

	return out, nil
}

// queryCanceled is the SQLSTATE the server reports when a statement is
// canceled, which lib/pq triggers when the query context ends.
const queryCanceled = "57014"

// classify maps a database error to ErrStoreUnavailable when the server
// could not be reached and to ErrPersistence otherwise. A canceled or timed
// out ctx is a failure of this write only, never an outage.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == queryCanceled {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
