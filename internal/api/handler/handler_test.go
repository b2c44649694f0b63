package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuongbtq/recipe-import/internal/importer"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
	"github.com/cuongbtq/recipe-import/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService fails every call with err
type stubService struct {
	err error
}

func (s *stubService) SubmitBulkImport(ctx context.Context, postIDs []string) (*importer.SubmitResult, error) {
	return nil, s.err
}

func (s *stubService) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error) {
	return nil, s.err
}

func (s *stubService) ListJobItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error) {
	return nil, s.err
}

func (s *stubService) ImportSinglePost(ctx context.Context, draft *recipe.Draft) (*recipe.Recipe, error) {
	return nil, s.err
}

func (s *stubService) GetRecipe(ctx context.Context, recipeID string) (*recipe.Recipe, error) {
	return nil, s.err
}

func (s *stubService) GenerateSteps(title string, ingredients []recipe.Ingredient) []recipe.Step {
	return nil
}

func TestImportHandler_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "validation",
			err:        domain.NewValidationError("post_ids", "must not be empty"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `"field":"post_ids"`,
		},
		{
			name:       "recipe violations",
			err:        recipe.Violations{{Field: "title", Message: "is required"}}.Err(),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `"violations":[{"field":"title","message":"is required"}]`,
		},
		{
			name:       "job not found",
			err:        fmt.Errorf("get status: %w", domain.ErrJobNotFound),
			wantStatus: http.StatusNotFound,
			wantBody:   "job not found",
		},
		{
			name:       "job store unavailable",
			err:        fmt.Errorf("create job: %w: dial tcp", domain.ErrStoreUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "storage temporarily unavailable",
		},
		{
			name:       "recipe store unavailable",
			err:        fmt.Errorf("save: %w", store.ErrStoreUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "storage temporarily unavailable",
		},
		{
			name:       "unexpected",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Failed to create import job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewImportHandler(&Dependencies{
				Logger:  logger.NewDiscard().Logger,
				Service: &stubService{err: tt.err},
			})
			r := gin.New()
			r.POST("/imports", h.CreateImport)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/imports", strings.NewReader(`{"post_ids":["p1"]}`))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestImportHandler_GetRecipeNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewImportHandler(&Dependencies{
		Logger:  logger.NewDiscard().Logger,
		Service: &stubService{err: store.ErrRecipeNotFound},
	})
	r := gin.New()
	r.GET("/recipes/:recipe_id", h.GetRecipe)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/0b6c3c9e-6a59-4d0b-9c59-1f2a3b4c5d6e", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "recipe_id must be a valid UUID", body["error"])
}
