package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/recipe-import/internal/importer"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// ImportService is what the HTTP layer needs from the import pipeline
type ImportService interface {
	SubmitBulkImport(ctx context.Context, postIDs []string) (*importer.SubmitResult, error)
	GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error)
	ListJobItems(ctx context.Context, jobID string, filter domain.ItemFilter) ([]domain.Item, error)
	ImportSinglePost(ctx context.Context, draft *recipe.Draft) (*recipe.Recipe, error)
	GetRecipe(ctx context.Context, recipeID string) (*recipe.Recipe, error)
	GenerateSteps(title string, ingredients []recipe.Ingredient) []recipe.Step
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Service     ImportService
	Health      HealthChecker
	Gatherer    prometheus.Gatherer
	MetricsPath string
	ServiceName string
}

// ImportHandler handles import and recipe HTTP requests
type ImportHandler struct {
	logger  *slog.Logger
	service ImportService
}

// NewImportHandler creates a new ImportHandler instance
func NewImportHandler(deps *Dependencies) *ImportHandler {
	return &ImportHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// respondError maps pipeline errors onto HTTP statuses
func (h *ImportHandler) respondError(c *gin.Context, err error, action string) {
	var validationErr *domain.ValidationError
	var recipeErr *recipe.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &recipeErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "invalid recipe",
			"violations": recipeErr.Violations,
		})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, store.ErrRecipeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, store.ErrStoreUnavailable):
		h.logger.Error("Store unavailable", slog.String("action", action), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage temporarily unavailable"})
	default:
		h.logger.Error("Request failed", slog.String("action", action), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}
