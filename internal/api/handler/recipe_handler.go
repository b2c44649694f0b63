package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/recipe-import/internal/api/dto"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateRecipe handles POST /api/v1/recipes
// Imports one structured recipe synchronously
func (h *ImportHandler) CreateRecipe(c *gin.Context) {
	var draft recipe.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	saved, err := h.service.ImportSinglePost(c.Request.Context(), &draft)
	if err != nil {
		h.respondError(c, err, "import recipe")
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// GetRecipe handles GET /api/v1/recipes/:recipe_id
func (h *ImportHandler) GetRecipe(c *gin.Context) {
	recipeID := c.Param("recipe_id")
	if _, err := uuid.Parse(recipeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "recipe_id must be a valid UUID",
		})
		return
	}

	r, err := h.service.GetRecipe(c.Request.Context(), recipeID)
	if err != nil {
		h.respondError(c, err, "get recipe")
		return
	}

	c.JSON(http.StatusOK, r)
}

// GenerateSteps handles POST /api/v1/recipes/steps
// Returns default instructions for a title and ingredient list
func (h *ImportHandler) GenerateSteps(c *gin.Context) {
	var req dto.GenerateStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "title is required",
		})
		return
	}

	c.JSON(http.StatusOK, dto.GenerateStepsResponse{
		Steps: h.service.GenerateSteps(req.Title, req.Ingredients),
	})
}
