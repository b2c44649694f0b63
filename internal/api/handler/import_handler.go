package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/recipe-import/internal/api/dto"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultItemsPageSize = 50
	maxItemsPageSize     = 200
)

// CreateImport handles POST /api/v1/imports
// Accepts a list of post ids and starts a bulk import job
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var req dto.CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	res, err := h.service.SubmitBulkImport(c.Request.Context(), req.PostIDs)
	if err != nil {
		h.respondError(c, err, "create import job")
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateImportResponse{
		JobID:      res.JobID,
		Status:     string(res.Status),
		TotalPosts: res.TotalPosts,
		Message:    res.Message,
	})
}

// jobIDParam returns the job_id path parameter, or "" after responding 400
func (h *ImportHandler) jobIDParam(c *gin.Context) string {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return ""
	}
	return jobID
}

// GetImport handles GET /api/v1/imports/:job_id
// Returns the progress counters of a bulk import job
func (h *ImportHandler) GetImport(c *gin.Context) {
	jobID := h.jobIDParam(c)
	if jobID == "" {
		return
	}

	status, err := h.service.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err, "get import job")
		return
	}

	c.JSON(http.StatusOK, dto.NewJobStatusDTO(status))
}

// ListImportItems handles GET /api/v1/imports/:job_id/items
// Lists per-post outcomes in input order with cursor pagination
func (h *ImportHandler) ListImportItems(c *gin.Context) {
	jobID := h.jobIDParam(c)
	if jobID == "" {
		return
	}

	var req dto.ListItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultItemsPageSize
	}
	if req.PageSize > maxItemsPageSize {
		req.PageSize = maxItemsPageSize
	}

	after, err := DecodeItemCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// one extra row tells whether another page exists
	items, err := h.service.ListJobItems(c.Request.Context(), jobID, domain.ItemFilter{
		Status:        domain.ItemStatus(req.Status),
		AfterPosition: after,
		PageSize:      req.PageSize + 1,
	})
	if err != nil {
		h.respondError(c, err, "list import items")
		return
	}

	hasMore := len(items) > req.PageSize
	if hasMore {
		items = items[:req.PageSize]
	}

	resp := dto.ListItemsResponse{Items: make([]dto.ItemDTO, len(items))}
	for i, it := range items {
		resp.Items[i] = dto.NewItemDTO(it)
	}
	if hasMore {
		resp.NextCursor = EncodeItemCursor(items[len(items)-1].Position)
	}

	c.JSON(http.StatusOK, resp)
}
