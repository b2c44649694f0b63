package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/recipe-import/internal/api/handler"
	"github.com/cuongbtq/recipe-import/internal/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "recipe-import-api"
	}

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := deps.Health.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	if deps.Gatherer != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	importHandler := handler.NewImportHandler(deps)

	v1 := r.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			imports.POST("", importHandler.CreateImport)
			imports.GET("/:job_id", importHandler.GetImport)
			imports.GET("/:job_id/items", importHandler.ListImportItems)
		}

		recipes := v1.Group("/recipes")
		{
			recipes.POST("", importHandler.CreateRecipe)
			recipes.POST("/steps", importHandler.GenerateSteps)
			recipes.GET("/:recipe_id", importHandler.GetRecipe)
		}
	}

	return r
}
