package http

import (
	"github.com/gin-gonic/gin"

	"github.com/rxscout/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/pharmacies/search", handler.SearchPharmacies)
		v1.POST("/prices/compare", handler.ComparePrices)

		medications := v1.Group("/medications")
		{
			medications.GET("/:name/generics", handler.GenericAlternatives)
			medications.GET("/:name/info", handler.MedicationInfo)
		}

		v1.GET("/status", handler.Status)
		v1.POST("/status/jobs/:name", handler.RunJob)
	}

	return router
}
