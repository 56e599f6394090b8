package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailvault/api/handlers"
	"github.com/customeros/mailvault/api/middleware"
	"github.com/customeros/mailvault/internal/cron"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, cronManager *cron.CronManager, apiKey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, cronManager, repos.SettingsRepository)

	// Health and metrics endpoints stay outside the authenticated group
	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILVAULT-API-KEY",
		ValidAPIKey: apiKey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.RequestIDMiddleware())
	api.Use(middleware.CustomContextMiddleware("mailvault")) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                  // Add tracing for all /v1/* endpoints
	{
		// Account endpoints
		accounts := api.Group("/accounts")
		{
			accounts.GET("", apiHandlers.Accounts.List())
			accounts.POST("", apiHandlers.Accounts.Create())
			accounts.GET("/:id", apiHandlers.Accounts.Get())
			accounts.PATCH("/:id", apiHandlers.Accounts.Update())
			accounts.DELETE("/:id", apiHandlers.Accounts.Delete())
			accounts.POST("/:id/enable", apiHandlers.Accounts.Enable())
			accounts.POST("/:id/disable", apiHandlers.Accounts.Disable())
			accounts.POST("/:id/test", apiHandlers.Accounts.TestConnection())

			// Per-account run control
			accounts.POST("/:id/backup", apiHandlers.Backups.Start())
			accounts.DELETE("/:id/backup", apiHandlers.Backups.Cancel())
			accounts.GET("/:id/progress", apiHandlers.Backups.Progress())
			accounts.GET("/:id/history", apiHandlers.Backups.History())
			accounts.POST("/:id/verify", apiHandlers.Backups.Verify())
			accounts.POST("/:id/repair", apiHandlers.Backups.Repair())
		}

		// Fleet-wide run control
		backups := api.Group("/backups")
		{
			backups.POST("", apiHandlers.Backups.StartAll())
			backups.DELETE("", apiHandlers.Backups.CancelAll())
			backups.GET("/active", apiHandlers.Backups.Active())
		}

		// Schedule endpoints
		schedule := api.Group("/schedule")
		{
			schedule.GET("", apiHandlers.Schedule.Get())
			schedule.PUT("", apiHandlers.Schedule.Update())
		}

		// Settings endpoints
		settings := api.Group("/settings")
		{
			settings.GET("/:key", apiHandlers.Settings.Get())
			settings.PUT("/:key", apiHandlers.Settings.Set())
			settings.DELETE("/:key", apiHandlers.Settings.Delete())
		}

		// Maintenance endpoints
		maintenance := api.Group("/maintenance")
		{
			maintenance.POST("/orphan-cleanup", apiHandlers.Backups.CleanupOrphans())
		}
	}
}
