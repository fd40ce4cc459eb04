package handlers

import (
	"github.com/gin-gonic/gin"

	"bahr/analytics/middleware"
	"bahr/analytics/utils"
)

// RouterConfig collects what NewRouter needs to mount the collector API.
type RouterConfig struct {
	Analytics *AnalyticsHandlers
	Auth      *AuthHandlers
	Tokens    *utils.TokenIssuer
	APIKey    string
	FEOrigin  string
}

// NewRouter builds the collector's gin engine. Event ingestion is public;
// statistics require an operator.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/health", Health)

	v1 := r.Group("/api/v1")
	{
		if cfg.Auth != nil {
			auth := v1.Group("/auth")
			auth.POST("/signup", cfg.Auth.Signup)
			auth.POST("/login", cfg.Auth.Login)
			auth.POST("/logout", cfg.Auth.Logout)
		}

		analytics := v1.Group("/analytics")
		analytics.POST("", cfg.Analytics.CreateEvent)
		analytics.POST("/batch", cfg.Analytics.CreateEvents)

		stats := analytics.Group("/stats")
		stats.Use(middleware.AuthRequired(cfg.Tokens, cfg.APIKey))
		{
			stats.GET("", cfg.Analytics.GetStats)
			stats.GET("/event-counts", cfg.Analytics.GetEventCountsOverTime)
			stats.GET("/unique-sessions", cfg.Analytics.GetUniqueSessionsOverTime)
			stats.GET("/top-paths", cfg.Analytics.GetTopPagePaths)
			stats.GET("/average-property", cfg.Analytics.GetAverageProperty)
		}
	}
	return r
}
