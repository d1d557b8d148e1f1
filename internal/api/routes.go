package api

import (
	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/auth"
	"github.com/radixinsight/analytics/internal/handler"
	"github.com/radixinsight/analytics/internal/httpserver"
)

// setupRoutes configures all API routes. Tracking endpoints authenticate
// with an API key; query and flow endpoints require a bearer token. Health
// routes are registered by the server itself.
func setupRoutes(
	router *gin.Engine,
	metrics *httpserver.Metrics,
	keys *auth.KeyAuthenticator,
	jwtSecret string,
	events *handler.EventsHandler,
	queries *handler.AnalyticsHandler,
	flows *handler.FlowsHandler,
) {
	router.Use(metrics.Middleware())
	router.GET("/metrics", metrics.Handler())

	tracking := router.Group("/api/events")
	tracking.Use(auth.APIKeyMiddleware(keys))
	tracking.POST("/track", events.Track)
	tracking.POST("/batch", events.TrackBatch)

	queryGroup := router.Group("/api/events")
	queryGroup.Use(auth.BearerMiddleware(jwtSecret))
	queryGroup.GET("/count-by-type", queries.CountByType)
	queryGroup.GET("/count-by-day", queries.CountByDay)
	queryGroup.GET("/unique-users", queries.UniqueUsers)
	queryGroup.POST("/funnel", queries.Funnel)
	queryGroup.GET("/retention", queries.Retention)
	queryGroup.GET("/recent", queries.Recent)

	flowGroup := router.Group("/api/flows")
	flowGroup.Use(auth.BearerMiddleware(jwtSecret))
	flowGroup.POST("/start", flows.Start)
	flowGroup.POST("/:id/events", flows.AddEvent)
	flowGroup.POST("/:id/end", flows.End)
	flowGroup.GET("/:id", flows.Get)
	flowGroup.GET("", flows.Find)
}
