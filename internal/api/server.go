// Package api assembles the HTTP surface: handlers, authentication,
// metrics, and the server lifecycle.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/radixinsight/analytics/internal/analytics"
	"github.com/radixinsight/analytics/internal/auth"
	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/flow"
	"github.com/radixinsight/analytics/internal/handler"
	"github.com/radixinsight/analytics/internal/httpserver"
	"github.com/radixinsight/analytics/internal/ingest"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// Deps are the service components the API surface exposes.
type Deps struct {
	Store   *store.Store
	Keys    *auth.KeyAuthenticator
	Ingest  *ingest.Service
	Engine  *analytics.Engine
	Tracker *flow.Tracker
	Cache   *redis.Client
}

// NewServer builds the HTTP server with all routes and dependency health
// checks wired.
func NewServer(cfg *config.Config, log logger.Logger, deps Deps) *httpserver.Server {
	production := cfg.IsProduction()

	metrics := httpserver.NewMetrics()

	events := handler.NewEventsHandler(deps.Ingest, cfg.Deadline.Ingest(), production, log)
	queries := handler.NewAnalyticsHandler(deps.Engine, cfg.Deadline, production, log)
	flows := handler.NewFlowsHandler(deps.Tracker, cfg.Deadline, cfg.Query.MaxLimit, production, log)

	checks := map[string]httpserver.Checker{
		"database": httpserver.DatabaseChecker(deps.Store.Ping),
	}
	if deps.Cache != nil {
		checks["redis"] = httpserver.RedisChecker(func() error {
			return deps.Cache.Ping(context.Background()).Err()
		})
	}

	opts := httpserver.Options{
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}

	return httpserver.New(opts, log, checks, func(router *gin.Engine) {
		setupRoutes(router, metrics, deps.Keys, cfg.Auth.JWTSecret, events, queries, flows)
	})
}
