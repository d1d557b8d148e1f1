package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/analytics"
	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/logger"
)

// AnalyticsHandler serves the bearer-authenticated query endpoints.
type AnalyticsHandler struct {
	engine     *analytics.Engine
	deadlines  config.DeadlineConfig
	production bool
	log        logger.Logger
}

// NewAnalyticsHandler creates the analytics query handler.
func NewAnalyticsHandler(engine *analytics.Engine, deadlines config.DeadlineConfig, production bool, log logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine:     engine,
		deadlines:  deadlines,
		production: production,
		log:        log,
	}
}

// CountByType handles GET /api/events/count-by-type.
func (h *AnalyticsHandler) CountByType(c *gin.Context) {
	projectID, dateRange, err := h.queryScope(c)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	rows, err := h.engine.CountByType(ctx, projectID, dateRange)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"data": rows})
}

// CountByDay handles GET /api/events/count-by-day.
func (h *AnalyticsHandler) CountByDay(c *gin.Context) {
	projectID, dateRange, err := h.queryScope(c)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	rows, err := h.engine.CountByDay(ctx, projectID, dateRange, c.Query("eventType"))
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"data": rows})
}

// UniqueUsers handles GET /api/events/unique-users.
func (h *AnalyticsHandler) UniqueUsers(c *gin.Context) {
	projectID, dateRange, err := h.queryScope(c)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	rows, err := h.engine.UniqueUsersByDay(ctx, projectID, dateRange)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"data": rows})
}

// funnelRequest is the POST /api/events/funnel body.
type funnelRequest struct {
	ProjectID string                 `json:"projectId"`
	Steps     []analytics.FunnelStep `json:"steps"`
	StartDate string                 `json:"startDate"`
	EndDate   string                 `json:"endDate"`
}

// Funnel handles POST /api/events/funnel.
func (h *AnalyticsHandler) Funnel(c *gin.Context) {
	var req funnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if err := requireProject(c, req.ProjectID); err != nil {
		fail(c, h.production, err)
		return
	}

	dateRange, err := analytics.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.HeavyQuery())
	defer cancel()

	result, err := h.engine.Funnel(ctx, req.ProjectID, dateRange, req.Steps)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"data": result})
}

// Retention handles GET /api/events/retention.
func (h *AnalyticsHandler) Retention(c *gin.Context) {
	projectID, dateRange, err := h.queryScope(c)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.HeavyQuery())
	defer cancel()

	result, err := h.engine.Retention(ctx, projectID, dateRange, c.Query("interval"))
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"data": result})
}

// Recent handles GET /api/events/recent. All filters except projectId are
// optional; limit defaults to 100 and dates, when present, must form a
// valid range.
func (h *AnalyticsHandler) Recent(c *gin.Context) {
	projectID := c.Query("projectId")
	if err := requireProject(c, projectID); err != nil {
		fail(c, h.production, err)
		return
	}

	filter := analytics.RecentFilter{
		ProjectID: projectID,
		EventType: c.Query("eventType"),
		UserID:    c.Query("userId"),
		SessionID: c.Query("sessionId"),
	}

	var parseErr bool
	filter.Limit = intQuery(c, "limit", analytics.DefaultRecentLimit, &parseErr)
	filter.Offset = intQuery(c, "offset", 0, &parseErr)
	if parseErr {
		badRequest(c, "limit and offset must be integers")
		return
	}

	// Each date bound is independently optional; the range check only
	// applies when both are present.
	if raw := c.Query("startDate"); raw != "" {
		day, err := analytics.ParseDate(raw, "startDate")
		if err != nil {
			fail(c, h.production, err)
			return
		}
		filter.StartDate = &day
	}
	if raw := c.Query("endDate"); raw != "" {
		day, err := analytics.ParseDate(raw, "endDate")
		if err != nil {
			fail(c, h.production, err)
			return
		}
		filter.EndDate = &day
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		badRequest(c, "startDate must not be after endDate")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	events, err := h.engine.RecentEvents(ctx, filter)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// queryScope validates the shared projectId + date range query parameters
// and the token's access to the project.
func (h *AnalyticsHandler) queryScope(c *gin.Context) (string, analytics.DateRange, error) {
	projectID := c.Query("projectId")
	if err := requireProject(c, projectID); err != nil {
		return "", analytics.DateRange{}, err
	}

	dateRange, err := analytics.ParseDateRange(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return "", analytics.DateRange{}, err
	}

	return projectID, dateRange, nil
}

// intQuery parses an optional integer query parameter, flagging parse
// failures.
func intQuery(c *gin.Context, name string, fallback int, parseErr *bool) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		*parseErr = true
		return fallback
	}
	return value
}
