package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/flow"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// FlowsHandler serves the bearer-authenticated flow tracking endpoints.
type FlowsHandler struct {
	tracker    *flow.Tracker
	deadlines  config.DeadlineConfig
	maxLimit   int
	production bool
	log        logger.Logger
}

// NewFlowsHandler creates the flow tracking handler. maxLimit caps the
// page size of flow searches.
func NewFlowsHandler(tracker *flow.Tracker, deadlines config.DeadlineConfig, maxLimit int, production bool, log logger.Logger) *FlowsHandler {
	return &FlowsHandler{
		tracker:    tracker,
		deadlines:  deadlines,
		maxLimit:   maxLimit,
		production: production,
		log:        log,
	}
}

// startFlowRequest is the POST /api/flows/start body.
type startFlowRequest struct {
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	StartPage string         `json:"startPage"`
	Metadata  map[string]any `json:"metadata"`
}

// Start handles POST /api/flows/start.
func (h *FlowsHandler) Start(c *gin.Context) {
	var req startFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Ingest())
	defer cancel()

	started, err := h.tracker.StartFlow(ctx, req.UserID, req.SessionID, req.StartPage, req.Metadata)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"flow": started})
}

// addEventRequest is the POST /api/flows/:id/events body.
type addEventRequest struct {
	Type string         `json:"type"`
	Page string         `json:"page"`
	Data map[string]any `json:"data"`
}

// AddEvent handles POST /api/flows/:id/events.
func (h *FlowsHandler) AddEvent(c *gin.Context) {
	var req addEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Ingest())
	defer cancel()

	updated, err := h.tracker.AddEvent(ctx, c.Param("id"), req.Type, req.Page, req.Data)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"flow": updated})
}

// endFlowRequest is the POST /api/flows/:id/end body.
type endFlowRequest struct {
	EndPage  string         `json:"endPage"`
	Metadata map[string]any `json:"metadata"`
}

// End handles POST /api/flows/:id/end.
func (h *FlowsHandler) End(c *gin.Context) {
	var req endFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Ingest())
	defer cancel()

	ended, err := h.tracker.EndFlow(ctx, c.Param("id"), req.EndPage, req.Metadata)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"flow": ended})
}

// Get handles GET /api/flows/:id.
func (h *FlowsHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	found, err := h.tracker.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"flow": found})
}

// Find handles GET /api/flows. Time bounds use RFC 3339.
func (h *FlowsHandler) Find(c *gin.Context) {
	query := store.FlowQuery{
		UserID:    c.Query("userId"),
		SessionID: c.Query("sessionId"),
		Status:    c.Query("status"),
	}

	var parseErr bool
	query.StartTimeFrom = timeQuery(c, "startTimeFrom", &parseErr)
	query.StartTimeTo = timeQuery(c, "startTimeTo", &parseErr)
	if parseErr {
		badRequest(c, "startTimeFrom and startTimeTo must be RFC 3339 timestamps")
		return
	}

	limit := intQuery(c, "limit", defaultFlowLimit, &parseErr)
	offset := intQuery(c, "offset", 0, &parseErr)
	if parseErr {
		badRequest(c, "limit and offset must be integers")
		return
	}

	// Same page-size semantics as recent-events: clamp to the ceiling,
	// floor negatives, and serve limit=0 without a store round-trip.
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	if limit == 0 {
		ok(c, gin.H{
			"count": 0,
			"flows": []any{},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadlines.Query())
	defer cancel()

	flows, err := h.tracker.Find(ctx, query, limit, offset)
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{
		"count": len(flows),
		"flows": flows,
	})
}

// defaultFlowLimit is the page size when GET /api/flows omits limit.
const defaultFlowLimit = 50

// timeQuery parses an optional RFC 3339 query parameter.
func timeQuery(c *gin.Context, name string, parseErr *bool) time.Time {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		*parseErr = true
		return time.Time{}
	}
	return value
}
