package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/auth"
	"github.com/radixinsight/analytics/internal/event"
	"github.com/radixinsight/analytics/internal/ingest"
	"github.com/radixinsight/analytics/internal/logger"
)

// EventsHandler serves the API-key authenticated tracking endpoints.
type EventsHandler struct {
	ingest     *ingest.Service
	deadline   time.Duration
	production bool
	log        logger.Logger
}

// NewEventsHandler creates the tracking handler.
func NewEventsHandler(svc *ingest.Service, deadline time.Duration, production bool, log logger.Logger) *EventsHandler {
	return &EventsHandler{
		ingest:     svc,
		deadline:   deadline,
		production: production,
		log:        log,
	}
}

// batchRequest is the POST /api/events/batch body.
type batchRequest struct {
	Events []event.Raw `json:"events"`
}

// Track ingests a single event.
func (h *EventsHandler) Track(c *gin.Context) {
	var raw event.Raw
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline)
	defer cancel()

	eventID, err := h.ingest.TrackOne(ctx, auth.ProjectFrom(c), raw, requestContext(c))
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{"eventId": eventID})
}

// TrackBatch ingests up to the configured maximum of events atomically.
func (h *EventsHandler) TrackBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline)
	defer cancel()

	ids, err := h.ingest.TrackBatch(ctx, auth.ProjectFrom(c), req.Events, requestContext(c))
	if err != nil {
		fail(c, h.production, err)
		return
	}

	ok(c, gin.H{
		"count":    len(ids),
		"eventIds": ids,
	})
}

// requestContext lifts the request-level enrichment applied to every event
// in the submission: client address, user agent, referrer, and the UTM
// query parameters.
func requestContext(c *gin.Context) event.RequestContext {
	return event.RequestContext{
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    c.GetHeader("Referer"),
		UTMSource:   c.Query("utm_source"),
		UTMMedium:   c.Query("utm_medium"),
		UTMCampaign: c.Query("utm_campaign"),
		UTMTerm:     c.Query("utm_term"),
		UTMContent:  c.Query("utm_content"),
	}
}

// requireProject validates the bearer token's project scope for query
// endpoints. Shared by the analytics handlers.
func requireProject(c *gin.Context, projectID string) error {
	if projectID == "" {
		return apierror.New(apierror.KindInvalidInput, "projectId is required")
	}
	return auth.CheckProjectAccess(c, projectID)
}
