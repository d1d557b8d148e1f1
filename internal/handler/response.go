// Package handler implements the HTTP handlers for event ingestion,
// analytics queries, and flow tracking. Every response uses the envelope
// {"success": bool, "message"?: string, ...payload}.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/apierror"
)

// ok writes a 200 success envelope with the given payload fields.
func ok(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// fail maps a classified error onto its HTTP status and writes the error
// envelope. The error is attached to the gin context so the request log
// entry carries it.
func fail(c *gin.Context, production bool, err error) {
	_ = c.Error(err)

	kind := apierror.KindOf(err)
	c.JSON(apierror.HTTPStatus(kind), gin.H{
		"success": false,
		"message": apierror.ClientMessage(err, production),
	})
}

// badRequest writes a 400 InvalidInput envelope for malformed parameters.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": message,
	})
}
