package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/apierror"
)

// projectKey is the gin context key holding the API-key project id.
const projectKey = "auth_project_id"

// APIKeyMiddleware authenticates the X-API-Key header and stores the
// resolved project id in the request context.
func APIKeyMiddleware(authenticator *KeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := authenticator.Authenticate(c.Request.Context(), c.GetHeader("X-API-Key"))
		if err != nil {
			kind := apierror.KindOf(err)
			c.AbortWithStatusJSON(apierror.HTTPStatus(kind), gin.H{
				"success": false,
				"message": apierror.ClientMessage(err, false),
			})
			return
		}

		c.Set(projectKey, projectID)
		c.Next()
	}
}

// ProjectFrom returns the project id resolved during API-key auth.
func ProjectFrom(c *gin.Context) string {
	return c.GetString(projectKey)
}
