package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/radixinsight/analytics/internal/apierror"
)

// claimsKey is the gin context key holding the validated token claims.
const claimsKey = "claims"

// Claims are the bearer token claims. ProjectID scopes the token to one
// project; an empty ProjectID grants access to every project.
type Claims struct {
	ProjectID string `json:"project_id"`
	jwt.RegisteredClaims
}

// BearerMiddleware validates the Authorization bearer token and stores its
// claims in the request context.
func BearerMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return []byte(secret), nil
		})
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom extracts the validated claims from the gin context.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*Claims)
	return claims, ok
}

// CheckProjectAccess verifies the token grants access to the requested
// project.
func CheckProjectAccess(c *gin.Context, projectID string) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return apierror.New(apierror.KindUnauthorized, "missing token claims")
	}
	if claims.ProjectID != "" && claims.ProjectID != projectID {
		return apierror.New(apierror.KindForbidden, "token does not grant access to this project")
	}
	return nil
}

// abortUnauthorized rejects the request with a 401 envelope.
func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}
