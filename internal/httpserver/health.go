package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is the reported state of the service or one of its dependencies.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates reduced but functional service.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is down.
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Checker probes one dependency.
type Checker func() CheckResult

// healthResponse is the health endpoint payload.
type healthResponse struct {
	Status  Status                 `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// registerHealthRoutes adds GET and HEAD /health.
func registerHealthRoutes(router *gin.Engine, serviceName, version string, checks map[string]Checker) {
	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		response := healthResponse{
			Status:  StatusHealthy,
			Service: serviceName,
			Version: version,
			Uptime:  time.Since(started).Truncate(time.Second).String(),
		}

		if len(checks) > 0 {
			response.Checks = make(map[string]CheckResult, len(checks))
			for name, check := range checks {
				result := check()
				response.Checks[name] = result

				if result.Status == StatusUnhealthy {
					response.Status = StatusUnhealthy
				} else if result.Status == StatusDegraded && response.Status == StatusHealthy {
					response.Status = StatusDegraded
				}
			}
		}

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	})

	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}

// DatabaseChecker probes the analytics store connection.
func DatabaseChecker(ping func() error) Checker {
	return func() CheckResult {
		start := time.Now()
		err := ping()
		latency := time.Since(start)

		if err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "store connection failed",
				Latency: latency.String(),
			}
		}

		return CheckResult{
			Status:  StatusHealthy,
			Message: "store connection OK",
			Latency: latency.String(),
		}
	}
}

// RedisChecker probes the Redis connection. Redis is a fast path only, so
// a failure degrades rather than fails the service.
func RedisChecker(ping func() error) Checker {
	return func() CheckResult {
		start := time.Now()
		err := ping()
		latency := time.Since(start)

		if err != nil {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "redis connection failed",
				Latency: latency.String(),
			}
		}

		return CheckResult{
			Status:  StatusHealthy,
			Message: "redis connection OK",
			Latency: latency.String(),
		}
	}
}
