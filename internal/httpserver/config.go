// Package httpserver provides the Gin-based HTTP server used by the
// analytics API: consistent middleware ordering, CORS, health endpoints,
// Prometheus metrics, and lifecycle management with graceful shutdown.
package httpserver

import (
	"time"
)

// Default timeout values for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultCORSMaxAge      = 12 * time.Hour
)

// Options holds the HTTP server configuration.
type Options struct {
	// Port is the port number to listen on.
	Port int

	// Debug enables Gin debug mode and verbose logging.
	Debug bool

	// ServiceName and ServiceVersion appear in health responses.
	ServiceName    string
	ServiceVersion string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for connections to drain.
	ShutdownTimeout time.Duration

	// CORS holds the CORS configuration.
	CORS CORSOptions
}

// CORSOptions holds the CORS middleware configuration.
type CORSOptions struct {
	// AllowedOrigins lists origins allowed to call the API; "*" allows all.
	AllowedOrigins []string

	// AllowedMethods lists the methods clients may use.
	AllowedMethods []string

	// AllowedHeaders lists the non-simple headers clients may send.
	AllowedHeaders []string

	// MaxAge is how long preflight results may be cached.
	MaxAge time.Duration
}

// setDefaults applies default values where options are not set.
func (o *Options) setDefaults() {
	if o.ReadTimeout == 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.ServiceVersion == "" {
		o.ServiceVersion = "0.0.0"
	}

	o.CORS.setDefaults()
}

// setDefaults applies default values to the CORS options.
func (c *CORSOptions) setDefaults() {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{
			"Origin",
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			"X-Request-ID",
			"X-API-Key",
		}
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCORSMaxAge
	}
}
