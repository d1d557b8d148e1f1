// Package store implements the analytics store adapter over PostgreSQL.
// It exposes two surfaces: the insert-only events table (columnar contract:
// sorted by project_id, date, timestamp) and the flows document collection.
// Every user-supplied value is bound as a parameter; no raw interpolation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/retry"
)

// connectTimeout bounds the initial connection verification.
const connectTimeout = 5 * time.Second

// transientMaxAttempts is 1 initial try plus 2 retries for transient
// connection errors before the failure surfaces.
const transientMaxAttempts = 3

// Store wraps the pooled PostgreSQL client shared by all components.
type Store struct {
	db  *sqlx.DB
	log logger.Logger
}

// Open connects to the store and verifies the connection.
func Open(cfg config.StoreConfig, log logger.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// DB exposes the pooled client to repository components.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping verifies store connectivity for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close tears down the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// isTransient reports whether an error looks like a transient connection
// failure worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"temporary failure",
		"too many connections",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// withTransientRetry runs fn, retrying transient connection errors up to
// two times with jittered backoff.
func withTransientRetry(ctx context.Context, fn func() error) error {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = transientMaxAttempts
	cfg.IsRetryable = isTransient
	return retry.Do(ctx, cfg, fn)
}

// classifyWriteErr maps a write failure onto the error taxonomy.
func classifyWriteErr(err error) error {
	if ctxErr := contextKind(err); ctxErr != nil {
		return ctxErr
	}
	return apierror.Wrap(apierror.KindUnavailable, "event write failed", err)
}

// classifyQueryErr maps a read failure onto the error taxonomy.
func classifyQueryErr(err error) error {
	if ctxErr := contextKind(err); ctxErr != nil {
		return ctxErr
	}
	return apierror.Wrap(apierror.KindUnavailable, "query failed", err)
}

// contextKind detects deadline and cancellation failures.
func contextKind(err error) error {
	switch {
	case errorsIsDeadline(err):
		return apierror.Wrap(apierror.KindDeadlineExceeded, "operation deadline exceeded", err)
	default:
		return nil
	}
}

func errorsIsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "canceling statement due to statement timeout")
}
