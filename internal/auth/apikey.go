// Package auth provides the two authentication surfaces: opaque API keys
// for event tracking and JWT bearer tokens for query and flow endpoints.
package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/logger"
)

// keyCachePrefix namespaces the Redis API-key lookaside cache.
const keyCachePrefix = "apikey:"

// keyCacheTTL bounds how long a validated key mapping is served from cache.
const keyCacheTTL = 5 * time.Minute

// KeyAuthenticator validates opaque API keys and resolves them to a
// project identifier. Keys are stored as SHA-256 hashes; plaintext keys
// never touch the store.
type KeyAuthenticator struct {
	db    *sqlx.DB
	cache *redis.Client
	log   logger.Logger
}

// NewKeyAuthenticator creates an API-key authenticator. cache may be nil;
// every miss or cache error falls back to the store.
func NewKeyAuthenticator(db *sqlx.DB, cache *redis.Client, log logger.Logger) *KeyAuthenticator {
	return &KeyAuthenticator{db: db, cache: cache, log: log}
}

// keysDDL mirrors the api_keys migration so fresh environments can boot
// without the migrate step.
const keysDDL = `
CREATE TABLE IF NOT EXISTS api_keys (
	key_hash   TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_api_keys_project ON api_keys (project_id);
`

// EnsureSchema creates the api_keys table when absent.
func (a *KeyAuthenticator) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, keysDDL); err != nil {
		return apierror.Wrap(apierror.KindUnavailable, "api_keys schema setup failed", err)
	}
	return nil
}

// Authenticate resolves an API key to its project id, or Unauthorized.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", apierror.New(apierror.KindUnauthorized, "missing API key")
	}

	hash := HashKey(apiKey)

	if projectID, ok := a.cachedProject(ctx, hash); ok {
		return projectID, nil
	}

	var projectID string
	query := `SELECT project_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`

	err := a.db.GetContext(ctx, &projectID, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apierror.New(apierror.KindUnauthorized, "invalid API key")
	}
	if err != nil {
		return "", apierror.Wrap(apierror.KindUnavailable, "API key lookup failed", err)
	}

	a.cacheProject(ctx, hash, projectID)
	return projectID, nil
}

// cachedProject consults the lookaside cache; any error counts as a miss.
func (a *KeyAuthenticator) cachedProject(ctx context.Context, hash string) (string, bool) {
	if a.cache == nil {
		return "", false
	}

	projectID, err := a.cache.Get(ctx, keyCachePrefix+hash).Result()
	if err != nil || projectID == "" {
		return "", false
	}
	return projectID, true
}

// cacheProject stores a validated key mapping, best effort.
func (a *KeyAuthenticator) cacheProject(ctx context.Context, hash, projectID string) {
	if a.cache == nil {
		return
	}

	if err := a.cache.Set(ctx, keyCachePrefix+hash, projectID, keyCacheTTL).Err(); err != nil {
		a.log.Warn("API key cache write failed", logger.Error(err))
	}
}

// HashKey returns the hex SHA-256 digest under which a key is stored.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
