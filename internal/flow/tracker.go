// Package flow implements the per-session flow tracker: a small state
// machine (absent -> active -> completed) persisted in the flows document
// collection, serialized by optimistic compare-and-update.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// casMaxAttempts bounds optimistic-update retries before ConcurrentUpdate
// surfaces.
const casMaxAttempts = 3

// casRetryDelay is the base backoff between optimistic-update retries.
const casRetryDelay = 25 * time.Millisecond

// activeKeyPrefix namespaces the Redis active-flow index.
const activeKeyPrefix = "flow:active:"

// Tracker owns the lifecycle of flow records.
type Tracker struct {
	flows *store.FlowStore
	cache *redis.Client
	ttl   time.Duration
	log   logger.Logger
	now   func() time.Time
}

// NewTracker creates a flow tracker. cache may be nil; the Redis index is
// a fast path only and every decision falls back to the store.
func NewTracker(flows *store.FlowStore, cache *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		flows: flows,
		cache: cache,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// StartFlow opens a new active flow for a (user, session) pair. Fails with
// Conflict when an active flow already exists for the pair.
func (t *Tracker) StartFlow(ctx context.Context, userID, sessionID, startPage string, metadata map[string]any) (*domain.Flow, error) {
	if userID == "" || sessionID == "" {
		return nil, apierror.New(apierror.KindInvalidInput, "userId and sessionId are required")
	}
	if startPage == "" {
		return nil, apierror.New(apierror.KindInvalidInput, "startPage is required")
	}

	// Fast path: the Redis index catches most duplicate starts without a
	// store round-trip. The partial unique index remains the authority.
	if t.activeFlowCached(ctx, userID, sessionID) {
		return nil, apierror.New(apierror.KindConflict, "an active flow already exists for this session")
	}

	now := t.now().UTC()
	flow := &domain.Flow{
		FlowID:      uuid.New().String(),
		UserID:      userID,
		SessionID:   sessionID,
		StartPage:   startPage,
		StartTime:   now,
		Status:      domain.FlowActive,
		Events:      []domain.FlowEvent{},
		Metadata:    metadata,
		LastUpdated: now,
	}

	if err := t.flows.Insert(ctx, flow); err != nil {
		if errors.Is(err, store.ErrDuplicateActive) {
			return nil, apierror.New(apierror.KindConflict, "an active flow already exists for this session")
		}
		return nil, err
	}

	t.indexActive(ctx, flow)
	return flow, nil
}

// AddEvent appends one event to an active flow.
func (t *Tracker) AddEvent(ctx context.Context, flowID string, evtType, page string, data map[string]any) (*domain.Flow, error) {
	if evtType == "" {
		return nil, apierror.New(apierror.KindInvalidInput, "event type is required")
	}

	return t.mutate(ctx, flowID, func(flow *domain.Flow) error {
		if !flow.IsActive() {
			return apierror.New(apierror.KindConflict, "flow is not active")
		}

		flow.Events = append(flow.Events, domain.FlowEvent{
			Type:      evtType,
			Page:      page,
			Timestamp: t.now().UTC(),
			Data:      data,
		})
		return nil
	})
}

// EndFlow closes an active flow: sets the end fields, merges metadata, and
// computes metrics exactly once.
func (t *Tracker) EndFlow(ctx context.Context, flowID, endPage string, metadata map[string]any) (*domain.Flow, error) {
	flow, err := t.mutate(ctx, flowID, func(flow *domain.Flow) error {
		if !flow.IsActive() {
			return apierror.New(apierror.KindConflict, "flow is already completed")
		}

		closeFlow(flow, endPage, t.now().UTC(), metadata)
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.unindexActive(ctx, flow)
	return flow, nil
}

// Get loads one flow by id.
func (t *Tracker) Get(ctx context.Context, flowID string) (*domain.Flow, error) {
	flow, err := t.flows.FindOne(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, apierror.New(apierror.KindNotFound, "flow not found")
	}
	return flow, nil
}

// Find searches flows ordered by start_time descending.
func (t *Tracker) Find(ctx context.Context, q store.FlowQuery, limit, offset int) ([]*domain.Flow, error) {
	return t.flows.Find(ctx, q, limit, offset)
}

// mutate applies fn to the current flow state under optimistic
// concurrency. Lost races re-read and retry up to casMaxAttempts before
// failing with ConcurrentUpdate.
func (t *Tracker) mutate(ctx context.Context, flowID string, fn func(*domain.Flow) error) (*domain.Flow, error) {
	for attempt := 1; attempt <= casMaxAttempts; attempt++ {
		flow, err := t.flows.FindOne(ctx, flowID)
		if err != nil {
			return nil, err
		}
		if flow == nil {
			return nil, apierror.New(apierror.KindNotFound, "flow not found")
		}

		token := flow.LastUpdated
		if err := fn(flow); err != nil {
			return nil, err
		}
		flow.LastUpdated = t.now().UTC()

		err = t.flows.UpdateByID(ctx, flow, token)
		if err == nil {
			return flow, nil
		}
		if !errors.Is(err, store.ErrStaleUpdate) {
			return nil, err
		}

		if attempt < casMaxAttempts {
			select {
			case <-ctx.Done():
				return nil, apierror.Wrap(apierror.KindDeadlineExceeded, "flow update cancelled", ctx.Err())
			case <-time.After(casRetryDelay * time.Duration(1<<(attempt-1))):
			}
		}
	}

	return nil, apierror.New(apierror.KindConflict, "concurrent flow update, try again")
}

// activeFlowCached consults the Redis index; any cache error counts as a
// miss.
func (t *Tracker) activeFlowCached(ctx context.Context, userID, sessionID string) bool {
	if t.cache == nil {
		return false
	}

	exists, err := t.cache.Exists(ctx, activeKey(userID, sessionID)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// indexActive records the active flow in Redis for the session, expiring
// with the idle TTL.
func (t *Tracker) indexActive(ctx context.Context, flow *domain.Flow) {
	if t.cache == nil {
		return
	}

	if err := t.cache.Set(ctx, activeKey(flow.UserID, flow.SessionID), flow.FlowID, t.ttl).Err(); err != nil {
		t.log.Warn("Active-flow index write failed",
			logger.String("flow_id", flow.FlowID),
			logger.Error(err),
		)
	}
}

// unindexActive drops the session's active-flow index entry.
func (t *Tracker) unindexActive(ctx context.Context, flow *domain.Flow) {
	if t.cache == nil {
		return
	}

	if err := t.cache.Del(ctx, activeKey(flow.UserID, flow.SessionID)).Err(); err != nil {
		t.log.Warn("Active-flow index delete failed",
			logger.String("flow_id", flow.FlowID),
			logger.Error(err),
		)
	}
}

// activeKey builds the Redis key for a session's active flow.
func activeKey(userID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s", activeKeyPrefix, userID, sessionID)
}
