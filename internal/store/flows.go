package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
)

// flowsDDL bootstraps the flows document collection. The partial unique
// index enforces at most one active flow per (user_id, session_id).
const flowsDDL = `
CREATE TABLE IF NOT EXISTS flows (
	flow_id      UUID PRIMARY KEY,
	user_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	start_page   TEXT NOT NULL,
	start_time   TIMESTAMPTZ NOT NULL,
	end_page     TEXT,
	end_time     TIMESTAMPTZ,
	duration_ms  BIGINT,
	status       TEXT NOT NULL,
	events       JSONB NOT NULL DEFAULT '[]',
	metadata     JSONB NOT NULL DEFAULT '{}',
	metrics      JSONB,
	last_updated TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_flows_active_session
	ON flows (user_id, session_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_flows_start_time ON flows (start_time DESC);
CREATE INDEX IF NOT EXISTS idx_flows_last_updated ON flows (last_updated) WHERE status = 'active';
`

// ErrStaleUpdate is returned when a compare-and-update lost a race: the
// flow's last_updated no longer matches the caller's token.
var ErrStaleUpdate = errors.New("stale flow update")

// ErrDuplicateActive is returned when inserting a second active flow for
// the same (user_id, session_id).
var ErrDuplicateActive = errors.New("active flow already exists for session")

// flowColumns lists the columns selected for flow reads.
const flowColumns = `flow_id, user_id, session_id, start_page, start_time,
	end_page, end_time, duration_ms, status, events, metadata, metrics, last_updated`

// FlowQuery filters flow searches. Zero values mean "any".
type FlowQuery struct {
	UserID        string
	SessionID     string
	Status        string
	StartTimeFrom time.Time
	StartTimeTo   time.Time
}

// FlowStore owns the flows document surface.
type FlowStore struct {
	store *Store
	log   logger.Logger
}

// NewFlowStore creates the flows surface over the shared store.
func NewFlowStore(s *Store, log logger.Logger) *FlowStore {
	return &FlowStore{store: s, log: log}
}

// EnsureSchema creates the flows collection if absent. Idempotent.
func (fs *FlowStore) EnsureSchema(ctx context.Context) error {
	if _, err := fs.store.db.ExecContext(ctx, flowsDDL); err != nil {
		return apierror.Wrap(apierror.KindInternal, "flows schema bootstrap failed", err)
	}
	return nil
}

// Insert persists a new flow document.
func (fs *FlowStore) Insert(ctx context.Context, flow *domain.Flow) error {
	events, metadata, metrics, err := marshalFlowDocs(flow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO flows (
			flow_id, user_id, session_id, start_page, start_time,
			end_page, end_time, duration_ms, status, events, metadata, metrics, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = fs.store.db.ExecContext(ctx, query,
		flow.FlowID, flow.UserID, flow.SessionID, flow.StartPage, flow.StartTime,
		nullString(flow.EndPage), flow.EndTime, flow.DurationMS, flow.Status,
		events, metadata, metrics, flow.LastUpdated,
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_flows_active_session") {
			return ErrDuplicateActive
		}
		return classifyWriteErr(fmt.Errorf("insert flow: %w", err))
	}

	return nil
}

// UpdateByID replaces the mutable flow fields iff last_updated still equals
// the caller's token. Returns ErrStaleUpdate on a lost race so the caller
// can re-read and retry.
func (fs *FlowStore) UpdateByID(ctx context.Context, flow *domain.Flow, token time.Time) error {
	events, metadata, metrics, err := marshalFlowDocs(flow)
	if err != nil {
		return err
	}

	query := `
		UPDATE flows SET
			end_page = $1, end_time = $2, duration_ms = $3, status = $4,
			events = $5, metadata = $6, metrics = $7, last_updated = $8
		WHERE flow_id = $9 AND last_updated = $10
	`

	res, err := fs.store.db.ExecContext(ctx, query,
		nullString(flow.EndPage), flow.EndTime, flow.DurationMS, flow.Status,
		events, metadata, metrics, flow.LastUpdated,
		flow.FlowID, token,
	)
	if err != nil {
		return classifyWriteErr(fmt.Errorf("update flow: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return classifyWriteErr(fmt.Errorf("update flow rows affected: %w", err))
	}
	if affected == 0 {
		return ErrStaleUpdate
	}

	return nil
}

// FindOne loads a flow by id. Returns (nil, nil) when absent.
func (fs *FlowStore) FindOne(ctx context.Context, flowID string) (*domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE flow_id = $1`

	row := fs.store.db.QueryRowxContext(ctx, query, flowID)
	flow, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyQueryErr(err)
	}

	return flow, nil
}

// FindActive returns the active flow for a (user_id, session_id) pair, or
// (nil, nil) when none exists.
func (fs *FlowStore) FindActive(ctx context.Context, userID, sessionID string) (*domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows
		WHERE user_id = $1 AND session_id = $2 AND status = $3`

	row := fs.store.db.QueryRowxContext(ctx, query, userID, sessionID, domain.FlowActive)
	flow, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyQueryErr(err)
	}

	return flow, nil
}

// Find searches flows ordered by start_time descending.
func (fs *FlowStore) Find(ctx context.Context, q FlowQuery, limit, offset int) ([]*domain.Flow, error) {
	where, args := buildFlowWhere(q)

	query := fmt.Sprintf(
		`SELECT %s FROM flows WHERE 1=1%s ORDER BY start_time DESC LIMIT $%d OFFSET $%d`,
		flowColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := fs.store.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classifyQueryErr(fmt.Errorf("find flows: %w", err))
	}
	defer rows.Close()

	flows := make([]*domain.Flow, 0)
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, classifyQueryErr(err)
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryErr(err)
	}

	return flows, nil
}

// FindIdleActive returns active flows whose last_updated is older than the
// cutoff, capped at limit. Used by the idle reaper.
func (fs *FlowStore) FindIdleActive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows
		WHERE status = $1 AND last_updated < $2
		ORDER BY last_updated ASC LIMIT $3`

	rows, err := fs.store.db.QueryxContext(ctx, query, domain.FlowActive, cutoff, limit)
	if err != nil {
		return nil, classifyQueryErr(fmt.Errorf("find idle flows: %w", err))
	}
	defer rows.Close()

	flows := make([]*domain.Flow, 0)
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, classifyQueryErr(err)
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryErr(err)
	}

	return flows, nil
}

// buildFlowWhere renders the dynamic WHERE clause with $N parameters.
func buildFlowWhere(q FlowQuery) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, 5)

	appendCond := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}

	if q.UserID != "" {
		appendCond("user_id = $%d", q.UserID)
	}
	if q.SessionID != "" {
		appendCond("session_id = $%d", q.SessionID)
	}
	if q.Status != "" {
		appendCond("status = $%d", q.Status)
	}
	if !q.StartTimeFrom.IsZero() {
		appendCond("start_time >= $%d", q.StartTimeFrom)
	}
	if !q.StartTimeTo.IsZero() {
		appendCond("start_time <= $%d", q.StartTimeTo)
	}

	return sb.String(), args
}

// rowScanner is satisfied by both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFlow reads one flow row, unmarshalling the JSONB documents.
func scanFlow(row rowScanner) (*domain.Flow, error) {
	var (
		flow       domain.Flow
		endPage    sql.NullString
		endTime    sql.NullTime
		durationMS sql.NullInt64
		events     []byte
		metadata   []byte
		metrics    []byte
	)

	err := row.Scan(
		&flow.FlowID, &flow.UserID, &flow.SessionID, &flow.StartPage, &flow.StartTime,
		&endPage, &endTime, &durationMS, &flow.Status,
		&events, &metadata, &metrics, &flow.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	flow.EndPage = endPage.String
	if endTime.Valid {
		t := endTime.Time
		flow.EndTime = &t
	}
	if durationMS.Valid {
		d := durationMS.Int64
		flow.DurationMS = &d
	}

	if err := json.Unmarshal(events, &flow.Events); err != nil {
		return nil, fmt.Errorf("unmarshal flow events: %w", err)
	}
	if err := json.Unmarshal(metadata, &flow.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal flow metadata: %w", err)
	}
	if len(metrics) > 0 {
		flow.Metrics = &domain.FlowMetrics{}
		if err := json.Unmarshal(metrics, flow.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal flow metrics: %w", err)
		}
	}

	return &flow, nil
}

// marshalFlowDocs serializes the embedded JSONB documents of a flow.
func marshalFlowDocs(flow *domain.Flow) (events, metadata, metrics []byte, err error) {
	if flow.Events == nil {
		flow.Events = []domain.FlowEvent{}
	}
	events, err = json.Marshal(flow.Events)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal flow events: %w", err)
	}

	if flow.Metadata == nil {
		flow.Metadata = map[string]any{}
	}
	metadata, err = json.Marshal(flow.Metadata)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal flow metadata: %w", err)
	}

	if flow.Metrics != nil {
		metrics, err = json.Marshal(flow.Metrics)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal flow metrics: %w", err)
		}
	}

	return events, metadata, metrics, nil
}

// nullString converts an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
