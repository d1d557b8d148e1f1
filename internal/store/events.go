package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
)

// columnsPerEvent is the number of columns inserted per event row.
const columnsPerEvent = 22

// insertChunkSize is the maximum number of rows per INSERT statement.
// 45 rows keeps the statement under the driver's 65535-parameter limit
// with ample margin.
const insertChunkSize = 45

// eventsDDL bootstraps the events table. Logically the table is sorted by
// (project_id, date, timestamp); the composite index plus the BRIN index on
// date provide the partition-pruning behavior of the columnar contract.
const eventsDDL = `
CREATE TABLE IF NOT EXISTS events (
	event_id        UUID PRIMARY KEY,
	project_id      TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	event_name      TEXT NOT NULL DEFAULT '',
	timestamp       TIMESTAMPTZ NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL,
	date            DATE NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL DEFAULT '',
	ip_address      TEXT NOT NULL DEFAULT '',
	user_agent      TEXT NOT NULL DEFAULT '',
	device_type     TEXT NOT NULL DEFAULT 'unknown',
	os              TEXT NOT NULL DEFAULT 'unknown',
	browser         TEXT NOT NULL DEFAULT 'unknown',
	country         TEXT,
	city            TEXT,
	properties      JSONB NOT NULL DEFAULT '{}',
	referrer        TEXT NOT NULL DEFAULT '',
	referrer_domain TEXT NOT NULL DEFAULT '',
	utm_source      TEXT NOT NULL DEFAULT '',
	utm_medium      TEXT NOT NULL DEFAULT '',
	utm_campaign    TEXT NOT NULL DEFAULT '',
	utm_term        TEXT NOT NULL DEFAULT '',
	utm_content     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_project_date_ts ON events (project_id, date, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_project_user ON events (project_id, user_id) WHERE user_id <> '';
CREATE INDEX IF NOT EXISTS idx_events_date_brin ON events USING BRIN (date);
`

// EventWriter owns the insert-only events surface.
type EventWriter struct {
	store *Store
	log   logger.Logger
}

// NewEventWriter creates the events surface over the shared store.
func NewEventWriter(s *Store, log logger.Logger) *EventWriter {
	return &EventWriter{store: s, log: log}
}

// EnsureSchema creates the events table and its indexes if absent.
// Calling it twice in succession leaves the store identical.
func (w *EventWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.store.db.ExecContext(ctx, eventsDDL); err != nil {
		return apierror.Wrap(apierror.KindInternal, "events schema bootstrap failed", err)
	}
	return nil
}

// InsertEvents durably persists all records or none of them. The records
// are written inside one transaction so a partial batch never survives a
// failure; transient connection errors retry before surfacing.
func (w *EventWriter) InsertEvents(ctx context.Context, records []domain.EventRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := withTransientRetry(ctx, func() error {
		return w.insertAll(ctx, records)
	})
	if err != nil {
		return 0, classifyWriteErr(err)
	}

	return len(records), nil
}

// insertAll writes every record inside one transaction, chunked to stay
// under the placeholder limit.
func (w *EventWriter) insertAll(ctx context.Context, records []domain.EventRecord) error {
	tx, err := w.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}

		query, args := buildInsert(records[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("exec batch insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}

	return nil
}

// buildInsert renders one multi-row INSERT with $N placeholder tuples.
func buildInsert(records []domain.EventRecord) (string, []any) {
	args := make([]any, 0, len(records)*columnsPerEvent)
	var sb strings.Builder

	sb.WriteString("INSERT INTO events (event_id, project_id, event_type, event_name, " +
		"timestamp, received_at, date, user_id, session_id, ip_address, user_agent, " +
		"device_type, os, browser, properties, referrer, referrer_domain, " +
		"utm_source, utm_medium, utm_campaign, utm_term, utm_content) VALUES ")

	for i := range records {
		if i > 0 {
			sb.WriteString(", ")
		}

		writeEventTuple(&sb, i)

		r := &records[i]
		args = append(args,
			r.EventID, r.ProjectID, r.EventType, r.EventName,
			r.Timestamp, r.ReceivedAt, r.Date, r.UserID, r.SessionID,
			r.IPAddress, r.UserAgent, r.DeviceType, r.OS, r.Browser,
			[]byte(r.Properties), r.Referrer, r.ReferrerDomain,
			r.UTMSource, r.UTMMedium, r.UTMCampaign, r.UTMTerm, r.UTMContent,
		)
	}

	return sb.String(), args
}

// writeEventTuple writes one ($1, ..., $22) placeholder tuple offset by the
// row index.
func writeEventTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * columnsPerEvent

	sb.WriteByte('(')
	for col := 1; col <= columnsPerEvent; col++ {
		if col > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "$%d", base+col)
	}
	sb.WriteByte(')')
}
