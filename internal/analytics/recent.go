package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/radixinsight/analytics/internal/domain"
)

// RecentFilter selects events for the recent-events listing. Zero values
// mean "any"; Limit is clamped to the engine's max.
type RecentFilter struct {
	ProjectID string
	EventType string
	UserID    string
	SessionID string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// RecentEvents returns up to limit events ordered by timestamp descending,
// skipping offset. Properties come back as a parsed JSON object.
func (e *Engine) RecentEvents(ctx context.Context, f RecentFilter) ([]domain.EventRecord, error) {
	limit := f.Limit
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	if limit < 0 {
		limit = 0
	}
	if limit == 0 {
		return []domain.EventRecord{}, nil
	}

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := buildRecentWhere(f)
	query := fmt.Sprintf(`
		SELECT event_id, project_id, event_type, event_name, timestamp, received_at,
		       date, user_id, session_id, device_type, os, browser,
		       properties, referrer, referrer_domain,
		       utm_source, utm_medium, utm_campaign, utm_term, utm_content
		FROM events
		WHERE project_id = $1%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, e.queryErr("recent-events", err)
	}
	defer rows.Close()

	events := make([]domain.EventRecord, 0, limit)
	for rows.Next() {
		var (
			rec        domain.EventRecord
			properties []byte
		)
		err := rows.Scan(
			&rec.EventID, &rec.ProjectID, &rec.EventType, &rec.EventName,
			&rec.Timestamp, &rec.ReceivedAt, &rec.Date, &rec.UserID, &rec.SessionID,
			&rec.DeviceType, &rec.OS, &rec.Browser,
			&properties, &rec.Referrer, &rec.ReferrerDomain,
			&rec.UTMSource, &rec.UTMMedium, &rec.UTMCampaign, &rec.UTMTerm, &rec.UTMContent,
		)
		if err != nil {
			return nil, e.queryErr("recent-events", err)
		}
		rec.Properties = properties
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, e.queryErr("recent-events", err)
	}

	return events, nil
}

// buildRecentWhere renders the optional filter clauses with $N parameters.
// $1 is always the project id.
func buildRecentWhere(f RecentFilter) (string, []any) {
	var sb strings.Builder
	args := []any{f.ProjectID}

	appendCond := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}

	if f.EventType != "" {
		appendCond("event_type = $%d", f.EventType)
	}
	if f.UserID != "" {
		appendCond("user_id = $%d", f.UserID)
	}
	if f.SessionID != "" {
		appendCond("session_id = $%d", f.SessionID)
	}
	if f.StartDate != nil {
		appendCond("date >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		appendCond("date <= $%d", *f.EndDate)
	}

	return sb.String(), args
}
