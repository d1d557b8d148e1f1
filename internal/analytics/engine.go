// Package analytics compiles the analytical question shapes into
// parameterized store queries and post-processes the results into stable
// response shapes. The engine is stateless per request.
package analytics

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/logger"
)

// dateLayout is the strict request date format.
const dateLayout = "2006-01-02"

// datePattern rejects anything that is not a YYYY-MM-DD literal before
// parsing.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DefaultRecentLimit applies when recent-events is called without a limit.
const DefaultRecentLimit = 100

// Engine executes analytics queries against the events table.
type Engine struct {
	db       *sqlx.DB
	maxLimit int
	log      logger.Logger
}

// NewEngine creates a query engine over the shared store client.
func NewEngine(db *sqlx.DB, maxLimit int, log logger.Logger) *Engine {
	return &Engine{db: db, maxLimit: maxLimit, log: log}
}

// DateRange is an inclusive UTC calendar-day range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange validates and parses a strict YYYY-MM-DD inclusive range.
// Malformed dates or start after end fail with InvalidInput.
func ParseDateRange(startDate, endDate string) (DateRange, error) {
	start, err := parseDay(startDate, "startDate")
	if err != nil {
		return DateRange{}, err
	}

	end, err := parseDay(endDate, "endDate")
	if err != nil {
		return DateRange{}, err
	}

	if start.After(end) {
		return DateRange{}, apierror.New(apierror.KindInvalidInput, "startDate must not be after endDate")
	}

	return DateRange{Start: start, End: end}, nil
}

// ParseDate validates and parses one strict YYYY-MM-DD calendar day.
// field names the request parameter in the InvalidInput message.
func ParseDate(value, field string) (time.Time, error) {
	return parseDay(value, field)
}

// parseDay parses one strict calendar day.
func parseDay(value, field string) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, apierror.New(apierror.KindInvalidInput,
			fmt.Sprintf("%s must be YYYY-MM-DD", field))
	}

	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, apierror.New(apierror.KindInvalidInput,
			fmt.Sprintf("%s is not a valid date", field))
	}

	return day, nil
}

// TypeCount is one count-by-type row.
type TypeCount struct {
	EventType string `db:"event_type" json:"event_type"`
	Count     int64  `db:"count"      json:"count"`
}

// CountByType returns per-type totals ordered by count descending with
// event_type ascending as the tie-break.
func (e *Engine) CountByType(ctx context.Context, projectID string, r DateRange) ([]TypeCount, error) {
	query := `
		SELECT event_type, COUNT(*) AS count
		FROM events
		WHERE project_id = $1 AND date BETWEEN $2 AND $3
		GROUP BY event_type
		ORDER BY count DESC, event_type ASC
	`

	rows := make([]TypeCount, 0)
	if err := e.db.SelectContext(ctx, &rows, query, projectID, r.Start, r.End); err != nil {
		return nil, e.queryErr("count-by-type", err)
	}

	return rows, nil
}

// DayCount is one count-by-day row.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// CountByDay returns per-day totals ordered by date ascending. A non-empty
// eventType restricts the count to that type.
func (e *Engine) CountByDay(ctx context.Context, projectID string, r DateRange, eventType string) ([]DayCount, error) {
	query := `
		SELECT date, COUNT(*) AS count
		FROM events
		WHERE project_id = $1 AND date BETWEEN $2 AND $3
	`
	args := []any{projectID, r.Start, r.End}

	if eventType != "" {
		query += ` AND event_type = $4`
		args = append(args, eventType)
	}
	query += ` GROUP BY date ORDER BY date ASC`

	sqlRows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, e.queryErr("count-by-day", err)
	}
	defer sqlRows.Close()

	rows := make([]DayCount, 0)
	for sqlRows.Next() {
		var (
			day   time.Time
			count int64
		)
		if err := sqlRows.Scan(&day, &count); err != nil {
			return nil, e.queryErr("count-by-day", err)
		}
		rows = append(rows, DayCount{Date: day.Format(dateLayout), Count: count})
	}
	if err := sqlRows.Err(); err != nil {
		return nil, e.queryErr("count-by-day", err)
	}

	return rows, nil
}

// DayUniques is one unique-users-by-day row.
type DayUniques struct {
	Date        string `json:"date"`
	UniqueUsers int64  `json:"unique_users"`
}

// UniqueUsersByDay returns exact distinct user counts per day. Events
// without a user_id are excluded.
func (e *Engine) UniqueUsersByDay(ctx context.Context, projectID string, r DateRange) ([]DayUniques, error) {
	query := `
		SELECT date, COUNT(DISTINCT user_id) AS unique_users
		FROM events
		WHERE project_id = $1 AND date BETWEEN $2 AND $3 AND user_id <> ''
		GROUP BY date
		ORDER BY date ASC
	`

	sqlRows, err := e.db.QueryxContext(ctx, query, projectID, r.Start, r.End)
	if err != nil {
		return nil, e.queryErr("unique-users", err)
	}
	defer sqlRows.Close()

	rows := make([]DayUniques, 0)
	for sqlRows.Next() {
		var (
			day     time.Time
			uniques int64
		)
		if err := sqlRows.Scan(&day, &uniques); err != nil {
			return nil, e.queryErr("unique-users", err)
		}
		rows = append(rows, DayUniques{Date: day.Format(dateLayout), UniqueUsers: uniques})
	}
	if err := sqlRows.Err(); err != nil {
		return nil, e.queryErr("unique-users", err)
	}

	return rows, nil
}

// queryErr logs and classifies a query failure.
func (e *Engine) queryErr(op string, err error) error {
	e.log.Error("Analytics query failed",
		logger.String("op", op),
		logger.Error(err),
	)
	if apierror.KindOf(err) == apierror.KindDeadlineExceeded {
		return apierror.Wrap(apierror.KindDeadlineExceeded, "query deadline exceeded", err)
	}
	return apierror.Wrap(apierror.KindUnavailable, "analytics query failed", err)
}
