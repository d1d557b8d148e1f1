package analytics

import (
	"context"
	"math"
	"time"

	"github.com/radixinsight/analytics/internal/apierror"
)

// Retention bucket intervals. Weeks are Monday-based; months snap to the
// first of the month (both are what date_trunc produces).
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

// maxRetentionPeriod caps reported periods at 0..8 inclusive.
const maxRetentionPeriod = 8

// ratePrecision is the number of decimal places kept on retention rates.
const ratePrecision = 2

// RetentionCell is one (period, users) entry for a cohort.
type RetentionCell struct {
	Period        int     `json:"period"`
	Users         int64   `json:"users"`
	RetentionRate float64 `json:"retention_rate"`
}

// RetentionCohort is one cohort row with its zero-filled period grid.
type RetentionCohort struct {
	CohortDate string          `json:"cohort_date"`
	CohortSize int64           `json:"cohort_size"`
	Retention  []RetentionCell `json:"retention"`
}

// RetentionResult is the retention response shape.
type RetentionResult struct {
	Interval string            `json:"interval"`
	Periods  []int             `json:"periods"`
	Cohorts  []RetentionCohort `json:"cohorts"`
}

// Retention buckets users by their first-seen interval within the range
// and reports, per cohort, how many return in each subsequent period.
// Missing (cohort, period) pairs materialize as zeros.
func (e *Engine) Retention(ctx context.Context, projectID string, r DateRange, interval string) (*RetentionResult, error) {
	switch interval {
	case IntervalDay, IntervalWeek, IntervalMonth:
	case "":
		interval = IntervalDay
	default:
		return nil, apierror.New(apierror.KindInvalidInput, "interval must be day, week, or month")
	}

	// The bucketing happens in the store; the interval name is bound as a
	// parameter to date_trunc, never interpolated.
	query := `
		WITH user_buckets AS (
			SELECT user_id, date_trunc($4, date::timestamp) AS bucket
			FROM events
			WHERE project_id = $1 AND date BETWEEN $2 AND $3 AND user_id <> ''
			GROUP BY user_id, bucket
		), cohorts AS (
			SELECT user_id, MIN(bucket) AS cohort
			FROM user_buckets
			GROUP BY user_id
		)
		SELECT c.cohort, ub.bucket, COUNT(DISTINCT ub.user_id) AS users
		FROM user_buckets ub
		JOIN cohorts c ON c.user_id = ub.user_id
		GROUP BY c.cohort, ub.bucket
		ORDER BY c.cohort ASC, ub.bucket ASC
	`

	rows, err := e.db.QueryxContext(ctx, query, projectID, r.Start, r.End, interval)
	if err != nil {
		return nil, e.queryErr("retention", err)
	}
	defer rows.Close()

	raw := make([]retentionRow, 0)
	for rows.Next() {
		var br retentionRow
		if err := rows.Scan(&br.cohort, &br.bucket, &br.users); err != nil {
			return nil, e.queryErr("retention", err)
		}
		raw = append(raw, br)
	}
	if err := rows.Err(); err != nil {
		return nil, e.queryErr("retention", err)
	}

	return assembleRetention(interval, raw), nil
}

// retentionRow is one (cohort, bucket, users) row from the store.
type retentionRow struct {
	cohort time.Time
	bucket time.Time
	users  int64
}

// assembleRetention folds (cohort, bucket, users) rows into the zero-filled
// cohort grid.
func assembleRetention(interval string, raw []retentionRow) *RetentionResult {
	result := &RetentionResult{
		Interval: interval,
		Periods:  make([]int, maxRetentionPeriod+1),
		Cohorts:  make([]RetentionCohort, 0),
	}
	for p := 0; p <= maxRetentionPeriod; p++ {
		result.Periods[p] = p
	}

	// users[cohort][period], keyed by cohort date string to keep insertion
	// order from the sorted query.
	grid := make(map[string][]int64)
	order := make([]string, 0)

	for _, row := range raw {
		period := periodIndex(interval, row.cohort, row.bucket)
		if period < 0 || period > maxRetentionPeriod {
			continue
		}

		key := row.cohort.UTC().Format(dateLayout)
		if _, seen := grid[key]; !seen {
			grid[key] = make([]int64, maxRetentionPeriod+1)
			order = append(order, key)
		}
		grid[key][period] = row.users
	}

	for _, key := range order {
		users := grid[key]
		cohort := RetentionCohort{
			CohortDate: key,
			CohortSize: users[0],
			Retention:  make([]RetentionCell, maxRetentionPeriod+1),
		}

		for p := 0; p <= maxRetentionPeriod; p++ {
			cohort.Retention[p] = RetentionCell{
				Period:        p,
				Users:         users[p],
				RetentionRate: roundRate(users[p], cohort.CohortSize),
			}
		}

		result.Cohorts = append(result.Cohorts, cohort)
	}

	return result
}

// periodIndex computes how many whole intervals separate a bucket from its
// cohort bucket.
func periodIndex(interval string, cohort, bucket time.Time) int {
	cohort = cohort.UTC()
	bucket = bucket.UTC()

	switch interval {
	case IntervalWeek:
		return int(bucket.Sub(cohort).Hours() / (24 * 7))
	case IntervalMonth:
		years := bucket.Year() - cohort.Year()
		months := int(bucket.Month()) - int(cohort.Month())
		return years*12 + months
	default:
		return int(bucket.Sub(cohort).Hours() / 24)
	}
}

// roundRate computes users/cohortSize as a percentage rounded to two
// decimal places; an empty cohort yields 0.
func roundRate(users, cohortSize int64) float64 {
	if cohortSize == 0 {
		return 0
	}
	factor := math.Pow10(ratePrecision)
	return math.Round(float64(users)/float64(cohortSize)*100*factor) / factor
}
