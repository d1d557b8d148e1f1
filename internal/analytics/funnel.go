package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/radixinsight/analytics/internal/apierror"
)

// minFunnelSteps is the smallest meaningful funnel.
const minFunnelSteps = 2

// ratioPrecision is the number of decimal places kept on conversion and
// drop-off ratios.
const ratioPrecision = 4

// FunnelStep is one ordered predicate in a funnel definition. Conditions
// match string equality on JSON property extraction.
type FunnelStep struct {
	EventType  string            `json:"eventType"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// FunnelStepResult reports how many users reached one step.
type FunnelStepResult struct {
	Step        int     `json:"step"`
	EventType   string  `json:"event_type"`
	Count       int64   `json:"count"`
	DropOff     int64   `json:"drop_off"`
	DropOffRate float64 `json:"drop_off_rate"`
}

// FunnelResult is the detailed funnel response shape.
type FunnelResult struct {
	Steps             []FunnelStepResult `json:"steps"`
	ConversionRates   []float64          `json:"conversion_rates"`
	OverallConversion float64            `json:"overall_conversion"`
	TotalUsers        int64              `json:"total_users"`
}

// Funnel computes per-step reach counts. Step 1 time is the minimum
// matching timestamp per user; step i is reached iff a matching event
// exists with timestamp strictly greater than the step i-1 time. The
// ordered self-joins run inside the store as chained CTEs.
func (e *Engine) Funnel(ctx context.Context, projectID string, r DateRange, steps []FunnelStep) (*FunnelResult, error) {
	if len(steps) < minFunnelSteps {
		return nil, apierror.New(apierror.KindInvalidInput, "funnel requires at least 2 steps")
	}
	for i, step := range steps {
		if step.EventType == "" {
			return nil, apierror.New(apierror.KindInvalidInput,
				fmt.Sprintf("step %d is missing eventType", i+1))
		}
	}

	query, args := buildFunnelQuery(projectID, r, steps)

	row := e.db.QueryRowxContext(ctx, query, args...)
	counts := make([]int64, len(steps))
	dests := make([]any, len(steps))
	for i := range counts {
		dests[i] = &counts[i]
	}
	if err := row.Scan(dests...); err != nil {
		return nil, e.queryErr("funnel", err)
	}

	return assembleFunnel(steps, counts), nil
}

// buildFunnelQuery renders the chained-CTE funnel query with every
// user-supplied value bound as a parameter.
func buildFunnelQuery(projectID string, r DateRange, steps []FunnelStep) (string, []any) {
	args := []any{projectID, r.Start, r.End}
	var sb strings.Builder

	sb.WriteString("WITH ")

	for i, step := range steps {
		if i > 0 {
			sb.WriteString(", ")
		}

		predicate := buildStepPredicate(step, &args)

		if i == 0 {
			fmt.Fprintf(&sb,
				"step1 AS (SELECT user_id, MIN(timestamp) AS t FROM events "+
					"WHERE project_id = $1 AND date BETWEEN $2 AND $3 AND user_id <> ''%s "+
					"GROUP BY user_id)",
				predicate,
			)
			continue
		}

		// Strictly greater: equal-timestamp events are the same instant.
		fmt.Fprintf(&sb,
			"step%d AS (SELECT e.user_id, MIN(e.timestamp) AS t FROM events e "+
				"JOIN step%d p ON p.user_id = e.user_id AND e.timestamp > p.t "+
				"WHERE e.project_id = $1 AND e.date BETWEEN $2 AND $3%s "+
				"GROUP BY e.user_id)",
			i+1, i, predicate,
		)
	}

	sb.WriteString(" SELECT ")
	for i := range steps {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "(SELECT COUNT(*) FROM step%d)", i+1)
	}

	return sb.String(), args
}

// buildStepPredicate renders the event_type and property-equality
// conditions for one step, appending their parameter values to args.
func buildStepPredicate(step FunnelStep, args *[]any) string {
	var sb strings.Builder

	*args = append(*args, step.EventType)
	fmt.Fprintf(&sb, " AND event_type = $%d", len(*args))

	for _, key := range sortedKeys(step.Conditions) {
		*args = append(*args, key)
		keyIdx := len(*args)
		*args = append(*args, step.Conditions[key])
		fmt.Fprintf(&sb, " AND properties ->> $%d = $%d", keyIdx, len(*args))
	}

	return sb.String()
}

// sortedKeys returns map keys in deterministic order so generated SQL is
// stable for identical requests.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// assembleFunnel turns raw per-step counts into the detailed result shape.
func assembleFunnel(steps []FunnelStep, counts []int64) *FunnelResult {
	result := &FunnelResult{
		Steps:           make([]FunnelStepResult, len(steps)),
		ConversionRates: make([]float64, 0, len(steps)-1),
		TotalUsers:      counts[0],
	}

	for i := range steps {
		stepResult := FunnelStepResult{
			Step:      i + 1,
			EventType: steps[i].EventType,
			Count:     counts[i],
		}

		if i > 0 {
			stepResult.DropOff = counts[i-1] - counts[i]
			stepResult.DropOffRate = roundRatio(stepResult.DropOff, counts[i-1])
			result.ConversionRates = append(result.ConversionRates, roundRatio(counts[i], counts[i-1]))
		}

		result.Steps[i] = stepResult
	}

	result.OverallConversion = roundRatio(counts[len(counts)-1], counts[0])
	return result
}

// roundRatio computes num/den rounded to ratioPrecision decimals; a zero
// denominator yields 0.
func roundRatio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	factor := math.Pow10(ratioPrecision)
	return math.Round(float64(num)/float64(den)*factor) / factor
}
