package flow

import (
	"time"

	"github.com/radixinsight/analytics/internal/domain"
)

// closeFlow transitions a flow to completed: end fields, merged metadata,
// and metrics, which are computed exactly once here.
func closeFlow(flow *domain.Flow, endPage string, endTime time.Time, metadata map[string]any) {
	flow.Status = domain.FlowCompleted
	flow.EndPage = endPage
	flow.EndTime = &endTime

	duration := endTime.Sub(flow.StartTime).Milliseconds()
	flow.DurationMS = &duration

	if len(metadata) > 0 {
		if flow.Metadata == nil {
			flow.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			flow.Metadata[k] = v
		}
	}

	flow.Metrics = computeMetrics(flow, endTime)
}

// computeMetrics derives the per-flow metrics at close time.
//
// Page-dwell accounting: the initial page is start_page from start_time.
// Every event whose page differs from the current page closes the interval
// [prev.ts, event.ts) against the previous page; the final interval
// [last.ts, end_time) goes to the then-current page. Events without a page
// do not change the current page.
func computeMetrics(flow *domain.Flow, endTime time.Time) *domain.FlowMetrics {
	metrics := &domain.FlowMetrics{
		TotalEvents:  len(flow.Events),
		EventTypes:   make(map[string]int),
		PagesVisited: make([]string, 0),
		TimeOnPage:   make(map[string]int64),
	}

	visited := make(map[string]bool)
	visit := func(page string) {
		if page != "" && !visited[page] {
			visited[page] = true
			metrics.PagesVisited = append(metrics.PagesVisited, page)
		}
	}

	visit(flow.StartPage)

	currentPage := flow.StartPage
	intervalStart := flow.StartTime

	for _, evt := range flow.Events {
		metrics.EventTypes[evt.Type]++

		if evt.Page == "" || evt.Page == currentPage {
			continue
		}

		if currentPage != "" {
			metrics.TimeOnPage[currentPage] += evt.Timestamp.Sub(intervalStart).Milliseconds()
		}
		currentPage = evt.Page
		intervalStart = evt.Timestamp
		visit(currentPage)
	}

	if currentPage != "" && endTime.After(intervalStart) {
		metrics.TimeOnPage[currentPage] += endTime.Sub(intervalStart).Milliseconds()
	}

	return metrics
}
