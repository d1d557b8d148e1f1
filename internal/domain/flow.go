package domain

import "time"

// Flow status values. A flow is absent until started, then active, and
// finally completed by an explicit end or the idle reaper.
const (
	FlowActive    = "active"
	FlowCompleted = "completed"
)

// FlowEvent is one step recorded inside a flow. Events are embedded value
// records, never references to stored analytics events.
type FlowEvent struct {
	Type      string         `json:"type"`
	Page      string         `json:"page,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// FlowMetrics is derived exactly once when a flow closes.
type FlowMetrics struct {
	TotalEvents  int              `json:"total_events"`
	EventTypes   map[string]int   `json:"event_types"`
	PagesVisited []string         `json:"pages_visited"`
	TimeOnPage   map[string]int64 `json:"time_on_page"`
}

// Flow is one stitched session segment. The events list is strictly
// non-decreasing by timestamp; duration equals end_time minus start_time.
type Flow struct {
	FlowID      string         `json:"flow_id"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	StartPage   string         `json:"start_page"`
	StartTime   time.Time      `json:"start_time"`
	EndPage     string         `json:"end_page,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	Status      string         `json:"status"`
	Events      []FlowEvent    `json:"events"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Metrics     *FlowMetrics   `json:"metrics,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// IsActive reports whether the flow still accepts events.
func (f *Flow) IsActive() bool {
	return f.Status == FlowActive
}
