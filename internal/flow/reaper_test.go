package flow

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
)

func newTestReaper(t *testing.T) (*Reaper, sqlmock.Sqlmock) {
	t.Helper()

	tracker, mock := newTestTracker(t)
	return NewReaper(tracker, time.Minute, logger.NewNop()), mock
}

func idleFlow(lastUpdated time.Time) *domain.Flow {
	return &domain.Flow{
		FlowID:      "f-idle",
		UserID:      "u1",
		SessionID:   "s1",
		StartPage:   "/home",
		StartTime:   lastUpdated.Add(-10 * time.Minute),
		Status:      domain.FlowActive,
		Events:      []domain.FlowEvent{},
		LastUpdated: lastUpdated,
	}
}

func TestSweep_ClosesIdleFlow(t *testing.T) {
	reaper, mock := newTestReaper(t)

	// One active flow past the idle horizon; the sweep closes it.
	idle := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM flows").
		WillReturnRows(activeFlowRow(idle))
	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 1))

	reaper.Sweep()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSweep_SkipsFlowClosedByRacingWriter(t *testing.T) {
	reaper, mock := newTestReaper(t)

	// The compare-and-update loses: a concurrent add_event or end_flow
	// moved last_updated. The sweep moves on without error.
	idle := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM flows").
		WillReturnRows(activeFlowRow(idle))
	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	reaper.Sweep()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReapOne_ClosesAtLastActivity(t *testing.T) {
	reaper, mock := newTestReaper(t)

	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 1))

	lastUpdated := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	flow := idleFlow(lastUpdated)

	if !reaper.reapOne(context.Background(), flow) {
		t.Fatal("expected the flow to be reaped")
	}

	if flow.Status != domain.FlowCompleted {
		t.Errorf("expected completed status, got %q", flow.Status)
	}
	if flow.EndTime == nil || !flow.EndTime.Equal(lastUpdated) {
		t.Errorf("expected end time at last activity %v, got %v", lastUpdated, flow.EndTime)
	}
	if flow.EndPage != "" {
		t.Errorf("expected empty end page, got %q", flow.EndPage)
	}
	if flow.Metadata["timeout"] != true {
		t.Errorf("expected timeout marker, got %v", flow.Metadata)
	}
	if flow.DurationMS == nil || *flow.DurationMS != 10*60*1000 {
		t.Errorf("expected 10m duration, got %v", flow.DurationMS)
	}
}

func TestReapOne_StaleUpdateSkipped(t *testing.T) {
	reaper, mock := newTestReaper(t)

	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flow := idleFlow(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	if reaper.reapOne(context.Background(), flow) {
		t.Fatal("expected a stale update to be skipped")
	}
}
