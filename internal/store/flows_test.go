package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// flowColumnNames mirrors the flows select column order.
var flowColumnNames = []string{
	"flow_id", "user_id", "session_id", "start_page", "start_time",
	"end_page", "end_time", "duration_ms", "status", "events", "metadata", "metrics", "last_updated",
}

func testFlow(t *testing.T) *domain.Flow {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Flow{
		FlowID:      "f-1",
		UserID:      "u1",
		SessionID:   "s1",
		StartPage:   "/home",
		StartTime:   now,
		Status:      domain.FlowActive,
		Events:      []domain.FlowEvent{},
		LastUpdated: now,
	}
}

func TestFlowStoreInsert_DuplicateActive(t *testing.T) {
	st, mock := newMockStore(t)
	flows := store.NewFlowStore(st, logger.NewNop())

	mock.ExpectExec("INSERT INTO flows").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "idx_flows_active_session"`))

	err := flows.Insert(context.Background(), testFlow(t))
	if !errors.Is(err, store.ErrDuplicateActive) {
		t.Fatalf("expected ErrDuplicateActive, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFlowStoreUpdateByID_StaleToken(t *testing.T) {
	st, mock := newMockStore(t)
	flows := store.NewFlowStore(st, logger.NewNop())

	flow := testFlow(t)
	token := flow.LastUpdated
	flow.LastUpdated = token.Add(time.Second)

	// No rows match the (flow_id, last_updated) pair: a racing writer won.
	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := flows.UpdateByID(context.Background(), flow, token)
	if !errors.Is(err, store.ErrStaleUpdate) {
		t.Fatalf("expected ErrStaleUpdate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFlowStoreUpdateByID_Success(t *testing.T) {
	st, mock := newMockStore(t)
	flows := store.NewFlowStore(st, logger.NewNop())

	flow := testFlow(t)
	token := flow.LastUpdated
	flow.LastUpdated = token.Add(time.Second)

	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := flows.UpdateByID(context.Background(), flow, token); err != nil {
		t.Fatalf("UpdateByID() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFlowStoreFindOne_Absent(t *testing.T) {
	st, mock := newMockStore(t)
	flows := store.NewFlowStore(st, logger.NewNop())

	mock.ExpectQuery("SELECT (.+) FROM flows").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(flowColumnNames))

	flow, err := flows.FindOne(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindOne() error: %v", err)
	}
	if flow != nil {
		t.Fatalf("expected nil flow for unknown id, got %+v", flow)
	}
}

func TestFlowStoreFindOne_ScansDocuments(t *testing.T) {
	st, mock := newMockStore(t)
	flows := store.NewFlowStore(st, logger.NewNop())

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(flowColumnNames).AddRow(
		"f-1", "u1", "s1", "/home", started,
		nil, nil, nil, "active",
		[]byte(`[{"type":"click","page":"/pricing","timestamp":"2025-03-01T12:01:00Z"}]`),
		[]byte(`{"source":"web"}`), nil, started,
	)

	mock.ExpectQuery("SELECT (.+) FROM flows").
		WithArgs("f-1").
		WillReturnRows(rows)

	flow, err := flows.FindOne(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("FindOne() error: %v", err)
	}
	if flow == nil {
		t.Fatal("expected a flow")
	}

	if flow.Status != domain.FlowActive {
		t.Errorf("expected active status, got %q", flow.Status)
	}
	if len(flow.Events) != 1 || flow.Events[0].Type != "click" {
		t.Errorf("unexpected events: %+v", flow.Events)
	}
	if flow.Metadata["source"] != "web" {
		t.Errorf("unexpected metadata: %+v", flow.Metadata)
	}
	if flow.EndTime != nil || flow.DurationMS != nil {
		t.Error("expected open flow to have no end fields")
	}
}
