// Package ingest implements the event ingestion service: validation,
// enrichment, and durable writes with at-least-once semantics.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/radixinsight/analytics/internal/apierror"
	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/event"
	"github.com/radixinsight/analytics/internal/logger"
)

// Writer is the store surface ingestion depends on.
type Writer interface {
	InsertEvents(ctx context.Context, records []domain.EventRecord) (int, error)
}

// Service validates and persists submitted events.
type Service struct {
	writer   Writer
	maxBatch int
	log      logger.Logger
	now      func() time.Time
}

// NewService creates an ingestion service.
func NewService(writer Writer, maxBatch int, log logger.Logger) *Service {
	return &Service{
		writer:   writer,
		maxBatch: maxBatch,
		log:      log,
		now:      time.Now,
	}
}

// TrackOne builds and writes a single record. projectID is the identity
// validated from the API key; it must match the event's own project.
// Returns the server-assigned event id.
func (s *Service) TrackOne(ctx context.Context, projectID string, raw event.Raw, reqCtx event.RequestContext) (string, error) {
	if err := checkProject(projectID, raw.ProjectID); err != nil {
		return "", err
	}

	record, err := event.Build(raw, reqCtx, s.now().UTC())
	if err != nil {
		return "", err
	}

	if _, err := s.writer.InsertEvents(ctx, []domain.EventRecord{record}); err != nil {
		s.log.Error("Event write failed",
			logger.String("project_id", projectID),
			logger.Error(err),
		)
		return "", err
	}

	return record.EventID, nil
}

// TrackBatch builds and writes a batch in one adapter call. The batch is
// all-or-nothing: any invalid event rejects the entire submission, and the
// returned ids preserve submission order.
func (s *Service) TrackBatch(ctx context.Context, projectID string, raws []event.Raw, reqCtx event.RequestContext) ([]string, error) {
	if len(raws) == 0 {
		return nil, apierror.New(apierror.KindInvalidInput, "events list must not be empty")
	}
	if len(raws) > s.maxBatch {
		return nil, apierror.New(apierror.KindInvalidInput,
			fmt.Sprintf("batch exceeds %d events", s.maxBatch))
	}

	now := s.now().UTC()
	records := make([]domain.EventRecord, 0, len(raws))

	for i, raw := range raws {
		if err := checkProject(projectID, raw.ProjectID); err != nil {
			return nil, err
		}

		record, err := event.Build(raw, reqCtx, now)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInvalidInput,
				fmt.Sprintf("invalid event at index %d", i), err)
		}
		records = append(records, record)
	}

	if _, err := s.writer.InsertEvents(ctx, records); err != nil {
		s.log.Error("Batch write failed",
			logger.String("project_id", projectID),
			logger.Int("batch_size", len(records)),
			logger.Error(err),
		)
		return nil, err
	}

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].EventID
	}

	return ids, nil
}

// checkProject rejects events whose project does not match the
// authenticated one.
func checkProject(authProject, eventProject string) error {
	if eventProject == "" {
		return apierror.New(apierror.KindInvalidInput, "projectId is required")
	}
	if eventProject != authProject {
		return apierror.New(apierror.KindForbidden, "event project does not match API key project")
	}
	return nil
}
