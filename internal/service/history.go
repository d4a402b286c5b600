package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/history"
	"github.com/persistorai/doctrail/internal/metrics"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/replay"
	"github.com/persistorai/doctrail/internal/tracking"
)

// Compile-time check: *HistoryService must satisfy domain.HistoryService.
var _ domain.HistoryService = (*HistoryService)(nil)

// Replayer reverts and re-applies history records.
type Replayer interface {
	Replay(ctx context.Context, rec *models.HistoryRecord, dir replay.Direction, actor string) (*models.Document, error)
}

// HistoryService exposes history records with their projections and drives
// undo/redo through the replay engine.
type HistoryService struct {
	store    domain.HistoryStore
	specs    domain.SpecLookup
	replayer Replayer
	log      *logrus.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(store domain.HistoryStore, specs domain.SpecLookup, replayer Replayer, log *logrus.Logger) *HistoryService {
	return &HistoryService{store: store, specs: specs, replayer: replayer, log: log}
}

// ListHistory returns matching records, newest first, with projections
// filtered by each type's current tracking spec.
func (s *HistoryService) ListHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryView, bool, error) {
	recs, hasMore, err := s.store.QueryHistory(ctx, q)
	if err != nil {
		return nil, false, err
	}

	views := make([]models.HistoryView, 0, len(recs))
	for i := range recs {
		views = append(views, s.view(&recs[i]))
	}

	return views, hasMore, nil
}

// GetHistory returns one record with its projections.
func (s *HistoryService) GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryView, error) {
	rec, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	v := s.view(rec)

	return &v, nil
}

// Undo reverts the record with the given id on behalf of actor.
func (s *HistoryService) Undo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error) {
	return s.replay(ctx, id, replay.Undo, actor)
}

// Redo re-applies the record with the given id on behalf of actor.
func (s *HistoryService) Redo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error) {
	return s.replay(ctx, id, replay.Redo, actor)
}

func (s *HistoryService) replay(ctx context.Context, id uuid.UUID, dir replay.Direction, actor string) (*models.Document, error) {
	ctx, span := tracer.Start(ctx, "history."+string(dir), trace.WithAttributes(
		attribute.String("history.id", id.String()),
	))
	defer span.End()

	rec, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(
		attribute.String("history.action", string(rec.Action)),
		attribute.String("history.chain", rec.Chain.String()),
	)

	doc, err := s.replayer.Replay(ctx, rec, dir, actor)
	if err != nil {
		return nil, spanError(span, err)
	}

	metrics.ReplayTotal.WithLabelValues(string(dir), string(rec.Action)).Inc()

	return doc, nil
}

// PurgeHistory deletes records older than retentionDays and logs the result.
func (s *HistoryService) PurgeHistory(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 1 {
		return 0, &models.ValidationError{Type: "history", Fields: []string{"retention_days"}, Reason: "must be at least 1"}
	}

	deleted, err := s.store.PurgeHistory(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	metrics.PurgedRecordsTotal.Add(float64(deleted))

	s.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("history.purge")

	return deleted, nil
}

// view projects rec through its type's current spec. A type that is no
// longer tracked reports no fields.
func (s *HistoryService) view(rec *models.HistoryRecord) models.HistoryView {
	spec, ok := s.specs.Spec(rec.Type)
	if !ok {
		spec = &tracking.Spec{}
	}

	return history.NewProjection(rec, spec).View()
}

// RunRetention purges records older than retentionDays every interval until
// ctx is cancelled.
func (s *HistoryService) RunRetention(ctx context.Context, retentionDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeHistory(ctx, retentionDays); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("history.purge_failed")
			}
		}
	}
}
