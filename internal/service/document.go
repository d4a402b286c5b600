// Package service provides business logic between API handlers and data stores.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/persistorai/doctrail/internal/diff"
	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/history"
	"github.com/persistorai/doctrail/internal/metrics"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
)

var tracer = otel.Tracer("doctrail.service")

// Compile-time checks.
var (
	_ domain.DocumentService = (*DocumentService)(nil)
	_ domain.Mutator         = (*DocumentService)(nil)
)

// FeedEnqueuer receives committed history records for asynchronous fan-out.
type FeedEnqueuer interface {
	Enqueue(rec *models.HistoryRecord)
}

// DocumentService is the tracked save boundary for root documents. Every
// create, save and destroy walks the embedded tree, assembles the history
// records of each tracked entity and commits them with the document write.
type DocumentService struct {
	store     domain.DocumentStore
	types     schema.Lookup
	specs     domain.SpecLookup
	builder   *diff.Builder
	assembler *history.Assembler
	feed      FeedEnqueuer
	log       *logrus.Logger
}

// NewDocumentService creates a DocumentService. feed may be nil.
func NewDocumentService(
	store domain.DocumentStore,
	types schema.Lookup,
	specs domain.SpecLookup,
	feed FeedEnqueuer,
	log *logrus.Logger,
) *DocumentService {
	builder := diff.NewBuilder(types)

	return &DocumentService{
		store:     store,
		types:     types,
		specs:     specs,
		builder:   builder,
		assembler: history.NewAssembler(builder),
		feed:      feed,
		log:       log,
	}
}

// GetDocument returns a single document (pass-through).
func (s *DocumentService) GetDocument(ctx context.Context, typeName, id string) (*models.Document, error) {
	if _, err := s.typeOf(typeName); err != nil {
		return nil, err
	}

	return s.store.FindByID(ctx, typeName, id)
}

// ListDocuments returns a page of documents of one type (pass-through).
func (s *DocumentService) ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error) {
	if _, err := s.typeOf(typeName); err != nil {
		return nil, false, err
	}

	return s.store.ListDocuments(ctx, typeName, limit, offset)
}

// CreateDocument creates a root document from req. A missing id is generated.
func (s *DocumentService) CreateDocument(ctx context.Context, typeName string, req models.SaveDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	return s.Create(ctx, &models.Document{Type: typeName, ID: id, Attributes: req.Attributes})
}

// SaveDocument replaces the attributes of an existing document. A zero
// revision in req saves against the currently stored revision.
func (s *DocumentService) SaveDocument(ctx context.Context, typeName, id string, req models.SaveDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.Save(ctx, &models.Document{Type: typeName, ID: id, Revision: req.Revision, Attributes: req.Attributes})
}

// DestroyDocument deletes a document and everything embedded in it.
func (s *DocumentService) DestroyDocument(ctx context.Context, typeName, id string) error {
	return s.Destroy(ctx, typeName, id)
}

// Create commits a new root document. A version value supplied in the
// attributes is the baseline the first record increments. On success doc is
// updated in place with the stored state.
func (s *DocumentService) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.create", doc.Type, doc.ID)
	defer span.End()

	typ, err := s.typeOf(doc.Type)
	if err != nil {
		return nil, spanError(span, err)
	}

	if doc.ID == "" {
		return nil, spanError(span, &models.ValidationError{Type: doc.Type, Fields: []string{"id"}, Reason: models.ErrMissingID.Error()})
	}

	working, err := s.prepare(typ, doc.Attributes)
	if err != nil {
		return nil, spanError(span, err)
	}

	c := s.newCascade(ctx)
	if err := c.created(typ, &models.Entity{Type: doc.Type, ID: doc.ID, Attributes: working}); err != nil {
		return nil, spanError(span, err)
	}

	out, err := s.commit(ctx, &models.Commit{
		Op:       models.OpPut,
		Document: &models.Document{Type: doc.Type, ID: doc.ID, Attributes: working},
		Records:  c.records,
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	*doc = *out.Clone()

	return out, nil
}

// Save commits changed attributes of an existing root document. Versions are
// taken from the stored document, never from the caller.
func (s *DocumentService) Save(ctx context.Context, doc *models.Document) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.save", doc.Type, doc.ID)
	defer span.End()

	typ, err := s.typeOf(doc.Type)
	if err != nil {
		return nil, spanError(span, err)
	}

	stored, err := s.store.FindByID(ctx, doc.Type, doc.ID)
	if err != nil {
		return nil, spanError(span, err)
	}

	expected := doc.Revision
	if expected == 0 {
		expected = stored.Revision
	}

	if expected != stored.Revision {
		metrics.ConflictsTotal.Inc()

		return nil, spanError(span, fmt.Errorf("document %s/%s at revision %d, stored %d: %w",
			doc.Type, doc.ID, expected, stored.Revision, models.ErrConflict))
	}

	working, err := s.prepare(typ, doc.Attributes)
	if err != nil {
		return nil, spanError(span, err)
	}

	s.carryVersion(doc.Type, stored.Attributes, working)

	c := s.newCascade(ctx)
	if err := c.updated(typ, &models.Entity{Type: doc.Type, ID: doc.ID, Attributes: working}, stored.Attributes); err != nil {
		return nil, spanError(span, err)
	}

	if len(c.records) == 0 && models.Equal(stored.Attributes, working) {
		*doc = *stored.Clone()

		return stored, nil
	}

	out, err := s.commit(ctx, &models.Commit{
		Op:               models.OpPut,
		Document:         &models.Document{Type: doc.Type, ID: doc.ID, Attributes: working},
		ExpectedRevision: expected,
		Records:          c.records,
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	*doc = *out.Clone()

	return out, nil
}

// Destroy deletes a root document, recording the destruction of every
// tracked embedded entity first.
func (s *DocumentService) Destroy(ctx context.Context, typeName, id string) error {
	ctx, span := s.startSpan(ctx, "document.destroy", typeName, id)
	defer span.End()

	typ, err := s.typeOf(typeName)
	if err != nil {
		return spanError(span, err)
	}

	stored, err := s.store.FindByID(ctx, typeName, id)
	if err != nil {
		return spanError(span, err)
	}

	c := s.newCascade(ctx)
	if err := c.destroyed(typ, &models.Entity{Type: typeName, ID: id, Attributes: models.CloneMap(stored.Attributes)}); err != nil {
		return spanError(span, err)
	}

	_, err = s.commit(ctx, &models.Commit{
		Op:               models.OpDelete,
		Document:         stored,
		ExpectedRevision: stored.Revision,
		Records:          c.records,
	})

	return spanError(span, err)
}

// PreviewDiff computes the tracked diff an event would record without
// writing anything.
func (s *DocumentService) PreviewDiff(
	ctx context.Context, typeName, id string, req models.SaveDocumentRequest, action models.Action,
) (map[string]models.FromTo, error) {
	typ, err := s.typeOf(typeName)
	if err != nil {
		return nil, err
	}

	spec, ok := s.specs.Spec(typeName)
	if !ok {
		return nil, &models.ConfigurationError{Type: typeName, Reason: "type is not tracked"}
	}

	e := &models.Entity{Type: typeName, ID: id}

	switch action {
	case models.ActionCreate:
		if e.Attributes, err = s.prepare(typ, req.Attributes); err != nil {
			return nil, err
		}
	case models.ActionUpdate, models.ActionDestroy:
		stored, err := s.store.FindByID(ctx, typeName, id)
		if err != nil {
			return nil, err
		}

		e.Attributes = stored.Attributes

		if action == models.ActionUpdate {
			working, err := s.prepare(typ, req.Attributes)
			if err != nil {
				return nil, err
			}

			e.Attributes = working
			e.Changes = rawChanges(stored.Attributes, working)
		}
	default:
		return nil, &models.ValidationError{Type: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}

	d, err := s.builder.Build(spec, e, action)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.FromTo, len(d))
	for k, c := range d {
		out[k] = models.FromTo{From: c.Before(), To: c.After()}
	}

	return out, nil
}

// commit writes c and, on success, records metrics and hands the records to
// the feed.
func (s *DocumentService) commit(ctx context.Context, c *models.Commit) (*models.Document, error) {
	out, err := s.store.Commit(ctx, c)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			metrics.ConflictsTotal.Inc()
		}

		return nil, err
	}

	for _, rec := range c.Records {
		metrics.HistoryRecordsTotal.WithLabelValues(string(rec.Action)).Inc()

		s.log.WithFields(logrus.Fields{
			"record":  rec.ID,
			"scope":   rec.Scope,
			"action":  rec.Action,
			"chain":   rec.Chain.String(),
			"version": rec.Version,
		}).Debug("history.recorded")

		if s.feed != nil {
			s.feed.Enqueue(rec)
		}
	}

	if out == nil {
		out = c.Document
	}

	return out, nil
}

// prepare deep-copies attrs into JSON shape, assigns missing child ids and
// validates the whole tree.
func (s *DocumentService) prepare(typ *schema.Type, attrs map[string]any) (map[string]any, error) {
	working, err := models.Normalize(attrs)
	if err != nil {
		return nil, &models.ValidationError{Type: typ.Name, Reason: err.Error()}
	}

	if working == nil {
		working = map[string]any{}
	}

	if err := s.walkTree(typ, working, func(t *schema.Type, m map[string]any, embedded bool) error {
		if embedded && models.StringID(m[models.IDField]) == "" {
			m[models.IDField] = uuid.NewString()
		}

		return t.Validate(m)
	}, false); err != nil {
		return nil, err
	}

	return working, nil
}

// walkTree calls fn for attrs and every embedded child beneath it.
func (s *DocumentService) walkTree(
	typ *schema.Type, attrs map[string]any, fn func(*schema.Type, map[string]any, bool) error, embedded bool,
) error {
	if err := fn(typ, attrs, embedded); err != nil {
		return err
	}

	for _, rel := range typ.EmbeddedOneRelations() {
		child, ok := models.AsMap(attrs[rel])
		if !ok || child == nil {
			continue
		}

		related, err := s.related(typ, rel)
		if err != nil {
			return err
		}

		if err := s.walkTree(related, child, fn, true); err != nil {
			return err
		}
	}

	for _, rel := range typ.EmbeddedManyRelations() {
		list, ok := models.AsList(attrs[rel])
		if !ok {
			continue
		}

		related, err := s.related(typ, rel)
		if err != nil {
			return err
		}

		for _, item := range list {
			child, ok := models.AsMap(item)
			if !ok {
				continue
			}

			if err := s.walkTree(related, child, fn, true); err != nil {
				return err
			}
		}
	}

	return nil
}

// carryVersion overwrites the working version of an entity with the stored one.
func (s *DocumentService) carryVersion(typeName string, stored, working map[string]any) {
	spec, ok := s.specs.Spec(typeName)
	if !ok {
		return
	}

	field := spec.VersionField()

	if v, ok := stored[field]; ok {
		working[field] = v
	} else {
		delete(working, field)
	}
}

func (s *DocumentService) typeOf(typeName string) (*schema.Type, error) {
	if typeName == "" {
		return nil, &models.ValidationError{Type: "document", Fields: []string{"type"}, Reason: models.ErrMissingType.Error()}
	}

	typ, ok := s.types.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrNotFound, typeName, models.ErrUnknownType)
	}

	if typ.Embedded {
		return nil, &models.ValidationError{Type: typeName, Reason: "embedded types have no root documents"}
	}

	return typ, nil
}

func (s *DocumentService) related(typ *schema.Type, rel string) (*schema.Type, error) {
	name, _ := typ.RelatedTypeName(rel)

	related, ok := s.types.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, name)
	}

	return related, nil
}

func (s *DocumentService) startSpan(ctx context.Context, name, typeName, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("document.type", typeName),
		attribute.String("document.id", id),
	))
}

// spanError marks span failed when err is non-nil and returns err unchanged.
func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// rawChanges returns every key whose value differs between before and after.
func rawChanges(before, after map[string]any) map[string]models.FieldChange {
	out := make(map[string]models.FieldChange)

	for k, b := range before {
		if a, ok := after[k]; !ok || !models.Equal(a, b) {
			out[k] = models.FieldChange{Before: b, After: after[k]}
		}
	}

	for k, a := range after {
		if _, ok := before[k]; !ok {
			out[k] = models.FieldChange{After: a}
		}
	}

	return out
}
