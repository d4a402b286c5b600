// Package domain defines the canonical store and service interfaces shared
// across the API layer, the CLI client and the replay engine. Consumers
// should depend on these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/tracking"
)

// DocumentFinder loads root documents by id.
type DocumentFinder interface {
	// FindByID returns models.ErrNotFound when the document does not exist.
	FindByID(ctx context.Context, typeName, id string) (*models.Document, error)
}

// DocumentStore persists documents together with their history records.
type DocumentStore interface {
	DocumentFinder
	ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error)
	// Commit applies the document write and inserts every record as one unit.
	// A revision mismatch fails with models.ErrConflict and writes nothing.
	Commit(ctx context.Context, c *models.Commit) (*models.Document, error)
}

// HistoryQuerier lists history records, newest first.
type HistoryQuerier interface {
	QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryRecord, bool, error)
}

// HistoryStore reads and prunes history records.
type HistoryStore interface {
	HistoryQuerier
	GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error)
	PurgeHistory(ctx context.Context, retentionDays int) (int, error)
}

// Store is the full persistence surface. Both backends implement it.
type Store interface {
	DocumentStore
	HistoryStore
	Ping(ctx context.Context) error
	Close() error
}

// SpecLookup returns the resolved tracking spec of a type.
type SpecLookup interface {
	Spec(typeName string) (*tracking.Spec, bool)
}

// DocumentService defines tracked document operations.
type DocumentService interface {
	GetDocument(ctx context.Context, typeName, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error)
	CreateDocument(ctx context.Context, typeName string, req models.SaveDocumentRequest) (*models.Document, error)
	SaveDocument(ctx context.Context, typeName, id string, req models.SaveDocumentRequest) (*models.Document, error)
	DestroyDocument(ctx context.Context, typeName, id string) error
	PreviewDiff(ctx context.Context, typeName, id string, req models.SaveDocumentRequest, action models.Action) (map[string]models.FromTo, error)
}

// HistoryService defines history query, replay and maintenance operations.
type HistoryService interface {
	ListHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryView, bool, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryView, error)
	Undo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error)
	Redo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error)
	PurgeHistory(ctx context.Context, retentionDays int) (int, error)
}

// TrackingService exposes the resolved tracking configuration.
type TrackingService interface {
	TrackedTypes() []string
	Prepared(typeName string) (tracking.Prepared, error)
}

// Mutator applies tracked lifecycle events to root documents. The replay
// engine drives undo/redo through it so replays are themselves tracked.
type Mutator interface {
	Create(ctx context.Context, doc *models.Document) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) (*models.Document, error)
	Destroy(ctx context.Context, typeName, id string) error
}
