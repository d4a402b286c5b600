package api_test

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/tracking"
)

var (
	_ domain.DocumentService = (*mockDocumentService)(nil)
	_ domain.HistoryService  = (*mockHistoryService)(nil)
	_ domain.TrackingService = (*mockTrackingService)(nil)
)

// mockDocumentService implements domain.DocumentService for testing.
type mockDocumentService struct {
	getFn     func(ctx context.Context, typeName, id string) (*models.Document, error)
	listFn    func(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error)
	createFn  func(ctx context.Context, typeName string, req models.SaveDocumentRequest) (*models.Document, error)
	saveFn    func(ctx context.Context, typeName, id string, req models.SaveDocumentRequest) (*models.Document, error)
	destroyFn func(ctx context.Context, typeName, id string) error
	diffFn    func(ctx context.Context, typeName, id string, req models.SaveDocumentRequest, action models.Action) (map[string]models.FromTo, error)
}

func (m *mockDocumentService) GetDocument(ctx context.Context, typeName, id string) (*models.Document, error) {
	return m.getFn(ctx, typeName, id)
}

func (m *mockDocumentService) ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error) {
	return m.listFn(ctx, typeName, limit, offset)
}

func (m *mockDocumentService) CreateDocument(ctx context.Context, typeName string, req models.SaveDocumentRequest) (*models.Document, error) {
	return m.createFn(ctx, typeName, req)
}

func (m *mockDocumentService) SaveDocument(ctx context.Context, typeName, id string, req models.SaveDocumentRequest) (*models.Document, error) {
	return m.saveFn(ctx, typeName, id, req)
}

func (m *mockDocumentService) DestroyDocument(ctx context.Context, typeName, id string) error {
	return m.destroyFn(ctx, typeName, id)
}

func (m *mockDocumentService) PreviewDiff(
	ctx context.Context, typeName, id string, req models.SaveDocumentRequest, action models.Action,
) (map[string]models.FromTo, error) {
	return m.diffFn(ctx, typeName, id, req, action)
}

// mockHistoryService implements domain.HistoryService for testing.
type mockHistoryService struct {
	listFn  func(ctx context.Context, q models.HistoryQuery) ([]models.HistoryView, bool, error)
	getFn   func(ctx context.Context, id uuid.UUID) (*models.HistoryView, error)
	undoFn  func(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error)
	redoFn  func(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error)
	purgeFn func(ctx context.Context, retentionDays int) (int, error)
}

func (m *mockHistoryService) ListHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryView, bool, error) {
	return m.listFn(ctx, q)
}

func (m *mockHistoryService) GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryView, error) {
	return m.getFn(ctx, id)
}

func (m *mockHistoryService) Undo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error) {
	return m.undoFn(ctx, id, actor)
}

func (m *mockHistoryService) Redo(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error) {
	return m.redoFn(ctx, id, actor)
}

func (m *mockHistoryService) PurgeHistory(ctx context.Context, retentionDays int) (int, error) {
	return m.purgeFn(ctx, retentionDays)
}

// mockTrackingService implements domain.TrackingService for testing.
type mockTrackingService struct {
	specs map[string]tracking.Prepared
}

func (m *mockTrackingService) TrackedTypes() []string {
	out := make([]string, 0, len(m.specs))
	for k := range m.specs {
		out = append(out, k)
	}

	return out
}

func (m *mockTrackingService) Prepared(typeName string) (tracking.Prepared, error) {
	p, ok := m.specs[typeName]
	if !ok {
		return tracking.Prepared{}, models.ErrNotFound
	}

	return p, nil
}

// mockPinger reports a fixed ping result.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

var errBoom = errors.New("boom")
