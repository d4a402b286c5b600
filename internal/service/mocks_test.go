package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/replay"
	"github.com/persistorai/doctrail/internal/schema"
	"github.com/persistorai/doctrail/internal/tracking"
)

// memStore is an in-memory domain.Store that records calls.
type memStore struct {
	mu      sync.Mutex
	calls   []string
	docs    map[string]*models.Document
	records []models.HistoryRecord

	commitErr error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*models.Document{}}
}

func (m *memStore) record(name string) {
	m.calls = append(m.calls, name)
}

func (m *memStore) FindByID(_ context.Context, typeName, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindByID")

	d, ok := m.docs[typeName+"/"+id]
	if !ok {
		return nil, fmt.Errorf("document %s/%s: %w", typeName, id, models.ErrNotFound)
	}

	return d.Clone(), nil
}

func (m *memStore) ListDocuments(_ context.Context, typeName string, _, _ int) ([]models.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListDocuments")

	var out []models.Document

	for _, d := range m.docs {
		if d.Type == typeName {
			out = append(out, *d.Clone())
		}
	}

	return out, false, nil
}

func (m *memStore) Commit(_ context.Context, c *models.Commit) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Commit")

	if m.commitErr != nil {
		return nil, m.commitErr
	}

	key := c.Document.Type + "/" + c.Document.ID
	cur, exists := m.docs[key]

	switch {
	case c.Op == models.OpPut && c.ExpectedRevision == 0 && exists,
		c.ExpectedRevision != 0 && (!exists || cur.Revision != c.ExpectedRevision):
		return nil, fmt.Errorf("document %s: %w", key, models.ErrConflict)
	}

	// Round-trip through Normalize so stored state looks like decoded JSON.
	attrs, err := models.Normalize(c.Document.Attributes)
	if err != nil {
		return nil, err
	}

	var out *models.Document

	if c.Op == models.OpDelete {
		delete(m.docs, key)
	} else {
		out = &models.Document{Type: c.Document.Type, ID: c.Document.ID, Revision: c.ExpectedRevision + 1, Attributes: attrs}
		m.docs[key] = out.Clone()
	}

	for _, r := range c.Records {
		rec := *r
		rec.Original, _ = models.Normalize(r.Original)
		rec.Modified, _ = models.Normalize(r.Modified)
		m.records = append(m.records, rec)
	}

	return out, nil
}

// QueryHistory returns matching records newest first.
func (m *memStore) QueryHistory(_ context.Context, q models.HistoryQuery) ([]models.HistoryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("QueryHistory")

	var out []models.HistoryRecord

	for i := len(m.records) - 1; i >= 0; i-- {
		if q.Matches(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}

	return out, false, nil
}

func (m *memStore) GetHistory(_ context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetHistory")

	for i := range m.records {
		if m.records[i].ID == id {
			rec := m.records[i]

			return &rec, nil
		}
	}

	return nil, fmt.Errorf("history record %s: %w", id, models.ErrNotFound)
}

func (m *memStore) PurgeHistory(_ context.Context, retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PurgeHistory")

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := m.records[:0]
	deleted := 0

	for _, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			deleted++

			continue
		}

		kept = append(kept, r)
	}

	m.records = kept

	return deleted, nil
}

func (m *memStore) recordsFor(chain models.AssociationChain) []models.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.HistoryRecord

	for _, r := range m.records {
		if r.Chain.String() == chain.String() {
			out = append(out, r)
		}
	}

	return out
}

func (m *memStore) commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, c := range m.calls {
		if c == "Commit" {
			n++
		}
	}

	return n
}

// mockSink records published records.
type mockSink struct {
	mu   sync.Mutex
	name string
	recs []*models.HistoryRecord
	err  error
}

func (s *mockSink) Name() string { return s.name }

func (s *mockSink) Publish(_ context.Context, rec *models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = append(s.recs, rec)

	return s.err
}

func (s *mockSink) published() []*models.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*models.HistoryRecord(nil), s.recs...)
}

// mockFeed captures enqueued records.
type mockFeed struct {
	recs []*models.HistoryRecord
}

func (f *mockFeed) Enqueue(rec *models.HistoryRecord) { f.recs = append(f.recs, rec) }

// mockReplayer records replay calls.
type mockReplayer struct {
	calls []string
	doc   *models.Document
	err   error
}

func (r *mockReplayer) Replay(_ context.Context, rec *models.HistoryRecord, dir replay.Direction, actor string) (*models.Document, error) {
	r.calls = append(r.calls, string(dir)+":"+string(rec.Action)+":"+actor)

	return r.doc, r.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testTypes(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.NewRegistry(
		schema.Type{
			Name:       "Post",
			Fields:     []schema.Field{{Name: "title", Required: true}, {Name: "body"}, {Name: "tags"}},
			EmbedsOne:  map[string]string{"author": "Author"},
			EmbedsMany: map[string]string{"comments": "Comment"},
		},
		schema.Type{Name: "Author", Embedded: true, Fields: []schema.Field{{Name: "name"}}},
		schema.Type{
			Name:       "Comment",
			Embedded:   true,
			Fields:     []schema.Field{{Name: "text"}, {Name: "score"}},
			EmbedsMany: map[string]string{"replies": "Reply"},
		},
		schema.Type{Name: "Reply", Embedded: true, Fields: []schema.Field{{Name: "text"}}},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	return reg
}

// testEnv wires a DocumentService over a memStore with Post, Comment and
// Reply tracked.
type testEnv struct {
	store *memStore
	specs *tracking.Registry
	feed  *mockFeed
	docs  *DocumentService
}

func newTestEnv(t *testing.T, postOpts tracking.Options) *testEnv {
	t.Helper()

	types := testTypes(t)
	specs := tracking.NewRegistry(types)

	if postOpts.On == nil {
		postOpts.On = []any{tracking.AllFields, tracking.EmbeddedRelations}
	}

	if _, err := specs.Register("Post", postOpts); err != nil {
		t.Fatalf("register Post: %v", err)
	}

	for _, name := range []string{"Comment", "Reply"} {
		if _, err := specs.Register(name, tracking.Options{Scope: "Post"}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	store := newMemStore()
	feed := &mockFeed{}

	return &testEnv{
		store: store,
		specs: specs,
		feed:  feed,
		docs:  NewDocumentService(store, types, specs, feed, testLogger()),
	}
}
