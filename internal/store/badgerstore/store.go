package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/models"
)

const (
	maxListLimit   = 1000
	seqLeaseSize   = 100
	purgeBatchSize = 5000
)

var _ domain.Store = (*Store)(nil)

// Store implements domain.Store on an embedded BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	gc  *gcRunner
	log *logrus.Logger
}

// Open opens a Store. An empty cfg.Path opens an in-memory database.
func Open(cfg Config, log *logrus.Logger) (*Store, error) {
	db, err := open(cfg, log)
	if err != nil {
		return nil, err
	}

	seq, err := db.GetSequence([]byte(seqKey), seqLeaseSize)
	if err != nil {
		db.Close() //nolint:errcheck // best-effort close on setup failure.

		return nil, fmt.Errorf("leasing history sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, log: log}

	if cfg.GCInterval > 0 && !cfg.InMemory() {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, log)
		if err != nil {
			s.Close() //nolint:errcheck // best-effort close on setup failure.

			return nil, err
		}

		s.gc = runner
		runner.start()
	}

	return s, nil
}

// OpenInMemory opens an in-memory Store.
func OpenInMemory(log *logrus.Logger) (*Store, error) {
	return Open(InMemoryConfig(), log)
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}

	return nil
}

// Close stops GC, releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}

	if err := s.seq.Release(); err != nil {
		s.log.WithError(err).Warn("badger.sequence_release_failed")
	}

	return s.db.Close()
}

// FindByID loads a single document.
func (s *Store) FindByID(ctx context.Context, typeName, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *models.Document

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDocument(txn, typeName, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func getDocument(txn *badger.Txn, typeName, id string) (*models.Document, error) {
	item, err := txn.Get(docKey(typeName, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("document %s/%s: %w", typeName, id, models.ErrNotFound)
		}

		return nil, fmt.Errorf("fetching document: %w", err)
	}

	var doc models.Document

	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	}); err != nil {
		return nil, fmt.Errorf("decoding document %s/%s: %w", typeName, id, err)
	}

	if doc.Attributes == nil {
		doc.Attributes = map[string]any{}
	}

	return &doc, nil
}

// ListDocuments returns documents of one type ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	limit, offset = clampPage(limit, offset)

	var all []models.Document

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := docTypePrefix(typeName)

		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var doc models.Document

			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("decoding document: %w", err)
			}

			all = append(all, doc)
		}

		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("listing documents: %w", err)
	}

	sortDocuments(all)

	if offset >= len(all) {
		return []models.Document{}, false, nil
	}

	all = all[offset:]

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}

	return all, hasMore, nil
}

// Commit writes the document with an optimistic revision check and stores
// the commit's history records in the same transaction. Badger's own
// transaction conflicts are reported as models.ErrConflict too.
func (s *Store) Commit(ctx context.Context, c *models.Commit) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqs := make([]uint64, len(c.Records))

	for i := range c.Records {
		n, err := s.seq.Next()
		if err != nil {
			return nil, &models.StoreError{Op: "allocate sequence", Err: err}
		}

		seqs[i] = n + 1
	}

	var out *models.Document

	err := s.db.Update(func(txn *badger.Txn) error {
		var err error

		switch c.Op {
		case models.OpPut:
			out, err = putDocument(txn, c.Document, c.ExpectedRevision)
		case models.OpDelete:
			err = deleteDocument(txn, c.Document, c.ExpectedRevision)
		default:
			err = fmt.Errorf("%w: unknown commit op %q", models.ErrValidation, c.Op)
		}

		if err != nil {
			return err
		}

		for i, rec := range c.Records {
			if err := putRecord(txn, seqs[i], rec); err != nil {
				return &models.StoreError{Op: "insert history", Err: err}
			}
		}

		return nil
	})

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, badger.ErrConflict):
		return nil, fmt.Errorf("document %s/%s: %w", c.Document.Type, c.Document.ID, models.ErrConflict)
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrStore), errors.Is(err, models.ErrValidation):
		return nil, err
	default:
		return nil, &models.StoreError{Op: "commit", Err: err}
	}
}

func putDocument(txn *badger.Txn, doc *models.Document, expected int64) (*models.Document, error) {
	now := time.Now().UTC()
	out := *doc

	current, err := getDocument(txn, doc.Type, doc.ID)

	switch {
	case errors.Is(err, models.ErrNotFound):
		if expected != 0 {
			return nil, fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
		}

		out.Revision = 1
		out.CreatedAt = now
	case err != nil:
		return nil, err
	default:
		if current.Revision != expected {
			return nil, fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
		}

		out.Revision = current.Revision + 1
		out.CreatedAt = current.CreatedAt
	}

	out.UpdatedAt = now

	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}

	val, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}

	if err := txn.Set(docKey(doc.Type, doc.ID), val); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}

	return &out, nil
}

func deleteDocument(txn *badger.Txn, doc *models.Document, expected int64) error {
	current, err := getDocument(txn, doc.Type, doc.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
		}

		return err
	}

	if current.Revision != expected {
		return fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
	}

	if err := txn.Delete(docKey(doc.Type, doc.ID)); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	return nil
}

func putRecord(txn *badger.Txn, seq uint64, rec *models.HistoryRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	if err := txn.Set(histKey(seq), val); err != nil {
		return err
	}

	if err := txn.Set(hidKey(rec.ID.String()), encodeSeq(seq)); err != nil {
		return err
	}

	return txn.Set(scopeKey(rec.Scope, seq), nil)
}

func getRecord(txn *badger.Txn, seq uint64) (*models.HistoryRecord, error) {
	item, err := txn.Get(histKey(seq))
	if err != nil {
		return nil, err
	}

	var rec models.HistoryRecord

	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decoding history record %d: %w", seq, err)
	}

	return &rec, nil
}

// QueryHistory returns records matching q, newest first, plus a has_more flag.
func (s *Store) QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryRecord, bool, error) {
	limit, offset := clampPage(q.Limit, q.Offset)
	records := make([]models.HistoryRecord, 0, limit+1)
	skipped := 0

	prefix := []byte(histPrefix)
	if q.Scope != "" {
		prefix = scopeIndexPrefix(q.Scope)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix, PrefetchValues: q.Scope == ""})
		defer it.Close()

		for it.Seek(prefixEnd(prefix)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := getRecord(txn, seqFromKey(it.Item().Key()))
			if err != nil {
				return err
			}

			if !q.Matches(rec) {
				continue
			}

			if skipped < offset {
				skipped++

				continue
			}

			records = append(records, *rec)
			if len(records) > limit {
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("querying history: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	return records, hasMore, nil
}

// GetHistory returns a single record.
func (s *Store) GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *models.HistoryRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hidKey(id.String()))
		if err != nil {
			return err
		}

		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		rec, err = getRecord(txn, seqFromKey(raw))

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("history record %s: %w", id, models.ErrNotFound)
		}

		return nil, fmt.Errorf("fetching history record: %w", err)
	}

	return rec, nil
}

// PurgeHistory deletes records older than retentionDays in batches.
// Returns the number of deleted records.
func (s *Store) PurgeHistory(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var expired []*models.HistoryRecord
	var seqs []uint64

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(histPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec models.HistoryRecord

			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decoding history record: %w", err)
			}

			if rec.CreatedAt.Before(cutoff) {
				expired = append(expired, &rec)
				seqs = append(seqs, seqFromKey(it.Item().Key()))
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning history for purge: %w", err)
	}

	deleted := 0

	for start := 0; start < len(expired); start += purgeBatchSize {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		end := min(start+purgeBatchSize, len(expired))

		wb := s.db.NewWriteBatch()

		for i := start; i < end; i++ {
			rec := expired[i]

			for _, key := range [][]byte{histKey(seqs[i]), hidKey(rec.ID.String()), scopeKey(rec.Scope, seqs[i])} {
				if err := wb.Delete(key); err != nil {
					wb.Cancel()

					return deleted, fmt.Errorf("purging history: %w", err)
				}
			}
		}

		if err := wb.Flush(); err != nil {
			return deleted, fmt.Errorf("flushing history purge: %w", err)
		}

		deleted += end - start
	}

	return deleted, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func sortDocuments(docs []models.Document) {
	slices.SortStableFunc(docs, func(a, b models.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})
}
