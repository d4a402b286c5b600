package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/doctrail/internal/models"
)

// DocumentStore provides data access for the dt_documents table.
type DocumentStore struct {
	Base
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(base Base) *DocumentStore {
	return &DocumentStore{Base: base}
}

// FindByID loads a single document.
func (s *DocumentStore) FindByID(ctx context.Context, typeName, id string) (*models.Document, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM dt_documents WHERE type = $1 AND id = $2`,
		typeName, id,
	)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s/%s: %w", typeName, id, models.ErrNotFound)
		}

		return nil, fmt.Errorf("fetching document: %w", err)
	}

	return doc, nil
}

// ListDocuments returns documents of one type ordered by creation time.
func (s *DocumentStore) ListDocuments(ctx context.Context, typeName string, limit, offset int) ([]models.Document, bool, error) {
	limit, offset = clampPage(limit, offset)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("listing documents: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	rows, err := tx.Query(ctx,
		`SELECT `+documentColumns+` FROM dt_documents WHERE type = $1
		ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		typeName, limit+1, offset,
	)
	if err != nil {
		return nil, false, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0, limit+1)

	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, false, fmt.Errorf("scanning document row: %w", err)
		}

		docs = append(docs, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating document rows: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing document list: %w", err)
	}

	return docs, hasMore, nil
}

// Commit writes the document with an optimistic revision check and inserts
// the commit's history records in the same transaction.
func (s *DocumentStore) Commit(ctx context.Context, c *models.Commit) (*models.Document, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var out *models.Document

	switch c.Op {
	case models.OpPut:
		out, err = putDocument(ctx, tx, c.Document, c.ExpectedRevision)
	case models.OpDelete:
		err = deleteDocument(ctx, tx, c.Document, c.ExpectedRevision)
	default:
		err = fmt.Errorf("%w: unknown commit op %q", models.ErrValidation, c.Op)
	}

	if err != nil {
		return nil, err
	}

	if err := insertRecords(ctx, tx, c.Records); err != nil {
		return nil, &models.StoreError{Op: "insert history", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &models.StoreError{Op: "commit", Err: err}
	}

	s.notify(c.Records)

	return out, nil
}

func putDocument(ctx context.Context, tx pgx.Tx, doc *models.Document, expected int64) (*models.Document, error) {
	attrs, err := json.Marshal(doc.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes: %w", err)
	}

	out := *doc

	var row pgx.Row
	if expected == 0 {
		row = tx.QueryRow(ctx,
			`INSERT INTO dt_documents (type, id, revision, attributes)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (type, id) DO NOTHING
			RETURNING revision, created_at, updated_at`,
			doc.Type, doc.ID, attrs,
		)
	} else {
		row = tx.QueryRow(ctx,
			`UPDATE dt_documents
			SET attributes = $3, revision = revision + 1, updated_at = NOW()
			WHERE type = $1 AND id = $2 AND revision = $4
			RETURNING revision, created_at, updated_at`,
			doc.Type, doc.ID, attrs, expected,
		)
	}

	var createdAt, updatedAt time.Time

	if err := row.Scan(&out.Revision, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
		}

		return nil, fmt.Errorf("writing document: %w", err)
	}

	out.CreatedAt, out.UpdatedAt = createdAt, updatedAt

	return &out, nil
}

func deleteDocument(ctx context.Context, tx pgx.Tx, doc *models.Document, expected int64) error {
	tag, err := tx.Exec(ctx,
		`DELETE FROM dt_documents WHERE type = $1 AND id = $2 AND revision = $3`,
		doc.Type, doc.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s/%s at revision %d: %w", doc.Type, doc.ID, expected, models.ErrConflict)
	}

	return nil
}
