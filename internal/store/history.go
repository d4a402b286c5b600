package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/persistorai/doctrail/internal/models"
)

// historyInsertColumns is the number of bound parameters per inserted record.
const historyInsertColumns = 12

// HistoryStore provides data access for the dt_history table.
type HistoryStore struct {
	Base
}

// NewHistoryStore creates a HistoryStore.
func NewHistoryStore(base Base) *HistoryStore {
	return &HistoryStore{Base: base}
}

// insertRecords inserts every record with one multi-row INSERT.
// Package-level so DocumentStore.Commit can call it within its transaction.
func insertRecords(ctx context.Context, tx pgx.Tx, records []*models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	valueParts := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*historyInsertColumns)

	for i, r := range records {
		chain, err := json.Marshal(r.Chain)
		if err != nil {
			return fmt.Errorf("marshaling chain: %w", err)
		}

		original, err := json.Marshal(nonNil(r.Original))
		if err != nil {
			return fmt.Errorf("marshaling original: %w", err)
		}

		modified, err := json.Marshal(nonNil(r.Modified))
		if err != nil {
			return fmt.Errorf("marshaling modified: %w", err)
		}

		var modifier *string
		if r.Modifier != "" {
			modifier = &r.Modifier
		}

		placeholders := make([]string, historyInsertColumns)
		for j := range placeholders {
			placeholders[j] = "$" + strconv.Itoa(i*historyInsertColumns+j+1)
		}

		valueParts = append(valueParts, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.ID, r.Scope, r.Type, chain, r.Chain.Path(), string(r.Action), r.Version,
			original, modified, modifier, r.CreatedAt, r.UpdatedAt,
		)
	}

	sql := `INSERT INTO dt_history (id, scope, type, chain, chain_path, action, version,
		original, modified, modifier, created_at, updated_at)
		VALUES ` + strings.Join(valueParts, ", ")

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting history records: %w", err)
	}

	return nil
}

// buildHistoryFilter builds WHERE clause and args from a HistoryQuery.
func buildHistoryFilter(q models.HistoryQuery) (where string, args []any, nextArg int) {
	var conditions []string
	argIdx := 1

	if q.Scope != "" {
		conditions = append(conditions, "scope = $"+strconv.Itoa(argIdx))
		args = append(args, q.Scope)
		argIdx++
	}

	if len(q.Chain) > 0 {
		conditions = append(conditions, "starts_with(chain_path, $"+strconv.Itoa(argIdx)+")")
		args = append(args, q.Chain.Path())
		argIdx++
	}

	if q.Type != "" {
		conditions = append(conditions, "type = $"+strconv.Itoa(argIdx))
		args = append(args, q.Type)
		argIdx++
	}

	if q.Action != "" {
		conditions = append(conditions, "action = $"+strconv.Itoa(argIdx))
		args = append(args, string(q.Action))
		argIdx++
	}

	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	return where, args, argIdx
}

// QueryHistory returns records matching q, newest first, plus a has_more flag.
func (s *HistoryStore) QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryRecord, bool, error) {
	limit, offset := clampPage(q.Limit, q.Offset)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("querying history: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	where, args, argIdx := buildHistoryFilter(q)

	query := fmt.Sprintf(
		"SELECT %s FROM dt_history %s ORDER BY seq DESC LIMIT $%d OFFSET $%d",
		historyColumns, where, argIdx, argIdx+1,
	)
	args = append(args, limit+1, offset)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0, limit+1)

	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, false, fmt.Errorf("scanning history row: %w", err)
		}

		records = append(records, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating history rows: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing history query: %w", err)
	}

	return records, hasMore, nil
}

// GetHistory returns a single record.
func (s *HistoryStore) GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `SELECT `+historyColumns+` FROM dt_history WHERE id = $1`, id)

	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("history record %s: %w", id, models.ErrNotFound)
		}

		return nil, fmt.Errorf("fetching history record: %w", err)
	}

	return r, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
