package store

import (
	"context"
	"fmt"
)

// purgeBatchSize limits the number of rows deleted per transaction to avoid
// holding long locks on dt_history.
const purgeBatchSize = 5000

// PurgeHistory deletes records older than retentionDays in batches.
// Returns the number of deleted records.
func (s *HistoryStore) PurgeHistory(ctx context.Context, retentionDays int) (int, error) {
	var totalDeleted int

	for {
		batchCtx, cancel := withTimeout(ctx)

		deleted, err := s.purgeBatch(batchCtx, retentionDays)
		cancel()

		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted < purgeBatchSize {
			break
		}
	}

	return totalDeleted, nil
}

// purgeBatch deletes a single batch of expired records.
func (s *HistoryStore) purgeBatch(ctx context.Context, retentionDays int) (int, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	tag, err := tx.Exec(ctx,
		`DELETE FROM dt_history WHERE seq IN (
			SELECT seq FROM dt_history
			WHERE created_at < NOW() - make_interval(days => $1)
			LIMIT $2
		)`,
		retentionDays, purgeBatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("purging history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing history purge: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
