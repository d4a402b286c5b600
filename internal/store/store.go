// Package store provides the PostgreSQL implementation of the document and
// history stores.
//
// Each store owns one concern (documents, history) and embeds shared
// helpers (Pool, logger) via the Base struct. Stores never import each
// other: shared logic lives in this file or in dedicated helper files.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/dbpool"
	"github.com/persistorai/doctrail/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// NotifyChannel is the pg_notify channel committed history records are announced on.
const NotifyChannel = "dt_changes"

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	return tx, nil
}

// notify announces committed history records on NotifyChannel (best-effort,
// post-commit). Payloads carry identifiers only; listeners fetch the record.
func (b *Base) notify(records []*models.HistoryRecord) {
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, rec := range records {
		payload, _ := json.Marshal(models.NoticeOf(rec)) //nolint:errcheck // plain values, cannot fail.

		if _, err := b.Pool.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, string(payload)); err != nil {
			b.Log.WithError(err).WithField("scope", rec.Scope).Warn("store.notify_failed")

			return
		}
	}
}

// Store combines the document and history stores into domain.Store.
type Store struct {
	*DocumentStore
	*HistoryStore

	pool *dbpool.Pool
}

// New creates a Store over pool.
func New(pool *dbpool.Pool, log *logrus.Logger) *Store {
	base := Base{Pool: pool, Log: log}

	return &Store{
		DocumentStore: NewDocumentStore(base),
		HistoryStore:  NewHistoryStore(base),
		pool:          pool,
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()

	return nil
}
