// Package store provides transactional Postgres persistence for Streams,
// Alerts, ContentFlags, ReviewItems, and Subscriptions (SPEC_FULL.md §4.1).
// It carries no business logic: callers decide what to write and when.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lighthouse/pkg/database"
	"lighthouse/pkg/logging"
)

// Store wraps a *sql.DB with the queries the rest of the system needs.
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

// New wraps an already-connected database handle.
func New(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Connect opens the database and runs pending migrations.
func Connect(cfg database.Config, logger logging.Logger) (*Store, error) {
	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := New(db, logger)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components that need it directly
// (e.g. health checks via pkg/monitoring.DatabaseHealthCheck).
func (s *Store) DB() database.PostgresConn {
	return s.db
}

// withTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise. Mirrors the teacher's two-statement write
// pattern used for any related insert pair.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Error("tx rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// isNotFound wraps sql.ErrNoRows detection in one place.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
