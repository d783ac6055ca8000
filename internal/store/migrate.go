package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"lighthouse/pkg/logging"
)

// migration is one forward-only schema step, applied in ID order. Raw SQL
// strings avoid pulling in golang-migrate for a single-service tree with
// no second caller for that dependency.
type migration struct {
	id   int
	name string
	sql  string
}

var migrations = []migration{
	{1, "create_streams", schemaStreams},
	{2, "create_alerts", schemaAlerts},
	{3, "create_content_flags", schemaContentFlags},
	{4, "create_review_items", schemaReviewItems},
	{5, "create_subscriptions", schemaSubscriptions},
	{6, "create_banned_users", schemaBannedUsers},
	{7, "add_streams_name", schemaStreamsName},
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const schemaStreams = `
CREATE TABLE IF NOT EXISTS streams (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	scenario TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	frame_count BIGINT NOT NULL DEFAULT 0,
	alert_count BIGINT NOT NULL DEFAULT 0,
	last_ping TIMESTAMPTZ NOT NULL,
	preferences JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_streams_scenario ON streams (scenario);
CREATE INDEX IF NOT EXISTS idx_streams_status ON streams (status);`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL REFERENCES streams(id),
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	acknowledged BOOLEAN NOT NULL DEFAULT false,
	acknowledged_at TIMESTAMPTZ,
	escalation_level INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alerts_stream_created ON alerts (stream_id, created_at DESC);`

const schemaContentFlags = `
CREATE TABLE IF NOT EXISTS content_flags (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL REFERENCES streams(id),
	frame_id TEXT,
	tier INTEGER NOT NULL,
	categories TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_content_flags_status_tier ON content_flags (status, tier DESC, created_at ASC);`

const schemaReviewItems = `
CREATE TABLE IF NOT EXISTS review_items (
	flag_id TEXT PRIMARY KEY REFERENCES content_flags(id),
	assigned_to TEXT,
	assigned_at TIMESTAMPTZ,
	reviewer_id TEXT,
	reviewed_at TIMESTAMPTZ,
	decision TEXT,
	notes TEXT,
	anonymized BOOLEAN NOT NULL DEFAULT true,
	blur_level INTEGER NOT NULL DEFAULT 0
);`

const schemaSubscriptions = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	endpoint TEXT NOT NULL UNIQUE,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sms_recipients (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	e164 TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chat_recipients (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const schemaBannedUsers = `
CREATE TABLE IF NOT EXISTS banned_users (
	user_id TEXT PRIMARY KEY,
	banned_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const schemaStreamsName = `
ALTER TABLE streams ADD COLUMN IF NOT EXISTS name TEXT NOT NULL DEFAULT '';`

// Migrate applies every migration not yet recorded in schema_migrations,
// in ascending ID order, each inside its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query schema_migrations: %w", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		applied[id] = true
	}
	rows.Close()

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.id] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].id < pending[j].id })

	for _, m := range pending {
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.id, m.name, err)
		}
		s.logger.WithFields(logging.Fields{"migration": m.name}).Info("applied migration")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id, name) VALUES ($1, $2)`, m.id, m.name)
		return err
	})
}
