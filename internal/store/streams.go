package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lighthouse/internal/domain"
)

// InsertStream persists a newly created Stream.
func (s *Store) InsertStream(ctx context.Context, st *domain.Stream) error {
	var prefs []byte
	if st.Preferences != nil {
		var err error
		prefs, err = json.Marshal(st.Preferences)
		if err != nil {
			return fmt.Errorf("marshal preferences: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO streams (id, name, user_id, scenario, status, started_at, frame_count,
			alert_count, last_ping, preferences, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		st.ID, st.Name, nullString(st.UserID), st.Scenario, st.Status, st.StartedAt,
		st.FrameCount, st.AlertCount, st.LastPing, prefs, st.CreatedAt, st.UpdatedAt,
	)
	return err
}

// UpdateStream flushes the mutable counters and status of a Stream.
func (s *Store) UpdateStream(ctx context.Context, st *domain.Stream) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE streams SET status=$2, ended_at=$3, frame_count=$4, alert_count=$5,
			last_ping=$6, updated_at=$7
		WHERE id=$1`,
		st.ID, st.Status, nullTime(st.EndedAt), st.FrameCount, st.AlertCount,
		st.LastPing, st.UpdatedAt,
	)
	return err
}

// GetStream fetches a single Stream by id.
func (s *Store) GetStream(ctx context.Context, id string) (*domain.Stream, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, scenario, status, started_at, ended_at, frame_count,
			alert_count, last_ping, preferences, created_at, updated_at
		FROM streams WHERE id=$1`, id)
	return scanStream(row)
}

// ListActiveStreams returns every stream not yet disconnected.
func (s *Store) ListActiveStreams(ctx context.Context) ([]*domain.Stream, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, scenario, status, started_at, ended_at, frame_count,
			alert_count, last_ping, preferences, created_at, updated_at
		FROM streams WHERE status != 'disconnected' ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListStreamsByScenario returns active streams for a single scenario.
func (s *Store) ListStreamsByScenario(ctx context.Context, scenario domain.Scenario) ([]*domain.Stream, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, scenario, status, started_at, ended_at, frame_count,
			alert_count, last_ping, preferences, created_at, updated_at
		FROM streams WHERE scenario=$1 AND status != 'disconnected' ORDER BY started_at DESC`, scenario)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStream(row rowScanner) (*domain.Stream, error) {
	var st domain.Stream
	var userID sql.NullString
	var endedAt sql.NullTime
	var prefs []byte

	err := row.Scan(&st.ID, &st.Name, &userID, &st.Scenario, &st.Status, &st.StartedAt,
		&endedAt, &st.FrameCount, &st.AlertCount, &st.LastPing, &prefs,
		&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("stream: %w", sql.ErrNoRows)
		}
		return nil, err
	}

	st.UserID = userID.String
	if endedAt.Valid {
		t := endedAt.Time
		st.EndedAt = &t
	}
	if len(prefs) > 0 {
		var p domain.Preferences
		if err := json.Unmarshal(prefs, &p); err == nil {
			st.Preferences = &p
		}
	}
	return &st, nil
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
