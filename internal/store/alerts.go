package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lighthouse/internal/domain"
)

// InsertAlert persists an Alert on its own (no associated ContentFlag).
func (s *Store) InsertAlert(ctx context.Context, a *domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, stream_id, type, severity, title, body, created_at,
			acknowledged, escalation_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.StreamID, a.Type, a.Severity, a.Title, a.Body, a.CreatedAt,
		a.Acknowledged, a.EscalationLevel,
	)
	return err
}

// InsertAlertWithFlag inserts an Alert and its associated ContentFlag
// atomically: both rows land or neither does (spec.md §4.1).
func (s *Store) InsertAlertWithFlag(ctx context.Context, a *domain.Alert, flag *domain.ContentFlag) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (id, stream_id, type, severity, title, body, created_at,
				acknowledged, escalation_level)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.StreamID, a.Type, a.Severity, a.Title, a.Body, a.CreatedAt,
			a.Acknowledged, a.EscalationLevel,
		); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_flags (id, stream_id, frame_id, tier, categories, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			flag.ID, flag.StreamID, nullString(flag.FrameID), flag.Tier,
			pq.Array(flag.Categories), flag.Status, flag.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert content flag: %w", err)
		}
		return nil
	})
}

// SetAlertLevel updates an Alert's escalation level.
func (s *Store) SetAlertLevel(ctx context.Context, alertID string, level int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET escalation_level=$2 WHERE id=$1`, alertID, level)
	return err
}

// AckAlert marks an Alert acknowledged; idempotent (a second call is a no-op).
func (s *Store) AckAlert(ctx context.Context, alertID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged=true, acknowledged_at=$2
		WHERE id=$1 AND acknowledged=false`, alertID, at)
	return err
}

// GetAlert fetches a single Alert.
func (s *Store) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stream_id, type, severity, title, body, created_at, acknowledged,
			acknowledged_at, escalation_level
		FROM alerts WHERE id=$1`, id)
	return scanAlert(row)
}

// ListAlertsByStream returns a stream's alerts, most recent first
// (the (stream_id, created_at DESC) index from spec.md §4.1).
func (s *Store) ListAlertsByStream(ctx context.Context, streamID string) ([]*domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, type, severity, title, body, created_at, acknowledged,
			acknowledged_at, escalation_level
		FROM alerts WHERE stream_id=$1 ORDER BY created_at DESC`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var ackAt sql.NullTime
	err := row.Scan(&a.ID, &a.StreamID, &a.Type, &a.Severity, &a.Title, &a.Body,
		&a.CreatedAt, &a.Acknowledged, &ackAt, &a.EscalationLevel)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("alert: %w", sql.ErrNoRows)
		}
		return nil, err
	}
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}
	return &a, nil
}
