package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lighthouse/internal/domain"
)

// ListPendingFlags returns ContentFlags awaiting review, tier-priority
// ordered: (status, tier DESC, created_at ASC), mirroring spec.md §4.1's
// ReviewItem index.
func (s *Store) ListPendingFlags(ctx context.Context) ([]*domain.ContentFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, frame_id, tier, categories, status, created_at
		FROM content_flags WHERE status=$1 ORDER BY tier DESC, created_at ASC`, domain.FlagPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ContentFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetContentFlag fetches a single flag by id regardless of status.
func (s *Store) GetContentFlag(ctx context.Context, flagID string) (*domain.ContentFlag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stream_id, frame_id, tier, categories, status, created_at
		FROM content_flags WHERE id=$1`, flagID)
	return scanFlag(row)
}

// SetFlagStatus transitions a ContentFlag's status.
func (s *Store) SetFlagStatus(ctx context.Context, flagID string, status domain.FlagStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE content_flags SET status=$2 WHERE id=$1`, flagID, status)
	return err
}

func scanFlag(row rowScanner) (*domain.ContentFlag, error) {
	var f domain.ContentFlag
	var frameID sql.NullString
	var categories pq.StringArray
	err := row.Scan(&f.ID, &f.StreamID, &frameID, &f.Tier, &categories, &f.Status, &f.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content flag: %w", sql.ErrNoRows)
		}
		return nil, err
	}
	f.FrameID = frameID.String
	f.Categories = []string(categories)
	return &f, nil
}

// ClaimNextPendingFlag atomically picks the highest-tier pending flag
// (oldest created_at first), marks it assigned, and stamps the lease,
// mirroring spec.md §4.7's next_for_reviewer. Returns nil, nil when the
// queue is empty.
func (s *Store) ClaimNextPendingFlag(ctx context.Context, reviewerID string, now time.Time) (*domain.ReviewItem, error) {
	var flag *domain.ContentFlag
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, stream_id, frame_id, tier, categories, status, created_at
			FROM content_flags WHERE status=$1
			ORDER BY tier DESC, created_at ASC
			LIMIT 1 FOR UPDATE SKIP LOCKED`, domain.FlagPending)
		f, err := scanFlag(row)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		flag = f

		if _, err := tx.ExecContext(ctx, `UPDATE content_flags SET status=$2 WHERE id=$1`, flag.ID, domain.FlagAssigned); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO review_items (flag_id, assigned_to, assigned_at, anonymized, blur_level)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (flag_id) DO UPDATE SET assigned_to=$2, assigned_at=$3`,
			flag.ID, reviewerID, now, flag.Tier >= 3, domain.BlurLevelForTier(flag.Tier),
		)
		return err
	})
	if err != nil || flag == nil {
		return nil, err
	}
	flag.Status = domain.FlagAssigned
	return &domain.ReviewItem{
		ContentFlag: *flag,
		AssignedTo:  reviewerID,
		AssignedAt:  &now,
		Anonymized:  flag.Tier >= 3,
		BlurLevel:   domain.BlurLevelForTier(flag.Tier),
	}, nil
}

// ExpireStaleLeases returns assigned flags whose lease has outlived
// timeout back to pending, clearing the review_items assignment.
func (s *Store) ExpireStaleLeases(ctx context.Context, timeout time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-timeout)
	var ids []string
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.flag_id FROM review_items r
		JOIN content_flags f ON f.id = r.flag_id
		WHERE f.status=$1 AND r.assigned_at < $2`, domain.FlagAssigned, cutoff)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `UPDATE content_flags SET status=$2 WHERE id=$1`, id, domain.FlagPending); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `UPDATE review_items SET assigned_to=NULL, assigned_at=NULL WHERE flag_id=$1`, id)
			return err
		}); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// InsertReviewLease creates the review_items row when a flag is first assigned.
func (s *Store) InsertReviewLease(ctx context.Context, item *domain.ReviewItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items (flag_id, assigned_to, assigned_at, anonymized, blur_level)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (flag_id) DO UPDATE SET assigned_to=$2, assigned_at=$3`,
		item.ID, item.AssignedTo, item.AssignedAt, item.Anonymized, item.BlurLevel,
	)
	return err
}

// ApplyDecision records a reviewer's disposition and releases the lease.
// An escalate decision also forces the flag into tier 4 (spec.md §4.7:
// "escalate -> status=escalated, tier forced to 4, metadata preserved"),
// so it re-prioritizes into the privileged bucket on the next dequeue.
func (s *Store) ApplyDecision(ctx context.Context, item *domain.ReviewItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE review_items SET reviewer_id=$2, reviewed_at=$3, decision=$4, notes=$5
			WHERE flag_id=$1`,
			item.ID, item.ReviewerID, item.ReviewedAt, item.Decision, item.Notes,
		); err != nil {
			return err
		}
		status := decisionToFlagStatus(item.Decision)
		if item.Decision == domain.DecisionEscalate {
			_, err := tx.ExecContext(ctx, `UPDATE content_flags SET tier=4, status=$2 WHERE id=$1`, item.ID, status)
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE content_flags SET status=$2 WHERE id=$1`, item.ID, status)
		return err
	})
}

func decisionToFlagStatus(d domain.Decision) domain.FlagStatus {
	switch d {
	case domain.DecisionSafe:
		return domain.FlagDismissed
	case domain.DecisionBlock:
		return domain.FlagBlocked
	case domain.DecisionEscalate:
		return domain.FlagEscalated
	case domain.DecisionBan:
		return domain.FlagReviewed
	default:
		return domain.FlagReviewed
	}
}

// GetReviewLease reports the current assignee of a flag, if any.
func (s *Store) GetReviewLease(ctx context.Context, flagID string) (assignedTo string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT assigned_to FROM review_items WHERE flag_id=$1`, flagID)
	var v sql.NullString
	if scanErr := row.Scan(&v); scanErr != nil {
		if isNotFound(scanErr) {
			return "", false, nil
		}
		return "", false, scanErr
	}
	return v.String, v.Valid && v.String != "", nil
}

// BanUser records a user id as banned; idempotent under concurrent calls.
func (s *Store) BanUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banned_users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

// IsBanned reports whether a user id has been banned.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM banned_users WHERE user_id=$1`, userID)
	var one int
	if err := row.Scan(&one); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
