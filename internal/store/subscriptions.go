package store

import (
	"context"

	"lighthouse/internal/domain"
)

// UpsertPushSubscription inserts or refreshes a push endpoint, deduped by endpoint.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub *domain.PushSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (endpoint) DO UPDATE SET p256dh=$4, auth=$5`,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt,
	)
	return err
}

// DeletePushSubscription removes a dead endpoint (called on 404/410 from the provider).
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint=$1`, endpoint)
	return err
}

// ListPushSubscriptions returns every push endpoint for a user.
func (s *Store) ListPushSubscriptions(ctx context.Context, userID string) ([]*domain.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PushSubscription
	for rows.Next() {
		var p domain.PushSubscription
		if err := rows.Scan(&p.ID, &p.UserID, &p.Endpoint, &p.P256dh, &p.Auth, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpsertSMSRecipient inserts or no-ops a phone subscription, deduped by e164.
func (s *Store) UpsertSMSRecipient(ctx context.Context, r *domain.SMSRecipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sms_recipients (id, user_id, e164, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (e164) DO NOTHING`,
		r.ID, r.UserID, r.E164, r.CreatedAt,
	)
	return err
}

// ListSMSRecipients returns every phone number subscribed for a user.
func (s *Store) ListSMSRecipients(ctx context.Context, userID string) ([]*domain.SMSRecipient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, e164, created_at FROM sms_recipients WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SMSRecipient
	for rows.Next() {
		var r domain.SMSRecipient
		if err := rows.Scan(&r.ID, &r.UserID, &r.E164, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertChatRecipient inserts or no-ops a chat-bot subscription, deduped by chat_id.
func (s *Store) UpsertChatRecipient(ctx context.Context, r *domain.ChatRecipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_recipients (id, user_id, chat_id, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (chat_id) DO NOTHING`,
		r.ID, r.UserID, r.ChatID, r.CreatedAt,
	)
	return err
}

// ListChatRecipients returns every chat recipient subscribed for a user.
func (s *Store) ListChatRecipients(ctx context.Context, userID string) ([]*domain.ChatRecipient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, chat_id, created_at FROM chat_recipients WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChatRecipient
	for rows.Next() {
		var r domain.ChatRecipient
		if err := rows.Scan(&r.ID, &r.UserID, &r.ChatID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
