package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"lighthouse/internal/domain"
)

// PushChannel delivers browser push notifications via VAPID, using the
// mandatory RFC8291 aes128gcm payload encryption (spec.md §9).
type PushChannel struct {
	vapidPublicKey  string
	vapidPrivateKey string
	vapidSubject    string
}

// NewPushChannel builds a browser-push adapter from VAPID credentials.
func NewPushChannel(publicKey, privateKey, subject string) *PushChannel {
	return &PushChannel{vapidPublicKey: publicKey, vapidPrivateKey: privateKey, vapidSubject: subject}
}

func (c *PushChannel) Kind() domain.ChannelKind { return domain.ChannelPush }

func (c *PushChannel) Available() bool {
	return c.vapidPublicKey != "" && c.vapidPrivateKey != ""
}

// pushTarget packs the three fields a webpush.Subscription needs; target
// strings passed through the Channel interface are JSON-encoded
// Endpoint/P256dh/Auth triples.
type pushTarget struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// EncodeTarget packs a PushSubscription into the opaque target string
// the Notifier's fan-out passes to Send.
func EncodeTarget(sub domain.PushSubscription) string {
	b, _ := json.Marshal(pushTarget{Endpoint: sub.Endpoint, P256dh: sub.P256dh, Auth: sub.Auth})
	return string(b)
}

func (c *PushChannel) Send(ctx context.Context, payload domain.NotificationPayload, target string) SendResult {
	var t pushTarget
	if err := json.Unmarshal([]byte(target), &t); err != nil {
		return SendResult{Target: target, Err: fmt.Errorf("push: decode target: %w", err)}
	}

	icon, requireInteraction := affordances(payload.Severity)
	body, err := json.Marshal(map[string]interface{}{
		"title":               payload.Title,
		"body":                payload.Body,
		"icon":                icon,
		"requireInteraction":  requireInteraction,
		"severity":            payload.Severity,
		"url":                 payload.URL,
		"alert_id":            payload.AlertID,
	})
	if err != nil {
		return SendResult{Target: target, Err: fmt.Errorf("push: marshal payload: %w", err)}
	}

	sub := &webpush.Subscription{
		Endpoint: t.Endpoint,
		Keys:     webpush.Keys{P256dh: t.P256dh, Auth: t.Auth},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		VAPIDPublicKey:  c.vapidPublicKey,
		VAPIDPrivateKey: c.vapidPrivateKey,
		Subscriber:      c.vapidSubject,
		TTL:             60,
	})
	if err != nil {
		return SendResult{Target: target, Err: fmt.Errorf("push: send: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return SendResult{Target: target, Gone: true}
	}
	if resp.StatusCode >= 300 {
		return SendResult{Target: target, Err: fmt.Errorf("push: status %d", resp.StatusCode)}
	}
	return SendResult{Target: target, OK: true}
}
