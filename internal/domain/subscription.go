package domain

import "time"

// ChannelKind enumerates the notification delivery channels.
type ChannelKind string

const (
	ChannelPush ChannelKind = "browser-push"
	ChannelSMS  ChannelKind = "sms"
	ChannelChat ChannelKind = "chat-bot"
)

// PushSubscription is a Web Push endpoint (VAPID keys attached at send time).
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// SMSRecipient is a phone number subscribed to SMS alerts.
type SMSRecipient struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	E164      string    `json:"e164"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRecipient is a chat-bot conversation subscribed to alerts.
type ChatRecipient struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}
