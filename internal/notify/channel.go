package notify

import (
	"context"

	"lighthouse/internal/domain"
)

// SendResult reports the outcome of one channel send.
type SendResult struct {
	Target string
	OK     bool
	Gone   bool // permanently invalid target (404/410); caller should prune it
	Err    error
}

// Channel is the contract every delivery adapter implements (spec.md §4.5):
// its kind, availability, and a single send. Adapters do not list their
// own subscriptions; the Notifier looks targets up in the Store by
// channel kind.
type Channel interface {
	Kind() domain.ChannelKind
	Available() bool
	Send(ctx context.Context, payload domain.NotificationPayload, target string) SendResult
}

// affordances returns the severity-appropriate icon/emoji and whether the
// notification should demand interaction, per spec.md §4.5.
func affordances(sev domain.Severity) (icon string, requireInteraction bool) {
	switch sev {
	case domain.SeverityCritical:
		return "🚨", true
	case domain.SeverityUrgent:
		return "⚠️", true
	case domain.SeverityWarning:
		return "🔔", false
	default:
		return "ℹ️", false
	}
}
