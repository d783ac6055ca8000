// Package notify fans a per-escalation-step NotificationPayload out to
// every subscribed target on the step's channel set, bounded by a global
// concurrency limit and isolated so one channel's failures never block
// another (SPEC_FULL.md component: Notifier).
package notify

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/semaphore"

	"lighthouse/internal/domain"
	"lighthouse/internal/store"
	"lighthouse/pkg/logging"
)

// SendDeadline is the per-notification budget (spec.md §5).
const SendDeadline = 10 * time.Second

func decodeEndpoint(target string, v interface{}) error {
	return json.Unmarshal([]byte(target), v)
}

// Notifier owns the channel registry and the store lookups for targets.
type Notifier struct {
	channels map[domain.ChannelKind]Channel
	store    *store.Store
	logger   logging.Logger
	sem      *semaphore.Weighted
}

// New builds a Notifier bounded by maxConcurrentSends (spec.md §4.5),
// the idiomatic Go replacement for the teacher's Node-originated
// Promise.all fan-out.
func New(st *store.Store, logger logging.Logger, maxConcurrentSends int64, channels ...Channel) *Notifier {
	reg := make(map[domain.ChannelKind]Channel, len(channels))
	for _, ch := range channels {
		reg[ch.Kind()] = ch
	}
	return &Notifier{
		channels: reg,
		store:    st,
		logger:   logger,
		sem:      semaphore.NewWeighted(maxConcurrentSends),
	}
}

// Dispatch fans payload out to every target on each of the given channels.
func (n *Notifier) Dispatch(ctx context.Context, payload domain.NotificationPayload, userID string, channelKinds []domain.ChannelKind) {
	for _, kind := range channelKinds {
		ch, ok := n.channels[kind]
		if !ok || !ch.Available() {
			continue
		}
		targets, err := n.targetsFor(ctx, kind, userID)
		if err != nil {
			n.logger.WithError(err).Warn("notify: failed to list targets")
			continue
		}
		for _, target := range targets {
			n.sendOne(ctx, ch, payload, target)
		}
	}
}

func (n *Notifier) sendOne(ctx context.Context, ch Channel, payload domain.NotificationPayload, target string) {
	if err := n.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer n.sem.Release(1)

		sendCtx, cancel := context.WithTimeout(ctx, SendDeadline)
		defer cancel()

		result := ch.Send(sendCtx, payload, target)
		if result.Err != nil {
			n.logger.WithFields(logging.Fields{"channel": ch.Kind(), "error": result.Err.Error()}).
				Warn("notify: send failed, channel isolated from others")
			return
		}
		if result.Gone {
			n.pruneTarget(ctx, ch.Kind(), target)
		}
	}()
}

func (n *Notifier) targetsFor(ctx context.Context, kind domain.ChannelKind, userID string) ([]string, error) {
	switch kind {
	case domain.ChannelPush:
		subs, err := n.store.ListPushSubscriptions(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(subs))
		for _, s := range subs {
			out = append(out, EncodeTarget(*s))
		}
		return out, nil
	case domain.ChannelSMS:
		recipients, err := n.store.ListSMSRecipients(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(recipients))
		for _, r := range recipients {
			out = append(out, r.E164)
		}
		return out, nil
	case domain.ChannelChat:
		recipients, err := n.store.ListChatRecipients(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(recipients))
		for _, r := range recipients {
			out = append(out, r.ChatID)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (n *Notifier) pruneTarget(ctx context.Context, kind domain.ChannelKind, target string) {
	if kind != domain.ChannelPush {
		return
	}
	var t struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeEndpoint(target, &t); err != nil {
		return
	}
	if err := n.store.DeletePushSubscription(ctx, t.Endpoint); err != nil {
		n.logger.WithError(err).Warn("notify: failed to prune dead push endpoint")
	}
}
