// Package review implements the tier-priority human-review queue:
// lease-based dequeue, reviewer decisions, anonymization metadata, and
// escalation to privileged tiers (SPEC_FULL.md component: Review Queue).
package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/internal/store"
	"lighthouse/pkg/logging"
)

// StreamEnder is the subset of the Stream Manager the queue needs to
// act on a block/ban decision.
type StreamEnder interface {
	End(ctx context.Context, streamID string) error
}

// Config bounds lease duration (spec.md §6).
type Config struct {
	LeaseTimeout time.Duration
}

// DefaultConfig matches spec.md's stated default.
func DefaultConfig() Config {
	return Config{LeaseTimeout: 10 * time.Minute}
}

// Queue wraps the Store with the review-queue business rules.
type Queue struct {
	store   *store.Store
	streams StreamEnder
	logger  logging.Logger
	cfg     Config
}

// New builds a Queue.
func New(st *store.Store, streams StreamEnder, logger logging.Logger, cfg Config) *Queue {
	return &Queue{store: st, streams: streams, logger: logger, cfg: cfg}
}

// Next dequeues the highest-tier pending item for reviewerID, per
// spec.md §4.7's next_for_reviewer. Returns nil, nil if the queue is empty.
func (q *Queue) Next(ctx context.Context, reviewerID string) (*domain.ReviewItem, error) {
	item, err := q.store.ClaimNextPendingFlag(ctx, reviewerID, time.Now())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return item, nil
}

// Submit applies a reviewer's decision. Only the current lessee may
// submit; any other caller is rejected with a conflict.
func (q *Queue) Submit(ctx context.Context, flagID, reviewerID string, decision domain.Decision, notes string) error {
	assignedTo, ok, err := q.store.GetReviewLease(ctx, flagID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.New(apierr.NotFound, "no active lease for flag")
	}
	if assignedTo != reviewerID {
		return apierr.New(apierr.Conflict, "flag is leased to a different reviewer")
	}

	now := time.Now()
	item := &domain.ReviewItem{
		ContentFlag: domain.ContentFlag{ID: flagID},
		ReviewerID:  reviewerID,
		ReviewedAt:  &now,
		Decision:    decision,
		Notes:       notes,
	}
	if err := q.store.ApplyDecision(ctx, item); err != nil {
		return err
	}

	if decision != domain.DecisionBlock && decision != domain.DecisionBan {
		return nil
	}
	flag, err := q.flagFor(ctx, flagID)
	if err != nil {
		return err
	}
	if err := q.endStream(ctx, flag.StreamID); err != nil {
		return err
	}
	if decision == domain.DecisionBan {
		return q.banOwnerOf(ctx, flag.StreamID)
	}
	return nil
}

func (q *Queue) endStream(ctx context.Context, streamID string) error {
	if q.streams == nil {
		return nil
	}
	return q.streams.End(ctx, streamID)
}

func (q *Queue) banOwnerOf(ctx context.Context, streamID string) error {
	st, err := q.store.GetStream(ctx, streamID)
	if err != nil {
		return err
	}
	if st.UserID == "" {
		return nil
	}
	return q.store.BanUser(ctx, st.UserID)
}

func (q *Queue) flagFor(ctx context.Context, flagID string) (*domain.ContentFlag, error) {
	return q.store.GetContentFlag(ctx, flagID)
}

// ExpireLeases returns any lease older than cfg.LeaseTimeout to pending.
func (q *Queue) ExpireLeases(ctx context.Context) (int, error) {
	return q.store.ExpireStaleLeases(ctx, q.cfg.LeaseTimeout, time.Now())
}

// RunLeaseSweeper blocks, sweeping at the given interval until done is closed.
func (q *Queue) RunLeaseSweeper(ctx context.Context, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n, err := q.ExpireLeases(ctx); err != nil {
				q.logger.WithError(err).Warn("review: lease sweep failed")
			} else if n > 0 {
				q.logger.WithFields(logging.Fields{"expired": n}).Info("review: expired stale leases")
			}
		}
	}
}

// ViewStreamID returns a stream's id, or a stable hash of it when the
// flag's tier requires anonymization and the caller isn't privileged
// (spec.md §4.7).
func ViewStreamID(streamID string, tier int, privileged bool) string {
	if tier < 3 || privileged {
		return streamID
	}
	sum := sha256.Sum256([]byte(streamID))
	return hex.EncodeToString(sum[:])[:16]
}
