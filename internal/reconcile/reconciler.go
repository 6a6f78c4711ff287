package reconcile

import (
	"context"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
)

// Reconciler folds per-recipient outcomes into the broadcast counters.
// Every record call is idempotent: the message-row status transition is
// the gate, and the counter only moves when the gate actually flipped.
// Callers may therefore replay outcomes freely, which the at-least-once
// queue will do.
type Reconciler struct {
	db         *pg.DB
	broadcasts *repository.BroadcastRepository
	messages   *repository.MessageRepository
}

func New(db *pg.DB, broadcasts *repository.BroadcastRepository, messages *repository.MessageRepository) *Reconciler {
	return &Reconciler{
		db:         db,
		broadcasts: broadcasts,
		messages:   messages,
	}
}

// RecordSuccess marks the recipient's message sent and bumps sentCount.
// Returns true when this call completed the broadcast.
func (r *Reconciler) RecordSuccess(ctx context.Context, broadcastID, contactID, providerMessageID string) (bool, error) {
	var completed bool
	err := r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		changed, err := r.messages.MarkSent(ctx, broadcastID, contactID, providerMessageID, time.Now())
		if err != nil {
			return err
		}
		if !changed {
			// Already recorded by an earlier delivery of the same job.
			return nil
		}

		if err := r.broadcasts.IncrementSent(ctx, broadcastID); err != nil {
			return err
		}

		completed, err = r.broadcasts.CompleteIfDone(ctx, broadcastID, time.Now())
		return err
	})
	if err != nil {
		return false, err
	}

	if completed {
		logger.Info("broadcast completed", "broadcast_id", broadcastID)
	}
	return completed, nil
}

// RecordFailure marks the recipient's message failed and bumps
// failedCount. Called once per job, after its last attempt.
func (r *Reconciler) RecordFailure(ctx context.Context, broadcastID, contactID, reason string) (bool, error) {
	var completed bool
	err := r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		changed, err := r.messages.MarkFailed(ctx, broadcastID, contactID, reason)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if err := r.broadcasts.IncrementFailed(ctx, broadcastID); err != nil {
			return err
		}

		completed, err = r.broadcasts.CompleteIfDone(ctx, broadcastID, time.Now())
		return err
	})
	if err != nil {
		return false, err
	}

	if completed {
		logger.Info("broadcast completed", "broadcast_id", broadcastID)
	}
	return completed, nil
}

// RecordDelivered handles a delivery receipt from the channel. Receipts
// are keyed by the provider's message id and only count once, and only
// for messages that went out through a broadcast.
func (r *Reconciler) RecordDelivered(ctx context.Context, providerMessageID string) error {
	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		msg, changed, err := r.messages.MarkDelivered(ctx, providerMessageID)
		if err != nil {
			if err == repository.ErrNotFound {
				// Receipt for a message we never sent; drop it.
				logger.Debug("receipt for unknown provider message", "provider_message_id", providerMessageID)
				return nil
			}
			return err
		}
		if !changed || msg.BroadcastID == nil {
			return nil
		}
		return r.broadcasts.IncrementDelivered(ctx, *msg.BroadcastID)
	})
}

// Progress reads the live counters for one broadcast.
func (r *Reconciler) Progress(ctx context.Context, broadcastID string) (*model.BroadcastProgress, error) {
	b, err := r.broadcasts.Get(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	return b.Progress(), nil
}
