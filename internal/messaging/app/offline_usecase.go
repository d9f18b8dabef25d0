package app

import (
	"context"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	logger "nova_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// OfflineUseCase drain and inspect the per-recipient offline queue.
//
// Draining is pull based: it runs when the recipient reconnects or asks for
// a sync, never from a background timer. Each failed attempt bumps the
// entry's retry count and pushes next_retry_at out by a linear backoff; the
// entry flips to failed at the retry bound and stays queryable.
type OfflineUseCase struct {
	queueRepo repository.OfflineQueueRepository
	msgRepo   repository.MessageRepository
	registry  PresenceRegistry
}

// NewOfflineUseCase init offline queue use case
func NewOfflineUseCase(
	queueRepo repository.OfflineQueueRepository,
	msgRepo repository.MessageRepository,
	registry PresenceRegistry,
) *OfflineUseCase {
	return &OfflineUseCase{
		queueRepo: queueRepo,
		msgRepo:   msgRepo,
		registry:  registry,
	}
}

// Drain deliver every pending entry for the recipient in FIFO order and
// return the delivered messages.
//
// With a registered session each entry is pushed as a queued-message event;
// without one the returned slice is the delivery, which is how the REST sync
// endpoint consumes it. A failed push bumps the entry and moves on.
func (uc *OfflineUseCase) Drain(ctx context.Context, recipientID string) ([]domain.Message, error) {
	entries, err := uc.queueRepo.FindPending(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	session, hasSession := uc.registry.SessionOf(recipientID)

	delivered := make([]domain.Message, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		now := time.Now().Unix()

		if hasSession {
			err = session.Send(domain.WSResponse{
				Action:  string(domain.EventQueuedMessage),
				Success: true,
				Payload: domain.NewMessageEvent{Message: &entry.Message},
			})
			if err != nil {
				status, bumpErr := uc.queueRepo.BumpRetry(ctx, entry, now)
				if bumpErr != nil {
					logger.Log.Error("retry bump failed",
						zap.String("entry_id", entry.ID), zap.Error(bumpErr))
					continue
				}
				if status == domain.QueueFailed {
					logger.Log.Warn("offline delivery gave up",
						zap.String("entry_id", entry.ID),
						zap.String("user_id", recipientID),
						zap.Int("retry_count", entry.RetryCount))
				}
				continue
			}
		}

		if err := uc.queueRepo.MarkSent(ctx, entry.ID); err != nil {
			logger.Log.Error("mark sent failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		if err := uc.msgRepo.MarkDelivered(ctx, entry.Message.ID, recipientID, now); err != nil {
			logger.Log.Warn("mark delivered failed",
				zap.String("message_id", entry.Message.ID), zap.Error(err))
		}
		delivered = append(delivered, entry.Message)
	}
	return delivered, nil
}

// FailedBySender queue entries of the caller's own messages that exhausted
// their retries, for the sender-facing status endpoint
func (uc *OfflineUseCase) FailedBySender(ctx context.Context, senderID string) ([]domain.OfflineQueueEntry, error) {
	return uc.queueRepo.FindFailedBySender(ctx, senderID)
}

// FailedFor queue entries addressed to the recipient that exhausted their
// retries
func (uc *OfflineUseCase) FailedFor(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error) {
	return uc.queueRepo.FindFailed(ctx, recipientID)
}
