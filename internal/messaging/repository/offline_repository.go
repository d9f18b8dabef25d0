package repository

import (
	"context"

	"nova_messaging_service/internal/messaging/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OfflineQueueRepository definition durable per-recipient FIFO of messages
// that could not be delivered in real time. Entries are finalized exactly
// once: flipped to sent on successful drain, to failed on retry exhaustion,
// never removed silently.
type OfflineQueueRepository interface {
	Enqueue(ctx context.Context, entry *domain.OfflineQueueEntry) error
	// FindPending recipient's pending entries in FIFO order
	FindPending(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error)
	MarkSent(ctx context.Context, entryID string) error
	// BumpRetry increments retry_count, advances next_retry_at with linear
	// backoff and flips the entry to failed once the bound is reached.
	// Returns the resulting status.
	BumpRetry(ctx context.Context, entry *domain.OfflineQueueEntry, now int64) (domain.QueueStatus, error)
	// FindFailedBySender failed entries whose queued message was authored by
	// senderID, for the sender-facing status query
	FindFailedBySender(ctx context.Context, senderID string) ([]domain.OfflineQueueEntry, error)
	FindFailed(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error)
}

type offlineQueueRepository struct {
	coll *mongo.Collection
}

// NewMongoOfflineQueueRepository create an OfflineQueueRepository on mongo
func NewMongoOfflineQueueRepository(db *mongo.Database) OfflineQueueRepository {
	return &offlineQueueRepository{
		coll: db.Collection("offline_queue"),
	}
}

// Enqueue append one pending entry
func (r *offlineQueueRepository) Enqueue(ctx context.Context, entry *domain.OfflineQueueEntry) error {
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

// FindPending recipient queue in FIFO order
func (r *offlineQueueRepository) FindPending(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error) {
	filter := bson.M{"recipient_id": recipientID, "status": domain.QueuePending}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var entries []domain.OfflineQueueEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkSent finalize one delivered entry
func (r *offlineQueueRepository) MarkSent(ctx context.Context, entryID string) error {
	update := bson.M{"$set": bson.M{"status": domain.QueueSent}}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": entryID}, update)
	return err
}

// BumpRetry record one failed delivery attempt
func (r *offlineQueueRepository) BumpRetry(ctx context.Context, entry *domain.OfflineQueueEntry, now int64) (domain.QueueStatus, error) {
	newCount := entry.RetryCount + 1
	status := domain.QueuePending
	if newCount >= entry.MaxRetries {
		status = domain.QueueFailed
	}
	nextRetryAt := now + int64(domain.RetryBackoffSeconds*newCount)

	update := bson.M{"$set": bson.M{
		"retry_count":   newCount,
		"next_retry_at": nextRetryAt,
		"status":        status,
	}}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": entry.ID}, update); err != nil {
		return entry.Status, err
	}

	entry.RetryCount = newCount
	entry.NextRetryAt = nextRetryAt
	entry.Status = status
	return status, nil
}

// FindFailedBySender exhausted entries for the sender status query
func (r *offlineQueueRepository) FindFailedBySender(ctx context.Context, senderID string) ([]domain.OfflineQueueEntry, error) {
	filter := bson.M{"message.sender_id": senderID, "status": domain.QueueFailed}
	return r.findSorted(ctx, filter)
}

// FindFailed exhausted entries of one recipient
func (r *offlineQueueRepository) FindFailed(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error) {
	filter := bson.M{"recipient_id": recipientID, "status": domain.QueueFailed}
	return r.findSorted(ctx, filter)
}

func (r *offlineQueueRepository) findSorted(ctx context.Context, filter bson.M) ([]domain.OfflineQueueEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var entries []domain.OfflineQueueEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
