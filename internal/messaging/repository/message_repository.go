package repository

import (
	"context"
	"errors"
	"fmt"

	"nova_messaging_service/internal/messaging/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition message store.
// Receipt writes are idempotent set-adds: the update filter excludes
// documents already holding an entry for the user, so a concurrent or
// repeated mark never duplicates and never overwrites.
type MessageRepository interface {
	// Insert persists the message and assigns its per-conversation seq
	Insert(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	// FindByConversation lists chronologically (created_at asc, seq asc).
	// beforeSeq > 0 pages backwards; limit 0 means no limit.
	FindByConversation(ctx context.Context, convID string, beforeSeq int64, limit int64) ([]domain.Message, error)
	LastMessage(ctx context.Context, convID string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, messageID, userID string, ts int64) error
	MarkRead(ctx context.Context, messageID, userID string, ts int64) error
	// MarkAllRead adds a read receipt to every unread message not authored
	// by the user; returns the ids that were updated.
	MarkAllRead(ctx context.Context, convID, userID string, ts int64) ([]string, error)
	CountUnread(ctx context.Context, convID, userID string) (int, error)
	// CountUnreadByConversation aggregates unread counts across all of a
	// user's conversations.
	CountUnreadByConversation(ctx context.Context, userID string) (map[string]int, error)
	Edit(ctx context.Context, messageID, newText string, ts int64) error
}

type messageRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository on mongo
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll:     db.Collection("messages"),
		counters: db.Collection("message_counters"),
	}
}

// nextSeq allocate the next per-conversation insertion number
func (r *messageRepository) nextSeq(ctx context.Context, convID string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": convID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate seq: %w", err)
	}
	return counter.Seq, nil
}

// Insert write one message
func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	seq, err := r.nextSeq(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	msg.Seq = seq
	_, err = r.coll.InsertOne(ctx, msg)
	return err
}

// FindByID find message by id
func (r *messageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// FindByConversation chronological page of one conversation
func (r *messageRepository) FindByConversation(ctx context.Context, convID string, beforeSeq int64, limit int64) ([]domain.Message, error) {
	filter := bson.M{"conversation_id": convID}
	if beforeSeq > 0 {
		filter["seq"] = bson.M{"$lt": beforeSeq}
	}
	// newest page first, then flipped back to chronological order
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var page []domain.Message
	if err := cur.All(ctx, &page); err != nil {
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// LastMessage newest message of one conversation, nil when empty
func (r *messageRepository) LastMessage(ctx context.Context, convID string) (*domain.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": convID}, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// MarkDelivered idempotent delivery receipt upsert
func (r *messageRepository) MarkDelivered(ctx context.Context, messageID, userID string, ts int64) error {
	filter := bson.M{
		"_id":                  messageID,
		"delivered_to.user_id": bson.M{"$ne": userID},
	}
	update := bson.M{"$push": bson.M{"delivered_to": domain.DeliveryReceipt{UserID: userID, DeliveredAt: ts}}}
	// zero matches means the receipt already exists, which is a no-op
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}

// MarkRead idempotent read receipt upsert
func (r *messageRepository) MarkRead(ctx context.Context, messageID, userID string, ts int64) error {
	filter := bson.M{
		"_id":             messageID,
		"read_by.user_id": bson.M{"$ne": userID},
	}
	update := bson.M{"$push": bson.M{"read_by": domain.ReadReceipt{UserID: userID, ReadAt: ts}}}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}

// MarkAllRead read receipt for every unread message in the conversation
func (r *messageRepository) MarkAllRead(ctx context.Context, convID, userID string, ts int64) ([]string, error) {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}

	cur, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}

	update := bson.M{"$push": bson.M{"read_by": domain.ReadReceipt{UserID: userID, ReadAt: ts}}}
	// re-apply the $ne guard so a receipt added between the find and the
	// update is not duplicated
	_, err = r.coll.UpdateMany(ctx, bson.M{
		"_id":             bson.M{"$in": ids},
		"read_by.user_id": bson.M{"$ne": userID},
	}, update)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CountUnread unread count of one conversation for one user
func (r *messageRepository) CountUnread(ctx context.Context, convID, userID string) (int, error) {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	return int(n), err
}

// CountUnreadByConversation aggregate unread counts for all conversations
func (r *messageRepository) CountUnreadByConversation(ctx context.Context, userID string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
			{Key: "read_by.user_id", Value: bson.D{{Key: "$ne", Value: userID}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}

	var results []struct {
		ConversationID string `bson:"_id"`
		UnreadCount    int    `bson:"unread_count"`
	}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}

	counts := make(map[string]int, len(results))
	for _, res := range results {
		counts[res.ConversationID] = res.UnreadCount
	}
	return counts, nil
}

// Edit replace the text of one message, sender check happens in the usecase
func (r *messageRepository) Edit(ctx context.Context, messageID, newText string, ts int64) error {
	update := bson.M{"$set": bson.M{"text": newText, "is_edited": true, "edited_at": ts}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": messageID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}
