package repository

import (
	"context"
	"errors"

	"nova_messaging_service/internal/messaging/domain"
	logger "nova_messaging_service/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConversationRepository definition conversation store
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	FindByID(ctx context.Context, convID string) (*domain.Conversation, error)
	// FindOneDirect looks up the non-group conversation holding exactly this
	// 2-participant set. Returns nil, nil when none exists.
	FindOneDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	// FindForUser returns the user's conversations ordered by updated_at desc
	FindForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	UpdateSettings(ctx context.Context, convID, userID string, settings domain.ConversationSettings) error
	// TouchUpdatedAt bumps updated_at so conversation lists sort by recency
	TouchUpdatedAt(ctx context.Context, convID string, ts int64) error
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create a ConversationRepository on mongo
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	coll := db.Collection("conversations")

	// direct_key is unique so two concurrent creates for the same pair
	// cannot both insert; without the index only sequential creation is
	// idempotent
	_, err := coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "direct_key", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"direct_key": bson.M{"$type": "string"}}),
	})
	if err != nil {
		logger.Log.Warn("direct_key index create failed", zap.Error(err))
	}

	return &conversationRepository{coll: coll}
}

// directKey canonical key of a 2-party conversation, smaller id first
func directKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// Create insert conversation. Losing a duplicate-key race on the direct pair
// returns ErrConversationExists so the caller can fetch the winner.
func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	if !conv.IsGroup && len(conv.ParticipantIDs) == 2 {
		conv.DirectKey = directKey(conv.ParticipantIDs[0], conv.ParticipantIDs[1])
	}
	_, err := r.coll.InsertOne(ctx, conv)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConversationExists
	}
	return err
}

// FindByID find conversation by id
func (r *conversationRepository) FindByID(ctx context.Context, convID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindOneDirect find the existing 2-party non-group conversation
func (r *conversationRepository) FindOneDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	filter := bson.M{
		"is_group": false,
		"participant_ids": bson.M{
			"$all":  []string{userA, userB},
			"$size": 2,
		},
	}
	var conv domain.Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindForUser list the user's conversations by recency
func (r *conversationRepository) FindForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	filter := bson.M{"participant_ids": userID}
	opts := options.Find().SetSort(bson.M{"updated_at": -1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var convs []domain.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// UpdateSettings set the per-owner archive/mute state
func (r *conversationRepository) UpdateSettings(ctx context.Context, convID, userID string, settings domain.ConversationSettings) error {
	filter := bson.M{"_id": convID}
	update := bson.M{"$set": bson.M{"settings." + userID: settings}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// TouchUpdatedAt bump updated_at
func (r *conversationRepository) TouchUpdatedAt(ctx context.Context, convID string, ts int64) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": convID}, bson.M{"$set": bson.M{"updated_at": ts}})
	return err
}
