package app

import (
	"fmt"

	"go.uber.org/zap"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	logger "nova_messaging_service/pkg/logger"
)

// RoomChannel redis channel carrying room events, one channel per conversation
func RoomChannel(conversationID string) string {
	return fmt.Sprintf("chat:room:%s", conversationID)
}

// UserChannel redis channel carrying events addressed to one user
func UserChannel(userID string) string {
	return fmt.Sprintf("chat:user:%s", userID)
}

// Broadcaster fan-out of server events to the sessions subscribed to a room.
// Delivery is best effort: a slow or closed session drops the event and the
// receipt machinery catches up through the offline queue.
type Broadcaster interface {
	// Broadcast push the event to every room session except excludeUserID
	Broadcast(conversationID string, resp domain.WSResponse, excludeUserID string)
	// BroadcastToUser publish the event on the user's own channel. Every live
	// session subscribes to its channel, so this reaches the user wherever
	// they are connected.
	BroadcastToUser(userID string, resp domain.WSResponse)
}

type roomBroadcaster struct {
	registry PresenceRegistry
	pubsub   repository.PubSub
}

// NewRoomBroadcaster create a broadcaster over the registry, mirroring every
// event onto redis so sibling processes can follow the same rooms
func NewRoomBroadcaster(registry PresenceRegistry, pubsub repository.PubSub) Broadcaster {
	return &roomBroadcaster{registry: registry, pubsub: pubsub}
}

// Broadcast deliver to the local room snapshot, then mirror to redis.
// Broadcasting to a room nobody subscribes to is a no-op, not an error.
func (b *roomBroadcaster) Broadcast(conversationID string, resp domain.WSResponse, excludeUserID string) {
	for _, session := range b.registry.SessionsFor(conversationID) {
		if session.UserID() == excludeUserID {
			continue
		}
		if err := session.Send(resp); err != nil {
			logger.Log.Warn("broadcast drop",
				zap.String("conversation_id", conversationID),
				zap.String("user_id", session.UserID()),
				zap.Error(err))
		}
	}

	if err := b.pubsub.Publish(RoomChannel(conversationID), resp); err != nil {
		logger.Log.Warn("room publish failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// BroadcastToUser publish on the user's own channel
func (b *roomBroadcaster) BroadcastToUser(userID string, resp domain.WSResponse) {
	if err := b.pubsub.Publish(UserChannel(userID), resp); err != nil {
		logger.Log.Warn("user publish failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
