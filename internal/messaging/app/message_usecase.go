package app

import (
	"context"
	"fmt"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	errprocess "nova_messaging_service/pkg/err"
	logger "nova_messaging_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageUseCase the send pipeline plus receipts, typing and history.
//
// Send order is fixed: persist first, then broadcast, then per-recipient
// delivery bookkeeping. A store failure aborts the send; everything after the
// insert is best effort and never rolls the message back.
type MessageUseCase struct {
	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	queueRepo   repository.OfflineQueueRepository
	registry    PresenceRegistry
	broadcaster Broadcaster
	notifier    domain.OfflinePushNotifier
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	queueRepo repository.OfflineQueueRepository,
	registry PresenceRegistry,
	broadcaster Broadcaster,
	notifier domain.OfflinePushNotifier,
) *MessageUseCase {
	return &MessageUseCase{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		queueRepo:   queueRepo,
		registry:    registry,
		broadcaster: broadcaster,
		notifier:    notifier,
	}
}

// Send persist and deliver a plaintext (or media) message
func (uc *MessageUseCase) Send(ctx context.Context, senderID string, p domain.SendMessagePayload) (*domain.Message, error) {
	if p.Text == "" && p.MediaRef == "" {
		return nil, domain.ErrEmptyContent
	}

	msgType := p.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	now := time.Now().Unix()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		MessageType:    msgType,
		Text:           p.Text,
		MediaRef:       p.MediaRef,
		FileName:       p.FileName,
		FileSize:       p.FileSize,
		ReplyTo:        p.ReplyTo,
		ForwardedFrom:  p.ForwardedFrom,
		DeliveredTo:    []domain.DeliveryReceipt{{UserID: senderID, DeliveredAt: now}},
		ReadBy:         []domain.ReadReceipt{{UserID: senderID, ReadAt: now}},
		CreatedAt:      now,
	}
	return uc.deliver(ctx, senderID, msg)
}

// SendEncrypted persist and deliver an opaque ciphertext message. The server
// stores and routes the bytes without ever inspecting them.
func (uc *MessageUseCase) SendEncrypted(ctx context.Context, senderID string, p domain.SendEncryptedPayload) (*domain.Message, error) {
	// both transports funnel through here, so the guard holds for REST too
	if len(p.Ciphertext) == 0 || len(p.Nonce) == 0 {
		return nil, domain.ErrEncryptedPayload
	}

	now := time.Now().Unix()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		MessageType:    domain.MessageTypeEncrypted,
		Ciphertext:     p.Ciphertext,
		Nonce:          p.Nonce,
		DeliveredTo:    []domain.DeliveryReceipt{{UserID: senderID, DeliveredAt: now}},
		ReadBy:         []domain.ReadReceipt{{UserID: senderID, ReadAt: now}},
		CreatedAt:      now,
	}
	return uc.deliver(ctx, senderID, msg)
}

// deliver run the shared pipeline: validate, persist, broadcast, then mark
// delivered or queue per recipient
func (uc *MessageUseCase) deliver(ctx context.Context, senderID string, msg *domain.Message) (*domain.Message, error) {
	// 1. conversation must exist and the sender must belong to it
	conv, err := uc.convRepo.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, domain.ErrNotParticipant
	}

	// 2. persist, store failure aborts the send
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		errMsg := fmt.Sprintf("insert message [%s] failed: %v", msg.ID, err)
		return nil, errprocess.Set(errMsg)
	}
	if err := uc.convRepo.TouchUpdatedAt(ctx, conv.ID, msg.CreatedAt); err != nil {
		logger.Log.Warn("touch conversation failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	// 3. broadcast to the room, sender excluded
	uc.broadcaster.Broadcast(conv.ID, domain.WSResponse{
		Action:  string(domain.EventNewMessage),
		Success: true,
		Payload: domain.NewMessageEvent{Message: msg},
	}, senderID)

	// 4. per-recipient delivery bookkeeping
	for _, recipientID := range conv.ParticipantIDs {
		if recipientID == senderID {
			continue
		}
		uc.deliverTo(ctx, recipientID, msg)
	}
	return msg, nil
}

// deliverTo mark one recipient delivered, or queue the message for them.
// A recipient with a session outside the room gets a direct push; a failed
// push falls back to the queue like a plain offline recipient.
func (uc *MessageUseCase) deliverTo(ctx context.Context, recipientID string, msg *domain.Message) {
	now := time.Now().Unix()

	if uc.registry.InRoom(recipientID, msg.ConversationID) {
		// the room broadcast already reached this session
		if err := uc.msgRepo.MarkDelivered(ctx, msg.ID, recipientID, now); err != nil {
			logger.Log.Warn("mark delivered failed",
				zap.String("message_id", msg.ID), zap.String("user_id", recipientID), zap.Error(err))
		}
		return
	}

	if session, ok := uc.registry.SessionOf(recipientID); ok {
		err := session.Send(domain.WSResponse{
			Action:  string(domain.EventNewMessage),
			Success: true,
			Payload: domain.NewMessageEvent{Message: msg},
		})
		if err == nil {
			if err := uc.msgRepo.MarkDelivered(ctx, msg.ID, recipientID, now); err != nil {
				logger.Log.Warn("mark delivered failed",
					zap.String("message_id", msg.ID), zap.String("user_id", recipientID), zap.Error(err))
			}
			return
		}
		logger.Log.Warn("direct push failed, queueing",
			zap.String("user_id", recipientID), zap.Error(err))
	}

	uc.enqueue(ctx, recipientID, msg, now)
}

// enqueue durably queue the message for an offline recipient and fire the
// opportunistic push hook. Neither step may fail the send.
func (uc *MessageUseCase) enqueue(ctx context.Context, recipientID string, msg *domain.Message, now int64) {
	entry := &domain.OfflineQueueEntry{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Message:     *msg,
		RetryCount:  0,
		MaxRetries:  domain.MaxDeliveryRetries,
		NextRetryAt: now,
		Status:      domain.QueuePending,
		CreatedAt:   now,
	}
	if err := uc.queueRepo.Enqueue(ctx, entry); err != nil {
		logger.Log.Error("offline enqueue failed",
			zap.String("message_id", msg.ID), zap.String("user_id", recipientID), zap.Error(err))
		return
	}

	summary := fmt.Sprintf("new message in conversation %s", msg.ConversationID)
	if err := uc.notifier.NotifyOffline(ctx, recipientID, summary); err != nil {
		logger.Log.Warn("offline push hook failed",
			zap.String("user_id", recipientID), zap.Error(err))
	}
}

// History chronological page of a conversation, participant check included.
// beforeSeq pages backwards from a previously seen message.
func (uc *MessageUseCase) History(ctx context.Context, convID, userID string, beforeSeq, limit int64) ([]domain.Message, error) {
	conv, err := uc.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return uc.msgRepo.FindByConversation(ctx, convID, beforeSeq, limit)
}

// UnreadCount messages of the conversation the user has not read yet
func (uc *MessageUseCase) UnreadCount(ctx context.Context, convID, userID string) (int, error) {
	return uc.msgRepo.CountUnread(ctx, convID, userID)
}

// MarkMessageRead add the caller's read receipt to one message and notify
// the room. Repeats are no-ops.
func (uc *MessageUseCase) MarkMessageRead(ctx context.Context, messageID, userID string) error {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	conv, err := uc.convRepo.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return domain.ErrNotParticipant
	}

	now := time.Now().Unix()
	if err := uc.msgRepo.MarkRead(ctx, messageID, userID, now); err != nil {
		return err
	}

	event := domain.WSResponse{
		Action:  string(domain.EventMessageRead),
		Success: true,
		Payload: domain.MessageReadEvent{
			ConversationID: conv.ID,
			MessageID:      messageID,
			UserID:         userID,
			ReadAt:         now,
		},
	}
	uc.broadcaster.Broadcast(conv.ID, event, userID)
	// the sender cares about the receipt even when they left the room
	if msg.SenderID != userID && !uc.registry.InRoom(msg.SenderID, conv.ID) {
		uc.broadcaster.BroadcastToUser(msg.SenderID, event)
	}
	return nil
}

// MarkAllRead add the caller's read receipt to every unread message of the
// conversation and notify the room with the batch
func (uc *MessageUseCase) MarkAllRead(ctx context.Context, convID, userID string) ([]string, error) {
	conv, err := uc.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}

	now := time.Now().Unix()
	ids, err := uc.msgRepo.MarkAllRead(ctx, convID, userID, now)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	uc.broadcaster.Broadcast(convID, domain.WSResponse{
		Action:  string(domain.EventMessagesRead),
		Success: true,
		Payload: domain.MessagesReadEvent{
			ConversationID: convID,
			MessageIDs:     ids,
			UserID:         userID,
			ReadAt:         now,
		},
	}, userID)
	return ids, nil
}

// Typing relay a typing indicator to the room. Ephemeral, nothing is stored.
func (uc *MessageUseCase) Typing(ctx context.Context, convID, userID string, isTyping bool) error {
	conv, err := uc.convRepo.FindByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return domain.ErrNotParticipant
	}

	uc.broadcaster.Broadcast(convID, domain.WSResponse{
		Action:  string(domain.EventUserTyping),
		Success: true,
		Payload: domain.TypingEvent{
			ConversationID: convID,
			UserID:         userID,
			IsTyping:       isTyping,
		},
	}, userID)
	return nil
}

// Edit replace the text of one of the caller's own messages. Encrypted
// messages carry no plaintext and cannot be edited server side.
func (uc *MessageUseCase) Edit(ctx context.Context, messageID, userID, newText string) (*domain.Message, error) {
	if newText == "" {
		return nil, domain.ErrEmptyContent
	}

	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, domain.ErrNotSender
	}
	if msg.MessageType == domain.MessageTypeEncrypted {
		return nil, domain.ErrEncryptedImmutable
	}

	now := time.Now().Unix()
	if err := uc.msgRepo.Edit(ctx, messageID, newText, now); err != nil {
		return nil, err
	}

	msg.Text = newText
	msg.IsEdited = true
	msg.EditedAt = now

	uc.broadcaster.Broadcast(msg.ConversationID, domain.WSResponse{
		Action:  string(domain.EventMessageEdited),
		Success: true,
		Payload: domain.NewMessageEvent{Message: msg},
	}, userID)
	return msg, nil
}
