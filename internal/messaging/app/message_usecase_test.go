package app

import (
	"context"
	"errors"
	"testing"

	"nova_messaging_service/internal/messaging/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// pipelineFixture wires a MessageUseCase over mocks plus a real registry so
// tests can control who looks online
type pipelineFixture struct {
	convRepo  *MockConversationRepository
	msgRepo   *MockMessageRepository
	queueRepo *MockOfflineQueueRepository
	pubsub    *MockPubSub
	notifier  *MockNotifier
	registry  PresenceRegistry
	uc        *MessageUseCase
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		convRepo:  new(MockConversationRepository),
		msgRepo:   new(MockMessageRepository),
		queueRepo: new(MockOfflineQueueRepository),
		pubsub:    new(MockPubSub),
		notifier:  new(MockNotifier),
		registry:  NewPresenceRegistry(),
	}
	f.uc = NewMessageUseCase(f.convRepo, f.msgRepo, f.queueRepo,
		f.registry, NewRoomBroadcaster(f.registry, f.pubsub), f.notifier)
	return f
}

func TestMessageUseCase_SendToOnlineRecipient(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	recipient := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, recipient}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.convRepo.On("TouchUpdatedAt", ctx, convID, mock.Anything).Return(nil)
	f.msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	f.msgRepo.On("MarkDelivered", ctx, mock.Anything, recipient, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	// recipient online and subscribed to the room
	recipientSession := newFakeSession(recipient)
	f.registry.Register(recipient, recipientSession)
	f.registry.JoinRoom(recipient, convID)

	msg, err := f.uc.Send(ctx, sender, domain.SendMessagePayload{
		ConversationID: convID,
		Text:           "hello",
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.MessageTypeText, msg.MessageType)
	assert.True(t, msg.DeliveredToUser(sender), "sender seeds the delivery receipts")
	assert.True(t, msg.ReadByUser(sender), "sender seeds the read receipts")

	// the room broadcast reached the recipient once
	assert.Len(t, recipientSession.sent, 1)
	assert.Equal(t, string(domain.EventNewMessage), recipientSession.sent[0].Action)

	// nothing was queued
	f.queueRepo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.msgRepo.AssertExpectations(t)
}

func TestMessageUseCase_SendToOfflineRecipient(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	offline := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, offline}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.convRepo.On("TouchUpdatedAt", ctx, convID, mock.Anything).Return(nil)
	f.msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	var queued *domain.OfflineQueueEntry
	f.queueRepo.On("Enqueue", ctx, mock.Anything).Run(func(args mock.Arguments) {
		queued = args.Get(1).(*domain.OfflineQueueEntry)
	}).Return(nil)
	f.notifier.On("NotifyOffline", ctx, offline, mock.Anything).Return(nil)

	msg, err := f.uc.Send(ctx, sender, domain.SendMessagePayload{
		ConversationID: convID,
		Text:           "you there?",
	})

	assert.NoError(t, err)
	assert.NotNil(t, queued)
	assert.Equal(t, offline, queued.RecipientID)
	assert.Equal(t, msg.ID, queued.Message.ID)
	assert.Equal(t, domain.QueuePending, queued.Status)
	assert.Equal(t, 0, queued.RetryCount)
	assert.Equal(t, domain.MaxDeliveryRetries, queued.MaxRetries)

	// no delivery receipt for an offline recipient
	f.msgRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, offline, mock.Anything)
	f.notifier.AssertExpectations(t)
}

// a recipient connected but outside the room gets a direct push
func TestMessageUseCase_SendDirectPushOutsideRoom(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	recipient := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, recipient}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.convRepo.On("TouchUpdatedAt", ctx, convID, mock.Anything).Return(nil)
	f.msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	f.msgRepo.On("MarkDelivered", ctx, mock.Anything, recipient, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	recipientSession := newFakeSession(recipient)
	f.registry.Register(recipient, recipientSession)

	_, err := f.uc.Send(ctx, sender, domain.SendMessagePayload{ConversationID: convID, Text: "psst"})

	assert.NoError(t, err)
	assert.Len(t, recipientSession.sent, 1)
	f.queueRepo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.msgRepo.AssertExpectations(t)
}

// a failed direct push falls back to the offline queue
func TestMessageUseCase_SendPushFailureQueues(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	recipient := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, recipient}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.convRepo.On("TouchUpdatedAt", ctx, convID, mock.Anything).Return(nil)
	f.msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)
	f.queueRepo.On("Enqueue", ctx, mock.Anything).Return(nil)
	f.notifier.On("NotifyOffline", ctx, recipient, mock.Anything).Return(nil)

	stuck := newFakeSession(recipient)
	stuck.err = errors.New("session send buffer full")
	f.registry.Register(recipient, stuck)

	_, err := f.uc.Send(ctx, sender, domain.SendMessagePayload{ConversationID: convID, Text: "hello"})

	assert.NoError(t, err)
	f.queueRepo.AssertCalled(t, "Enqueue", ctx, mock.Anything)
	f.msgRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, recipient, mock.Anything)
}

func TestMessageUseCase_SendRejections(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{"a", "b"}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)

	// outsider
	_, err := f.uc.Send(ctx, sender, domain.SendMessagePayload{ConversationID: convID, Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	// no content at all
	_, err = f.uc.Send(ctx, "a", domain.SendMessagePayload{ConversationID: convID})
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	// store failure aborts the send
	f2 := newPipelineFixture()
	f2.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f2.msgRepo.On("Insert", ctx, mock.Anything).Return(errors.New("mongo down"))
	_, err = f2.uc.Send(ctx, "a", domain.SendMessagePayload{ConversationID: convID, Text: "hi"})
	assert.Error(t, err)
	f2.pubsub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestMessageUseCase_SendEncrypted(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	recipient := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, recipient}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.convRepo.On("TouchUpdatedAt", ctx, convID, mock.Anything).Return(nil)
	f.msgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)
	f.queueRepo.On("Enqueue", ctx, mock.Anything).Return(nil)
	f.notifier.On("NotifyOffline", ctx, recipient, mock.Anything).Return(nil)

	ciphertext := []byte{0xde, 0xad, 0xbe, 0xef}
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	msg, err := f.uc.SendEncrypted(ctx, sender, domain.SendEncryptedPayload{
		ConversationID: convID,
		Ciphertext:     ciphertext,
		Nonce:          nonce,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.MessageTypeEncrypted, msg.MessageType)
	assert.Equal(t, ciphertext, msg.Ciphertext)
	assert.Equal(t, nonce, msg.Nonce)
	assert.Empty(t, msg.Text, "ciphertext messages carry no plaintext")
}

// both halves of the encrypted payload are mandatory on every transport
func TestMessageUseCase_SendEncryptedIncompletePayload(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()

	f := newPipelineFixture()

	// ciphertext without nonce, as a REST body can produce
	_, err := f.uc.SendEncrypted(ctx, sender, domain.SendEncryptedPayload{
		ConversationID: convID,
		Ciphertext:     []byte{0xde, 0xad},
	})
	assert.ErrorIs(t, err, domain.ErrEncryptedPayload)

	// nonce without ciphertext
	_, err = f.uc.SendEncrypted(ctx, sender, domain.SendEncryptedPayload{
		ConversationID: convID,
		Nonce:          []byte{1, 2, 3},
	})
	assert.ErrorIs(t, err, domain.ErrEncryptedPayload)

	f.msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestMessageUseCase_MarkMessageRead(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	reader := uuid.New().String()
	messageID := uuid.New().String()

	f := newPipelineFixture()
	msg := &domain.Message{ID: messageID, ConversationID: convID, SenderID: sender}
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{sender, reader}}
	f.msgRepo.On("FindByID", ctx, messageID).Return(msg, nil)
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.msgRepo.On("MarkRead", ctx, messageID, reader, mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)
	// sender is off-room, the receipt goes out on their own channel too
	f.pubsub.On("Publish", UserChannel(sender), mock.Anything).Return(nil)

	assert.NoError(t, f.uc.MarkMessageRead(ctx, messageID, reader))
	f.msgRepo.AssertExpectations(t)
	f.pubsub.AssertExpectations(t)

	// an outsider cannot mark
	err := f.uc.MarkMessageRead(ctx, messageID, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestMessageUseCase_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	reader := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{reader, "u2"}}
	ids := []string{uuid.New().String(), uuid.New().String()}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.msgRepo.On("MarkAllRead", ctx, convID, reader, mock.Anything).Return(ids, nil).Once()
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	got, err := f.uc.MarkAllRead(ctx, convID, reader)
	assert.NoError(t, err)
	assert.Equal(t, ids, got)

	// nothing unread, nothing broadcast
	f.msgRepo.On("MarkAllRead", ctx, convID, reader, mock.Anything).Return(nil, nil).Once()
	got, err = f.uc.MarkAllRead(ctx, convID, reader)
	assert.NoError(t, err)
	assert.Empty(t, got)
	f.pubsub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMessageUseCase_Typing(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	typer := uuid.New().String()
	watcher := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{typer, watcher}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	watcherSession := newFakeSession(watcher)
	f.registry.Register(watcher, watcherSession)
	f.registry.JoinRoom(watcher, convID)

	typerSession := newFakeSession(typer)
	f.registry.Register(typer, typerSession)
	f.registry.JoinRoom(typer, convID)

	assert.NoError(t, f.uc.Typing(ctx, convID, typer, true))

	// the indicator reaches everyone but its author
	assert.Len(t, watcherSession.sent, 1)
	assert.Empty(t, typerSession.sent)
	payload := watcherSession.sent[0].Payload.(domain.TypingEvent)
	assert.True(t, payload.IsTyping)
	assert.Equal(t, typer, payload.UserID)
}

func TestMessageUseCase_History(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	userID := uuid.New().String()

	f := newPipelineFixture()
	conv := &domain.Conversation{ID: convID, ParticipantIDs: []string{userID, "u2"}}
	page := []domain.Message{{ID: "m1", Seq: 1}, {ID: "m2", Seq: 2}}
	f.convRepo.On("FindByID", ctx, convID).Return(conv, nil)
	f.msgRepo.On("FindByConversation", ctx, convID, int64(0), int64(50)).Return(page, nil)

	got, err := f.uc.History(ctx, convID, userID, 0, 50)
	assert.NoError(t, err)
	assert.Equal(t, page, got)

	_, err = f.uc.History(ctx, convID, uuid.New().String(), 0, 50)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestMessageUseCase_Edit(t *testing.T) {
	ctx := context.Background()
	convID := uuid.New().String()
	sender := uuid.New().String()
	messageID := uuid.New().String()

	f := newPipelineFixture()
	msg := &domain.Message{ID: messageID, ConversationID: convID, SenderID: sender, Text: "old"}
	f.msgRepo.On("FindByID", ctx, messageID).Return(msg, nil)
	f.msgRepo.On("Edit", ctx, messageID, "new", mock.Anything).Return(nil)
	f.pubsub.On("Publish", RoomChannel(convID), mock.Anything).Return(nil)

	edited, err := f.uc.Edit(ctx, messageID, sender, "new")
	assert.NoError(t, err)
	assert.Equal(t, "new", edited.Text)
	assert.True(t, edited.IsEdited)
	assert.NotZero(t, edited.EditedAt)

	// only the author may edit
	_, err = f.uc.Edit(ctx, messageID, uuid.New().String(), "hijack")
	assert.ErrorIs(t, err, domain.ErrNotSender)

	// encrypted messages hold no plaintext to replace
	encryptedID := uuid.New().String()
	encrypted := &domain.Message{
		ID:             encryptedID,
		ConversationID: convID,
		SenderID:       sender,
		MessageType:    domain.MessageTypeEncrypted,
		Ciphertext:     []byte{0xde, 0xad},
		Nonce:          []byte{1, 2, 3},
	}
	f.msgRepo.On("FindByID", ctx, encryptedID).Return(encrypted, nil)
	_, err = f.uc.Edit(ctx, encryptedID, sender, "plaintext")
	assert.ErrorIs(t, err, domain.ErrEncryptedImmutable)
}
