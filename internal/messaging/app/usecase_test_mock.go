package app

import (
	"context"

	"nova_messaging_service/internal/messaging/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// Create mock create conversation
func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, convID string) (*domain.Conversation, error) {
	args := m.Called(ctx, convID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindOneDirect mock find two-party conversation
func (m *MockConversationRepository) FindOneDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindForUser mock list conversations of one user
func (m *MockConversationRepository) FindForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateSettings mock write per-owner settings
func (m *MockConversationRepository) UpdateSettings(ctx context.Context, convID, userID string, settings domain.ConversationSettings) error {
	args := m.Called(ctx, convID, userID, settings)
	return args.Error(0)
}

// TouchUpdatedAt mock bump conversation activity
func (m *MockConversationRepository) TouchUpdatedAt(ctx context.Context, convID string, ts int64) error {
	args := m.Called(ctx, convID, ts)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID mock find message by id
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByConversation mock history page
func (m *MockMessageRepository) FindByConversation(ctx context.Context, convID string, beforeSeq, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, convID, beforeSeq, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// LastMessage mock newest message of a conversation
func (m *MockMessageRepository) LastMessage(ctx context.Context, convID string) (*domain.Message, error) {
	args := m.Called(ctx, convID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkDelivered mock delivery receipt
func (m *MockMessageRepository) MarkDelivered(ctx context.Context, messageID, userID string, ts int64) error {
	args := m.Called(ctx, messageID, userID, ts)
	return args.Error(0)
}

// MarkRead mock read receipt
func (m *MockMessageRepository) MarkRead(ctx context.Context, messageID, userID string, ts int64) error {
	args := m.Called(ctx, messageID, userID, ts)
	return args.Error(0)
}

// MarkAllRead mock batch read receipts
func (m *MockMessageRepository) MarkAllRead(ctx context.Context, convID, userID string, ts int64) ([]string, error) {
	args := m.Called(ctx, convID, userID, ts)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnread mock unread count of one conversation
func (m *MockMessageRepository) CountUnread(ctx context.Context, convID, userID string) (int, error) {
	args := m.Called(ctx, convID, userID)
	return args.Int(0), args.Error(1)
}

// CountUnreadByConversation mock unread counts per conversation
func (m *MockMessageRepository) CountUnreadByConversation(ctx context.Context, userID string) (map[string]int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

// Edit mock text replacement
func (m *MockMessageRepository) Edit(ctx context.Context, messageID, newText string, ts int64) error {
	args := m.Called(ctx, messageID, newText, ts)
	return args.Error(0)
}

// MockOfflineQueueRepository Mock OfflineQueueRepository
type MockOfflineQueueRepository struct {
	mock.Mock
}

// Enqueue mock durable queueing
func (m *MockOfflineQueueRepository) Enqueue(ctx context.Context, entry *domain.OfflineQueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// FindPending mock pending entries FIFO
func (m *MockOfflineQueueRepository) FindPending(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.OfflineQueueEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkSent mock entry completion
func (m *MockOfflineQueueRepository) MarkSent(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

// BumpRetry mock retry accounting. Mirrors the real implementation's entry
// mutation so usecase code observes the bumped counters.
func (m *MockOfflineQueueRepository) BumpRetry(ctx context.Context, entry *domain.OfflineQueueEntry, now int64) (domain.QueueStatus, error) {
	args := m.Called(ctx, entry, now)
	if args.Error(1) == nil {
		entry.RetryCount++
		entry.NextRetryAt = now + int64(domain.RetryBackoffSeconds*entry.RetryCount)
		entry.Status = args.Get(0).(domain.QueueStatus)
	}
	return args.Get(0).(domain.QueueStatus), args.Error(1)
}

// FindFailedBySender mock failed entries by message sender
func (m *MockOfflineQueueRepository) FindFailedBySender(ctx context.Context, senderID string) ([]domain.OfflineQueueEntry, error) {
	args := m.Called(ctx, senderID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.OfflineQueueEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindFailed mock failed entries by recipient
func (m *MockOfflineQueueRepository) FindFailed(ctx context.Context, recipientID string) ([]domain.OfflineQueueEntry, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.OfflineQueueEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPubSub Mock PubSub
type MockPubSub struct {
	mock.Mock
}

// Publish mock publisher
func (m *MockPubSub) Publish(channel string, message interface{}) error {
	args := m.Called(channel, message)
	return args.Error(0)
}

// Subscribe mock subscriber
func (m *MockPubSub) Subscribe(ctx context.Context, channel string, handler func(resp domain.WSResponse)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

// MockProfileProvider Mock ProfileProvider
type MockProfileProvider struct {
	mock.Mock
}

// GetUserProfile mock profile lookup
func (m *MockProfileProvider) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockNotifier Mock OfflinePushNotifier
type MockNotifier struct {
	mock.Mock
}

// NotifyOffline mock push hook
func (m *MockNotifier) NotifyOffline(ctx context.Context, userID, summary string) error {
	args := m.Called(ctx, userID, summary)
	return args.Error(0)
}

// fakeSession scriptable in-memory Session for pipeline and drain tests
type fakeSession struct {
	userID string
	sent   []domain.WSResponse
	err    error
	closed bool
}

func newFakeSession(userID string) *fakeSession {
	return &fakeSession{userID: userID}
}

func (s *fakeSession) UserID() string { return s.userID }

func (s *fakeSession) Send(resp domain.WSResponse) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, resp)
	return nil
}

func (s *fakeSession) Close() { s.closed = true }
