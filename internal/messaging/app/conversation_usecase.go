package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	errprocess "nova_messaging_service/pkg/err"

	"github.com/google/uuid"
)

// ConversationUseCase create, list and configure conversations
type ConversationUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	profiles domain.ProfileProvider
}

// NewConversationUseCase init conversation use case
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	profiles domain.ProfileProvider,
) *ConversationUseCase {
	return &ConversationUseCase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		profiles: profiles,
	}
}

// Create open a conversation. A two-party conversation is idempotent: when
// one already exists between the pair it is returned instead of a duplicate.
func (uc *ConversationUseCase) Create(ctx context.Context, creatorID string, participantIDs []string, isGroup bool, name, description, groupImage string) (*domain.Conversation, error) {
	// 1. dedupe participants and make sure the creator is one of them
	seen := map[string]struct{}{creatorID: {}}
	members := []string{creatorID}
	for _, id := range participantIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	// 2. cardinality rules
	if !isGroup {
		if len(members) != 2 {
			return nil, domain.ErrDirectParticipants
		}
		// reuse the existing pair conversation when there is one
		existing, err := uc.convRepo.FindOneDirect(ctx, members[0], members[1])
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else if len(members) < 2 {
		return nil, domain.ErrEmptyParticipants
	}

	// 3. persist
	now := time.Now().Unix()
	conv := &domain.Conversation{
		ID:             uuid.New().String(),
		ParticipantIDs: members,
		IsGroup:        isGroup,
		Name:           name,
		Description:    description,
		GroupImage:     groupImage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		// a concurrent create for the same pair won the insert
		if !isGroup && errors.Is(err, domain.ErrConversationExists) {
			existing, ferr := uc.convRepo.FindOneDirect(ctx, members[0], members[1])
			if ferr == nil && existing != nil {
				return existing, nil
			}
		}
		errMsg := fmt.Sprintf("create conversation failed: %v", err)
		return nil, errprocess.Set(errMsg)
	}
	return conv, nil
}

// Get load one conversation, participant check included
func (uc *ConversationUseCase) Get(ctx context.Context, convID, userID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

// List conversations of one user annotated with last message, unread count
// and the caller's own archive/mute state, most recently active first
func (uc *ConversationUseCase) List(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := uc.convRepo.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	unread, err := uc.msgRepo.CountUnreadByConversation(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		last, err := uc.msgRepo.LastMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.ConversationSummary{
			Conversation: conv,
			LastMessage:  last,
			UnreadCount:  unread[conv.ID],
			OwnerState:   conv.SettingsFor(userID),
		})
	}
	return summaries, nil
}

// UpdateSettings write the caller's own archive/mute state. Other
// participants never see the change.
func (uc *ConversationUseCase) UpdateSettings(ctx context.Context, convID, userID string, settings domain.ConversationSettings) error {
	conv, err := uc.convRepo.FindByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return domain.ErrNotParticipant
	}
	return uc.convRepo.UpdateSettings(ctx, convID, userID, settings)
}

// Profiles resolve display profiles for a set of user ids. A lookup failure
// skips that user instead of failing the listing.
func (uc *ConversationUseCase) Profiles(ctx context.Context, userIDs []string) map[string]*domain.UserProfile {
	out := make(map[string]*domain.UserProfile, len(userIDs))
	for _, id := range userIDs {
		if _, ok := out[id]; ok {
			continue
		}
		profile, err := uc.profiles.GetUserProfile(ctx, id)
		if err != nil {
			continue
		}
		out[id] = profile
	}
	return out
}
