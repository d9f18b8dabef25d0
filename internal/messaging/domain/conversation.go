package domain

import "nova_messaging_service/pkg"

// ConversationSettings per-owner conversation state (archive/mute)
type ConversationSettings struct {
	IsArchived bool  `bson:"is_archived" json:"isArchived"`
	IsMuted    bool  `bson:"is_muted" json:"isMuted"`
	MuteUntil  int64 `bson:"mute_until,omitempty" json:"muteUntil,omitempty"`
}

// Conversation definition a conversation between 2 or more participants
type Conversation struct {
	ID             string   `bson:"_id,omitempty" json:"id"`
	ParticipantIDs []string `bson:"participant_ids" json:"participantIds"`
	// DirectKey canonical pair key of a 2-party conversation, unique-indexed
	// so concurrent creates for the same pair cannot both insert
	DirectKey   string `bson:"direct_key,omitempty" json:"-"`
	IsGroup     bool   `bson:"is_group" json:"isGroup"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	GroupImage  string `bson:"group_image,omitempty" json:"groupImage,omitempty"`
	// Settings keyed by participant id. Archiving or muting a conversation
	// only affects the participant who asked for it.
	Settings  map[string]ConversationSettings `bson:"settings,omitempty" json:"-"`
	CreatedAt int64                           `bson:"created_at" json:"createdAt"`
	UpdatedAt int64                           `bson:"updated_at" json:"updatedAt"`
}

// HasParticipant report whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return pkg.Contains(c.ParticipantIDs, userID)
}

// SettingsFor return the per-owner settings, zero value when never set
func (c *Conversation) SettingsFor(userID string) ConversationSettings {
	if c.Settings == nil {
		return ConversationSettings{}
	}
	return c.Settings[userID]
}

// ConversationSummary definition a conversation annotated for listing
type ConversationSummary struct {
	Conversation `bson:",inline"`
	LastMessage  *Message             `json:"lastMessage,omitempty"`
	UnreadCount  int                  `json:"unreadCount"`
	OwnerState   ConversationSettings `json:"settings"`
}
