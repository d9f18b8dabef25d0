package domain

// MessageType definition message content kind
type MessageType string

const (
	// MessageTypeText plain text message
	MessageTypeText MessageType = "text"
	// MessageTypeImage image message, content is a media reference
	MessageTypeImage MessageType = "image"
	// MessageTypeVideo video message, content is a media reference
	MessageTypeVideo MessageType = "video"
	// MessageTypeAudio audio message, content is a media reference
	MessageTypeAudio MessageType = "audio"
	// MessageTypeFile arbitrary file message
	MessageTypeFile MessageType = "file"
	// MessageTypeEmoji emoji-only message
	MessageTypeEmoji MessageType = "emoji"
	// MessageTypeEncrypted opaque ciphertext message, server never inspects it
	MessageTypeEncrypted MessageType = "encrypted"
)

// DeliveryReceipt records that a message reached one recipient's client
type DeliveryReceipt struct {
	UserID      string `bson:"user_id" json:"userId"`
	DeliveredAt int64  `bson:"delivered_at" json:"deliveredAt"`
}

// ReadReceipt records that one recipient has seen a message
type ReadReceipt struct {
	UserID string `bson:"user_id" json:"userId"`
	ReadAt int64  `bson:"read_at" json:"readAt"`
}

// Message definition one conversation message.
// DeliveredTo and ReadBy are append-only sets with at most one entry per
// user; the sender is seeded into both on insert.
type Message struct {
	ID             string      `bson:"_id,omitempty" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversationId"`
	SenderID       string      `bson:"sender_id" json:"senderId"`
	MessageType    MessageType `bson:"message_type" json:"messageType"`
	Text           string      `bson:"text,omitempty" json:"text,omitempty"`
	MediaRef       string      `bson:"media_ref,omitempty" json:"mediaRef,omitempty"`
	FileName       string      `bson:"file_name,omitempty" json:"fileName,omitempty"`
	FileSize       int64       `bson:"file_size,omitempty" json:"fileSize,omitempty"`
	ReplyTo        string      `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	ForwardedFrom  string      `bson:"forwarded_from,omitempty" json:"forwardedFrom,omitempty"`

	// Encrypted variant payload. When set the message carries no plaintext.
	Ciphertext []byte `bson:"ciphertext,omitempty" json:"ciphertext,omitempty"`
	Nonce      []byte `bson:"nonce,omitempty" json:"nonce,omitempty"`

	DeliveredTo []DeliveryReceipt `bson:"delivered_to" json:"deliveredTo"`
	ReadBy      []ReadReceipt     `bson:"read_by" json:"readBy"`

	// Seq is a per-conversation insertion counter breaking created_at ties.
	Seq       int64 `bson:"seq" json:"seq"`
	CreatedAt int64 `bson:"created_at" json:"createdAt"`
	IsEdited  bool  `bson:"is_edited,omitempty" json:"isEdited,omitempty"`
	EditedAt  int64 `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
}

// DeliveredToUser report whether userID already has a delivery receipt
func (m *Message) DeliveredToUser(userID string) bool {
	for _, r := range m.DeliveredTo {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ReadByUser report whether userID already has a read receipt
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
