package domain

import (
	"encoding/json"
	"errors"
)

// Action websocket request action
type Action string

const (
	// JoinRoom websocket action join_room
	JoinRoom Action = "join_room"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// SendEncrypted websocket action send_encrypted
	SendEncrypted Action = "send_encrypted"
	// TypingStart websocket action typing_start
	TypingStart Action = "typing_start"
	// TypingStop websocket action typing_stop
	TypingStop Action = "typing_stop"
	// MarkRead websocket action mark_read (batch)
	MarkRead Action = "mark_read"
	// SyncQueue websocket action sync, drains the caller's offline queue
	SyncQueue Action = "sync"
)

// Event server-emitted notification name
type Event string

const (
	// EventNewMessage a message was appended to a subscribed conversation
	EventNewMessage Event = "new-message"
	// EventQueuedMessage an offline-queued message redelivered on drain
	EventQueuedMessage Event = "queued-message"
	// EventUserTyping a participant started or stopped typing
	EventUserTyping Event = "user-typing"
	// EventMessageRead a single message gained a read receipt
	EventMessageRead Event = "message-read"
	// EventMessagesRead a batch of messages gained read receipts
	EventMessagesRead Event = "messages-read"
	// EventMessageEdited a message's text was replaced by its sender
	EventMessageEdited Event = "message-edited"
	// EventUserStatusChange a participant connected or disconnected
	EventUserStatusChange Event = "user-status-change"
)

// WSRequest websocket request envelope. Payload is decoded per action into
// the matching typed payload; unknown actions and malformed payloads are
// rejected at the transport boundary.
type WSRequest struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRoomPayload payload for join_room / leave_room
type JoinRoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload payload for send_message
type SendMessagePayload struct {
	ConversationID string      `json:"conversationId"`
	Text           string      `json:"text,omitempty"`
	MessageType    MessageType `json:"messageType,omitempty"`
	MediaRef       string      `json:"mediaRef,omitempty"`
	FileName       string      `json:"fileName,omitempty"`
	FileSize       int64       `json:"fileSize,omitempty"`
	ReplyTo        string      `json:"replyTo,omitempty"`
	ForwardedFrom  string      `json:"forwardedFrom,omitempty"`
}

// SendEncryptedPayload payload for send_encrypted; the server treats
// ciphertext and nonce as opaque bytes.
type SendEncryptedPayload struct {
	ConversationID string `json:"conversationId"`
	Ciphertext     []byte `json:"ciphertext"`
	Nonce          []byte `json:"nonce"`
}

// TypingPayload payload for typing_start / typing_stop
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// MarkReadPayload payload for mark_read, batch of message ids
type MarkReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// DecodePayload unmarshal the envelope payload into dst and validate the
// fields the action requires.
func (r *WSRequest) DecodePayload(dst interface{}) error {
	if len(r.Payload) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(r.Payload, dst); err != nil {
		return errors.New("malformed payload")
	}
	switch p := dst.(type) {
	case *JoinRoomPayload:
		if p.ConversationID == "" {
			return errors.New("conversationId is required")
		}
	case *SendMessagePayload:
		if p.ConversationID == "" {
			return errors.New("conversationId is required")
		}
		if p.Text == "" && p.MediaRef == "" {
			return ErrEmptyContent
		}
	case *SendEncryptedPayload:
		if p.ConversationID == "" {
			return errors.New("conversationId is required")
		}
		if len(p.Ciphertext) == 0 || len(p.Nonce) == 0 {
			return ErrEncryptedPayload
		}
	case *TypingPayload:
		if p.ConversationID == "" {
			return errors.New("conversationId is required")
		}
	case *MarkReadPayload:
		if p.ConversationID == "" || len(p.MessageIDs) == 0 {
			return errors.New("conversationId and messageIds are required")
		}
	}
	return nil
}

// WSResponse websocket response / server event envelope
type WSResponse struct {
	Action  string      `json:"action"`
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewMessageEvent payload of new-message / queued-message events
type NewMessageEvent struct {
	Message *Message `json:"message"`
}

// TypingEvent payload of user-typing events
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// MessageReadEvent payload of message-read events
type MessageReadEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId"`
	ReadAt         int64  `json:"readAt"`
}

// MessagesReadEvent payload of messages-read events (batch)
type MessagesReadEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	UserID         string   `json:"userId"`
	ReadAt         int64    `json:"readAt"`
}

// UserStatusEvent payload of user-status-change events
type UserStatusEvent struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}
