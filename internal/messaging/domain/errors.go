package domain

import "errors"

// Validation errors are surfaced synchronously to the caller with no state
// mutated. Store failures are wrapped at the repository layer and returned
// retryable; delivery failures are never surfaced to the sender.
var (
	// ErrConversationNotFound conversation id does not resolve
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotParticipant sender is not in the conversation's participant set
	ErrNotParticipant = errors.New("sender is not a participant of the conversation")
	// ErrMessageNotFound message id does not resolve
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotSender only the author may edit a message
	ErrNotSender = errors.New("user is not the message sender")
	// ErrDirectParticipants a non-group conversation needs exactly 2 distinct participants
	ErrDirectParticipants = errors.New("direct conversation must have exactly 2 distinct participants")
	// ErrEmptyParticipants conversation needs a non-empty participant set
	ErrEmptyParticipants = errors.New("conversation must have participants")
	// ErrEmptyContent message carries neither text, media nor ciphertext
	ErrEmptyContent = errors.New("message content is empty")
	// ErrEncryptedPayload encrypted send is missing ciphertext or nonce
	ErrEncryptedPayload = errors.New("ciphertext and nonce are required")
	// ErrEncryptedImmutable encrypted messages carry no plaintext to replace
	ErrEncryptedImmutable = errors.New("encrypted messages cannot be edited")
	// ErrConversationExists a conversation for the same direct pair already exists
	ErrConversationExists = errors.New("conversation already exists for this pair")
)
