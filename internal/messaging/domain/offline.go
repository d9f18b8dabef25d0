package domain

// QueueStatus definition offline queue entry lifecycle
type QueueStatus string

const (
	// QueuePending entry is waiting for delivery
	QueuePending QueueStatus = "pending"
	// QueueSent entry was delivered to the recipient
	QueueSent QueueStatus = "sent"
	// QueueFailed entry exhausted its retries; kept for status queries
	QueueFailed QueueStatus = "failed"
)

const (
	// MaxDeliveryRetries fixed retry bound per offline queue entry
	MaxDeliveryRetries = 3
	// RetryBackoffSeconds linear backoff step: next_retry_at = now + 30s * retry_count
	RetryBackoffSeconds = 30
)

// OfflineQueueEntry definition one durably queued message for one offline
// recipient. FIFO per recipient by created_at.
type OfflineQueueEntry struct {
	ID          string      `bson:"_id,omitempty" json:"id"`
	RecipientID string      `bson:"recipient_id" json:"recipientId"`
	Message     Message     `bson:"message" json:"message"`
	RetryCount  int         `bson:"retry_count" json:"retryCount"`
	MaxRetries  int         `bson:"max_retries" json:"maxRetries"`
	NextRetryAt int64       `bson:"next_retry_at" json:"nextRetryAt"`
	Status      QueueStatus `bson:"status" json:"status"`
	CreatedAt   int64       `bson:"created_at" json:"createdAt"`
}
