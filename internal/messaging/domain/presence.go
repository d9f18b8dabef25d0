package domain

import "context"

// Session one active real-time connection. Implemented by the websocket
// transport; the registry and broadcaster only ever see this interface.
type Session interface {
	// UserID owner of the session
	UserID() string
	// Send push one event to the client, non-blocking best effort
	Send(resp WSResponse) error
	// Close terminate the underlying connection
	Close()
}

// UserProfile display data for message senders and participants, supplied
// by the member service.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ProfileProvider narrow collaborator interface for user display lookups
type ProfileProvider interface {
	GetUserProfile(ctx context.Context, userID string) (*UserProfile, error)
}

// OfflinePushNotifier abstract push-notification hook, invoked
// opportunistically for offline recipients. Failures must never fail a send.
type OfflinePushNotifier interface {
	NotifyOffline(ctx context.Context, userID, summary string) error
}
