package app

import (
	"sync"

	"nova_messaging_service/internal/messaging/domain"
)

// PresenceRegistry process-wide table of currently connected users and the
// conversation rooms their sessions subscribe to. Holds no durability
// guarantee: a restart loses all presence state and clients re-announce on
// reconnect. Single node only; a distributed swap-in goes behind this
// interface.
type PresenceRegistry interface {
	// Register bind the session to the user, last-connect-wins
	Register(userID string, session domain.Session)
	// Unregister drop the user's session and room subscriptions. The session
	// is only dropped when it is still the registered one, so a stale
	// disconnect never evicts a newer connection.
	Unregister(userID string, session domain.Session)
	JoinRoom(userID, conversationID string)
	LeaveRoom(userID, conversationID string)
	IsOnline(userID string) bool
	// SessionsFor consistent snapshot of the sessions subscribed to a room
	SessionsFor(conversationID string) []domain.Session
	SessionOf(userID string) (domain.Session, bool)
	InRoom(userID, conversationID string) bool
	// RoomsOf conversation ids the user's session subscribes to
	RoomsOf(userID string) []string
}

type presenceRegistry struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session            // userID -> session
	rooms    map[string]map[string]struct{}       // conversationID -> user set
	joined   map[string]map[string]struct{}       // userID -> conversation set
}

// NewPresenceRegistry create the in-memory registry
func NewPresenceRegistry() PresenceRegistry {
	return &presenceRegistry{
		sessions: make(map[string]domain.Session),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

// Register last-connect-wins; the replaced session is closed
func (r *presenceRegistry) Register(userID string, session domain.Session) {
	r.mu.Lock()
	old := r.sessions[userID]
	r.sessions[userID] = session
	r.mu.Unlock()

	if old != nil && old != session {
		old.Close()
	}
}

// Unregister drop session and subscriptions, only for the current session
func (r *presenceRegistry) Unregister(userID string, session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current != session {
		return
	}
	delete(r.sessions, userID)

	for convID := range r.joined[userID] {
		if members, ok := r.rooms[convID]; ok {
			delete(members, userID)
			if len(members) == 0 {
				delete(r.rooms, convID)
			}
		}
	}
	delete(r.joined, userID)
}

// JoinRoom subscribe the user's session to a conversation room
func (r *presenceRegistry) JoinRoom(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		return
	}
	if r.rooms[conversationID] == nil {
		r.rooms[conversationID] = make(map[string]struct{})
	}
	r.rooms[conversationID][userID] = struct{}{}

	if r.joined[userID] == nil {
		r.joined[userID] = make(map[string]struct{})
	}
	r.joined[userID][conversationID] = struct{}{}
}

// LeaveRoom unsubscribe the user's session from a conversation room
func (r *presenceRegistry) LeaveRoom(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if convs, ok := r.joined[userID]; ok {
		delete(convs, conversationID)
	}
}

// IsOnline report whether the user has a registered session
func (r *presenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// SessionsFor snapshot of room sessions, safe to iterate outside the lock
func (r *presenceRegistry) SessionsFor(conversationID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[conversationID]
	if !ok {
		return nil
	}
	sessions := make([]domain.Session, 0, len(members))
	for userID := range members {
		if s, ok := r.sessions[userID]; ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// SessionOf current session of one user
func (r *presenceRegistry) SessionOf(userID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// InRoom report whether the user's session subscribes to the room
func (r *presenceRegistry) InRoom(userID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][userID]
	return ok
}

// RoomsOf snapshot of the rooms one user subscribes to
func (r *presenceRegistry) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := r.joined[userID]
	if len(convs) == 0 {
		return nil
	}
	out := make([]string, 0, len(convs))
	for convID := range convs {
		out = append(out, convID)
	}
	return out
}
