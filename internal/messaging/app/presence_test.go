package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPresenceRegistry_RegisterUnregister(t *testing.T) {
	registry := NewPresenceRegistry()
	userID := uuid.New().String()

	assert.False(t, registry.IsOnline(userID))

	session := newFakeSession(userID)
	registry.Register(userID, session)
	assert.True(t, registry.IsOnline(userID))

	got, ok := registry.SessionOf(userID)
	assert.True(t, ok)
	assert.Equal(t, session, got.(*fakeSession))

	registry.Unregister(userID, session)
	assert.False(t, registry.IsOnline(userID))
}

// a second connection for the same user replaces and closes the first
func TestPresenceRegistry_LastConnectWins(t *testing.T) {
	registry := NewPresenceRegistry()
	userID := uuid.New().String()
	convID := uuid.New().String()

	first := newFakeSession(userID)
	registry.Register(userID, first)
	registry.JoinRoom(userID, convID)

	second := newFakeSession(userID)
	registry.Register(userID, second)

	assert.True(t, first.closed)
	got, _ := registry.SessionOf(userID)
	assert.Equal(t, second, got.(*fakeSession))

	// the stale session's deferred unregister must not evict the new one
	registry.Unregister(userID, first)
	assert.True(t, registry.IsOnline(userID))
}

func TestPresenceRegistry_Rooms(t *testing.T) {
	registry := NewPresenceRegistry()
	convID := uuid.New().String()
	alice := uuid.New().String()
	bob := uuid.New().String()

	registry.Register(alice, newFakeSession(alice))
	registry.Register(bob, newFakeSession(bob))

	registry.JoinRoom(alice, convID)
	registry.JoinRoom(bob, convID)

	assert.True(t, registry.InRoom(alice, convID))
	assert.Len(t, registry.SessionsFor(convID), 2)
	assert.Equal(t, []string{convID}, registry.RoomsOf(alice))

	registry.LeaveRoom(alice, convID)
	assert.False(t, registry.InRoom(alice, convID))
	assert.Len(t, registry.SessionsFor(convID), 1)

	// joining without a registered session is ignored
	ghost := uuid.New().String()
	registry.JoinRoom(ghost, convID)
	assert.False(t, registry.InRoom(ghost, convID))
}

func TestPresenceRegistry_UnregisterLeavesRooms(t *testing.T) {
	registry := NewPresenceRegistry()
	userID := uuid.New().String()
	convA := uuid.New().String()
	convB := uuid.New().String()

	session := newFakeSession(userID)
	registry.Register(userID, session)
	registry.JoinRoom(userID, convA)
	registry.JoinRoom(userID, convB)

	registry.Unregister(userID, session)

	assert.Empty(t, registry.SessionsFor(convA))
	assert.Empty(t, registry.SessionsFor(convB))
	assert.Empty(t, registry.RoomsOf(userID))
}

func TestPresenceRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewPresenceRegistry()
	convID := uuid.New().String()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			session := newFakeSession(userID)
			registry.Register(userID, session)
			registry.JoinRoom(userID, convID)
			registry.SessionsFor(convID)
			registry.IsOnline(userID)
			if n%2 == 0 {
				registry.Unregister(userID, session)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, registry.SessionsFor(convID), 25)
}
