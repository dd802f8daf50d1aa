package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubJoinAndRemove(t *testing.T) {
	hub := NewHub()
	a := newFakeConn("a", userA)
	b := newFakeConn("b", userB)
	hub.Add(a)
	hub.Add(b)

	require.True(t, hub.Join("a", chatAB))
	require.True(t, hub.Join("b", chatAB))
	assert.Len(t, hub.Members(chatAB), 2)
	assert.ElementsMatch(t, []string{chatAB}, hub.roomsOf("a"))

	assert.True(t, hub.Remove("a"))
	assert.False(t, hub.Remove("a"))
	assert.False(t, hub.IsSubscribed("a", chatAB))

	members := hub.Members(chatAB)
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].ID())
	assert.Equal(t, 1, hub.size())
}

func TestHubJoinIgnoresUnknownConnection(t *testing.T) {
	hub := NewHub()

	assert.False(t, hub.Join("ghost", chatAB))
	assert.Empty(t, hub.Members(chatAB))
}

func TestHubDropsEmptyRooms(t *testing.T) {
	hub := NewHub()
	hub.Add(newFakeConn("a", userA))
	hub.Join("a", chatAB)

	hub.Remove("a")

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.joins)
}
